package export

import (
	"fmt"
	"strings"
	"time"

	"nexticket/api/internal/store"
)

// Service renders records into printable PDFs.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// TicketReport renders one ticket with its conversation log.
func (s *Service) TicketReport(ticket store.Ticket) (*Result, error) {
	data := TicketReportData{
		ID:        ticket.ID,
		Title:     ticket.Title,
		Requester: ticket.Requester,
		Status:    ticket.Status,
		Priority:  ticket.Priority,
		Category:  ticket.Category,
		CreatedAt: ticket.CreatedAt,
		UpdatedAt: ticket.UpdatedAt,
		Body:      ticket.Description,
	}
	for _, m := range ticket.Messages {
		sender := "Solicitante"
		if m.Sender == store.SenderAgent {
			sender = "Suporte"
		}
		data.Messages = append(data.Messages, TicketReportMessage{
			Sender:    sender,
			Text:      m.Text,
			CreatedAt: m.CreatedAt,
		})
	}

	html, err := renderTicketReport(data)
	if err != nil {
		return nil, fmt.Errorf("render ticket report: %w", err)
	}
	return exportPDF(html, "chamado-"+ticket.ID)
}

// MonthlyStatement renders the bills due in month ("2026-08") for one user.
func (s *Service) MonthlyStatement(userName, month string, bills []store.Bill) (*Result, error) {
	data := StatementData{
		UserName:    userName,
		MonthLabel:  monthLabel(month),
		GeneratedAt: time.Now(),
	}
	for _, b := range bills {
		if month != "" && !strings.HasPrefix(b.DueDate, month) {
			continue
		}
		data.Lines = append(data.Lines, StatementLine{
			Title:    b.Title,
			Category: b.Category,
			Status:   b.Status,
			DueDate:  b.DueDate,
			Amount:   b.Amount,
		})
		data.Total += b.Amount
		if b.Status == "PAID" {
			data.TotalPaid += b.Amount
		}
	}

	html, err := renderStatement(data)
	if err != nil {
		return nil, fmt.Errorf("render statement: %w", err)
	}
	return exportPDF(html, "extrato-"+month)
}

var monthNamesPT = [...]string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

func monthLabel(month string) string {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return month
	}
	return fmt.Sprintf("%s de %d", monthNamesPT[t.Month()-1], t.Year())
}
