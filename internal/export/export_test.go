package export

import (
	"strings"
	"testing"
	"time"
)

func TestRenderTicketReport(t *testing.T) {
	html, err := renderTicketReport(TicketReportData{
		ID:        "TK-1A2B3C",
		Title:     "Impressora parou",
		Requester: "Carla",
		Status:    "OPEN",
		Priority:  "HIGH",
		CreatedAt: time.Date(2026, 8, 30, 9, 15, 0, 0, time.UTC),
		Body:      "Sem tinta & sem papel",
		Messages: []TicketReportMessage{
			{Sender: "Suporte", Text: "Verificando", CreatedAt: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)},
		},
	})
	if err != nil {
		t.Fatalf("renderTicketReport failed: %v", err)
	}
	for _, want := range []string{"#TK-1A2B3C", "Impressora parou", "Carla", "30/08/2026", "Suporte"} {
		if !strings.Contains(html, want) {
			t.Errorf("report missing %q", want)
		}
	}
	if strings.Contains(html, "Sem tinta &amp;amp;") {
		t.Error("body must be escaped exactly once")
	}
}

func TestRenderStatementTotals(t *testing.T) {
	html, err := renderStatement(StatementData{
		UserName:    "Carla",
		MonthLabel:  "agosto de 2026",
		GeneratedAt: time.Now(),
		Lines: []StatementLine{
			{Title: "Luz", Category: "UTILITIES", Status: "PAID", DueDate: "2026-08-10", Amount: 412.5},
			{Title: "Mercado", Category: "FOOD", Status: "PENDING", DueDate: "2026-08-20", Amount: 1250},
		},
		Total:     1662.5,
		TotalPaid: 412.5,
	})
	if err != nil {
		t.Fatalf("renderStatement failed: %v", err)
	}
	for _, want := range []string{"agosto de 2026", "R$ 412,50", "R$ 1.250,00", "R$ 1.662,50"} {
		if !strings.Contains(html, want) {
			t.Errorf("statement missing %q", want)
		}
	}
}

func TestMonthLabel(t *testing.T) {
	if got := monthLabel("2026-08"); got != "agosto de 2026" {
		t.Errorf("monthLabel(2026-08) = %q", got)
	}
	if got := monthLabel("not-a-month"); got != "not-a-month" {
		t.Errorf("unparseable month must pass through, got %q", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"chamado-TK-1A2B3C", "chamado-TK-1A2B3C"},
		{"extrato agosto/2026", "extrato-agosto2026"},
		{"", "relatorio"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("<b>olá mundo</b>")
	if strings.Contains(got, " ") || strings.Contains(got, "+") {
		t.Errorf("spaces must be %%20 encoded, got %q", got)
	}
	if !strings.Contains(got, "%20") {
		t.Errorf("expected %%20 in %q", got)
	}
	if strings.Contains(got, "<") {
		t.Errorf("reserved characters must be encoded, got %q", got)
	}
}
