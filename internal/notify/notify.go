// Package notify derives notification fan-out from record deltas. All
// sends are best effort: failures log and never block the mutation that
// triggered them.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"nexticket/api/internal/rbac"
	"nexticket/api/internal/store"
	"nexticket/api/internal/util"
)

// Store is the slice of the row store the fan-out needs.
type Store interface {
	InsertNotifications(ctx context.Context, items []store.Notification) error
	ListActiveEmailsByRole(ctx context.Context, role string) ([]string, error)
}

// Actor identifies who performed the mutation being evaluated.
type Actor struct {
	Email    string
	Name     string
	Elevated bool
}

// Mailer sends best-effort email copies of in-app notifications.
type Mailer interface {
	IsConfigured() bool
	SendNotificationEmail(to, userName, message, ticketID string) error
}

// Fanout queues notifications to single recipients or role sets.
type Fanout struct {
	store  Store
	mailer Mailer
}

func NewFanout(s Store) *Fanout {
	return &Fanout{store: s}
}

// WithMailer enables email copies for every queued notification.
func (f *Fanout) WithMailer(m Mailer) *Fanout {
	f.mailer = m
	return f
}

// Send queues one notification. Sending to the actor themselves is the
// caller's mistake to avoid; Send does not second-guess.
func (f *Fanout) Send(ctx context.Context, recipientEmail, ticketID, message string) {
	f.submit(ctx, []store.Notification{{
		ID:             util.NewID("ntf"),
		RecipientEmail: recipientEmail,
		TicketID:       ticketID,
		Message:        message,
	}})
}

// SendToRole queues one notification per ACTIVE holder of role, skipping
// excludeEmail so actors never notify themselves. The batch goes to the
// store as a single statement.
func (f *Fanout) SendToRole(ctx context.Context, role, excludeEmail, ticketID, message string) {
	emails, err := f.store.ListActiveEmailsByRole(ctx, role)
	if err != nil {
		log.Printf("notify: list %s recipients: %v", role, err)
		return
	}
	items := make([]store.Notification, 0, len(emails))
	for _, email := range emails {
		if email == excludeEmail {
			continue
		}
		items = append(items, store.Notification{
			ID:             util.NewID("ntf"),
			RecipientEmail: email,
			TicketID:       ticketID,
			Message:        message,
		})
	}
	f.submit(ctx, items)
}

func (f *Fanout) submit(ctx context.Context, items []store.Notification) {
	if len(items) == 0 {
		return
	}
	if err := f.store.InsertNotifications(ctx, items); err != nil {
		log.Printf("notify: insert batch of %d: %v", len(items), err)
		return
	}
	if f.mailer == nil || !f.mailer.IsConfigured() {
		return
	}
	for _, item := range items {
		item := item
		go func() {
			name := item.RecipientEmail
			if at := strings.IndexByte(name, '@'); at > 0 {
				name = name[:at]
			}
			if err := f.mailer.SendNotificationEmail(item.RecipientEmail, name, item.Message, item.TicketID); err != nil {
				log.Printf("notify: email copy to %s: %v", item.RecipientEmail, err)
			}
		}()
	}
}

// ticketStatusPT maps ticket statuses to the product's Portuguese labels.
var ticketStatusPT = map[string]string{
	"OPEN":        "Aberto",
	"IN_PROGRESS": "Em Andamento",
	"RESOLVED":    "Resolvido",
	"CLOSED":      "Fechado",
}

// TicketRules evaluates the ticket deployment's fan-out rules.
type TicketRules struct {
	fanout *Fanout
}

func NewTicketRules(fanout *Fanout) *TicketRules {
	return &TicketRules{fanout: fanout}
}

// Created announces a new ticket to every active DEV except the creator.
func (r *TicketRules) Created(ctx context.Context, actor Actor, ticket store.Ticket) {
	message := fmt.Sprintf("Novo chamado criado por %s: %q", ticket.Requester, ticket.Title)
	r.fanout.SendToRole(ctx, string(rbac.RoleDev), actor.Email, ticket.ID, message)
}

// Updated compares old and new and fires every rule that applies. The
// rules are independent; a single update may queue zero, one, or more
// notifications.
func (r *TicketRules) Updated(ctx context.Context, actor Actor, old, updated store.Ticket) {
	if old.Status != updated.Status && updated.OwnerEmail != actor.Email {
		label, ok := ticketStatusPT[updated.Status]
		if !ok {
			label = updated.Status
		}
		r.fanout.Send(ctx, updated.OwnerEmail, updated.ID,
			fmt.Sprintf("O status do seu chamado foi alterado para: %s", label))
	}

	if len(updated.Messages) > len(old.Messages) {
		last := updated.Messages[len(updated.Messages)-1]

		if last.Sender == store.SenderUser && !actor.Elevated {
			r.fanout.SendToRole(ctx, string(rbac.RoleDev), actor.Email, updated.ID,
				fmt.Sprintf("Nova interação de %s no chamado #%s", updated.Requester, updated.ID))
		}

		if last.Sender == store.SenderAgent && actor.Elevated && updated.OwnerEmail != actor.Email {
			r.fanout.Send(ctx, updated.OwnerEmail, updated.ID,
				fmt.Sprintf("O suporte respondeu seu chamado: %q", updated.Title))
		}
	}
}

// billStatusPT maps bill statuses to the product's Portuguese labels.
var billStatusPT = map[string]string{
	"PENDING": "Pendente",
	"PAID":    "Paga",
	"OVERDUE": "Vencida",
}

// BillRules evaluates the bill deployment's fan-out. Bills have no
// conversation log, so only the status-change rule exists.
type BillRules struct {
	fanout *Fanout
}

func NewBillRules(fanout *Fanout) *BillRules {
	return &BillRules{fanout: fanout}
}

func (r *BillRules) Updated(ctx context.Context, actor Actor, old, updated store.Bill, ownerEmail string) {
	if old.Status == updated.Status || ownerEmail == actor.Email {
		return
	}
	label, ok := billStatusPT[updated.Status]
	if !ok {
		label = updated.Status
	}
	r.fanout.Send(ctx, ownerEmail, updated.ID,
		fmt.Sprintf("O status da sua conta %q foi alterado para: %s", updated.Title, label))
}
