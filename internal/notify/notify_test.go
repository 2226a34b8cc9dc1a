package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"nexticket/api/internal/store"
)

type fakeStore struct {
	insertNotificationsFn    func(context.Context, []store.Notification) error
	listActiveEmailsByRoleFn func(context.Context, string) ([]string, error)

	batches [][]store.Notification
}

func (f *fakeStore) InsertNotifications(ctx context.Context, items []store.Notification) error {
	f.batches = append(f.batches, items)
	if f.insertNotificationsFn != nil {
		return f.insertNotificationsFn(ctx, items)
	}
	return nil
}

func (f *fakeStore) ListActiveEmailsByRole(ctx context.Context, role string) ([]string, error) {
	if f.listActiveEmailsByRoleFn != nil {
		return f.listActiveEmailsByRoleFn(ctx, role)
	}
	return nil, nil
}

func (f *fakeStore) all() []store.Notification {
	var out []store.Notification
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

func baseTicket() store.Ticket {
	return store.Ticket{
		ID:         "TK-1A2B3C",
		Title:      "Impressora parou",
		Requester:  "Carla",
		OwnerEmail: "carla@nexticket.dev",
		Status:     "OPEN",
		Messages:   []store.Message{},
	}
}

func TestStatusChangeNotifiesOwnerExactlyOnce(t *testing.T) {
	fs := &fakeStore{}
	rules := NewTicketRules(NewFanout(fs))

	old := baseTicket()
	updated := old
	updated.Status = "RESOLVED"

	rules.Updated(context.Background(), Actor{Email: "dev@nexticket.dev", Elevated: true}, old, updated)

	got := fs.all()
	if len(got) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(got))
	}
	if got[0].RecipientEmail != "carla@nexticket.dev" {
		t.Errorf("notification must target the owner, got %q", got[0].RecipientEmail)
	}
	if !strings.Contains(got[0].Message, "Resolvido") {
		t.Errorf("message must carry the localized status, got %q", got[0].Message)
	}
	if got[0].TicketID != "TK-1A2B3C" {
		t.Errorf("notification must reference the ticket, got %q", got[0].TicketID)
	}
}

func TestStatusChangeSuppressedWhenOwnerIsActor(t *testing.T) {
	fs := &fakeStore{}
	rules := NewTicketRules(NewFanout(fs))

	old := baseTicket()
	updated := old
	updated.Status = "CLOSED"

	rules.Updated(context.Background(), Actor{Email: "carla@nexticket.dev"}, old, updated)

	if len(fs.all()) != 0 {
		t.Fatalf("self-transitions must not notify, got %d", len(fs.all()))
	}
}

func TestRequesterMessageFansOutToEveryActiveDev(t *testing.T) {
	fs := &fakeStore{
		listActiveEmailsByRoleFn: func(_ context.Context, role string) ([]string, error) {
			if role != "DEV" {
				t.Errorf("fan-out must target DEV, got %q", role)
			}
			return []string{"ana@nexticket.dev", "bruno@nexticket.dev"}, nil
		},
	}
	rules := NewTicketRules(NewFanout(fs))

	old := baseTicket()
	updated := old
	updated.Messages = append(updated.Messages, store.Message{Sender: store.SenderUser, Text: "Ainda quebrado"})

	rules.Updated(context.Background(), Actor{Email: "carla@nexticket.dev", Elevated: false}, old, updated)

	if len(fs.batches) != 1 {
		t.Fatalf("fan-out must go as a single batch, got %d batches", len(fs.batches))
	}
	got := fs.batches[0]
	if len(got) != 2 {
		t.Fatalf("expected one notification per active DEV, got %d", len(got))
	}
	for _, n := range got {
		if !strings.Contains(n.Message, "#TK-1A2B3C") {
			t.Errorf("message must reference the ticket id, got %q", n.Message)
		}
	}
}

func TestAgentReplyNotifiesOwner(t *testing.T) {
	fs := &fakeStore{}
	rules := NewTicketRules(NewFanout(fs))

	old := baseTicket()
	updated := old
	updated.Messages = append(updated.Messages, store.Message{Sender: store.SenderAgent, Text: "Resolvido, pode testar"})

	rules.Updated(context.Background(), Actor{Email: "dev@nexticket.dev", Elevated: true}, old, updated)

	got := fs.all()
	if len(got) != 1 || got[0].RecipientEmail != "carla@nexticket.dev" {
		t.Fatalf("agent reply must notify the owner once, got %+v", got)
	}
	if !strings.Contains(got[0].Message, "Impressora parou") {
		t.Errorf("reply notification must quote the title, got %q", got[0].Message)
	}
}

func TestAgentReplyOnOwnTicketIsQuiet(t *testing.T) {
	fs := &fakeStore{}
	rules := NewTicketRules(NewFanout(fs))

	old := baseTicket()
	old.OwnerEmail = "dev@nexticket.dev"
	updated := old
	updated.Messages = append(updated.Messages, store.Message{Sender: store.SenderAgent, Text: "Anotado"})

	rules.Updated(context.Background(), Actor{Email: "dev@nexticket.dev", Elevated: true}, old, updated)

	if len(fs.all()) != 0 {
		t.Fatalf("a dev replying on their own ticket must not self-notify, got %d", len(fs.all()))
	}
}

func TestAgentMessageFromNonElevatedActorDoesNotNotify(t *testing.T) {
	fs := &fakeStore{}
	rules := NewTicketRules(NewFanout(fs))

	old := baseTicket()
	updated := old
	updated.Messages = append(updated.Messages, store.Message{Sender: store.SenderAgent})

	rules.Updated(context.Background(), Actor{Email: "carla@nexticket.dev", Elevated: false}, old, updated)

	if len(fs.all()) != 0 {
		t.Fatalf("rule requires an elevated actor, got %d notifications", len(fs.all()))
	}
}

func TestCreationExcludesCreatorFromFanout(t *testing.T) {
	fs := &fakeStore{
		listActiveEmailsByRoleFn: func(context.Context, string) ([]string, error) {
			return []string{"ana@nexticket.dev", "bruno@nexticket.dev"}, nil
		},
	}
	rules := NewTicketRules(NewFanout(fs))

	rules.Created(context.Background(), Actor{Email: "ana@nexticket.dev", Elevated: true}, baseTicket())

	got := fs.all()
	if len(got) != 1 {
		t.Fatalf("creator must be excluded from the creation fan-out, got %d", len(got))
	}
	if got[0].RecipientEmail != "bruno@nexticket.dev" {
		t.Errorf("unexpected recipient %q", got[0].RecipientEmail)
	}
	if !strings.Contains(got[0].Message, "Carla") || !strings.Contains(got[0].Message, "Impressora parou") {
		t.Errorf("creation message must carry requester and title, got %q", got[0].Message)
	}
}

func TestBatchFailureOnlyLogs(t *testing.T) {
	fs := &fakeStore{
		insertNotificationsFn: func(context.Context, []store.Notification) error {
			return errors.New("store refused")
		},
	}
	fanout := NewFanout(fs)

	// must not panic or propagate
	fanout.Send(context.Background(), "carla@nexticket.dev", "TK-1A2B3C", "oi")
}

func TestBillStatusChangeNotifiesOwner(t *testing.T) {
	fs := &fakeStore{}
	rules := NewBillRules(NewFanout(fs))

	old := store.Bill{ID: "b1", UserID: "usr_1", Title: "Luz", Status: "PENDING"}
	updated := old
	updated.Status = "PAID"

	rules.Updated(context.Background(), Actor{Email: "dev@nexticket.dev", Elevated: true}, old, updated, "carla@nexticket.dev")

	got := fs.all()
	if len(got) != 1 || got[0].RecipientEmail != "carla@nexticket.dev" {
		t.Fatalf("bill status change must notify the owner once, got %+v", got)
	}
	if !strings.Contains(got[0].Message, "Paga") {
		t.Errorf("message must carry the localized status, got %q", got[0].Message)
	}
}

func TestBillUnchangedStatusIsQuiet(t *testing.T) {
	fs := &fakeStore{}
	rules := NewBillRules(NewFanout(fs))

	bill := store.Bill{ID: "b1", Title: "Luz", Status: "PENDING"}
	rules.Updated(context.Background(), Actor{Email: "dev@nexticket.dev"}, bill, bill, "carla@nexticket.dev")

	if len(fs.all()) != 0 {
		t.Fatal("no status delta, no notification")
	}
}
