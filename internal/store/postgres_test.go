package store

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

// fakeTicketRow replays encoded column values through scanTicket the way a
// database row would.
type fakeTicketRow struct {
	ticket      Ticket
	analysis    []byte
	messages    []byte
	attachments []byte
}

func (r fakeTicketRow) Scan(dest ...any) error {
	*dest[0].(*string) = r.ticket.ID
	*dest[1].(*string) = r.ticket.Title
	*dest[2].(*string) = r.ticket.Description
	*dest[3].(*string) = r.ticket.Requester
	*dest[4].(*string) = r.ticket.OwnerEmail
	*dest[5].(*string) = r.ticket.Status
	*dest[6].(*string) = r.ticket.Priority
	*dest[7].(*string) = r.ticket.Category
	*dest[8].(*[]byte) = r.analysis
	*dest[9].(*[]byte) = r.messages
	*dest[10].(*[]byte) = r.attachments
	*dest[11].(*time.Time) = r.ticket.CreatedAt
	*dest[12].(*time.Time) = r.ticket.UpdatedAt
	return nil
}

func roundTripTicket(t *testing.T, ticket Ticket) Ticket {
	t.Helper()
	analysis, messages, attachments, err := encodeTicketJSON(ticket)
	if err != nil {
		t.Fatalf("encode ticket: %v", err)
	}
	scanned, err := scanTicket(fakeTicketRow{
		ticket:      ticket,
		analysis:    analysis,
		messages:    messages,
		attachments: attachments,
	})
	if err != nil {
		t.Fatalf("scan ticket: %v", err)
	}
	return scanned
}

func TestTicketAttachmentsSurviveRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 30, 9, 15, 0, 0, time.UTC)
	ticket := Ticket{
		ID:          "TK-1A2B3C",
		Title:       "Impressora parou",
		Description: "Sem tinta",
		Requester:   "Carla",
		OwnerEmail:  "carla@example.com",
		Status:      "OPEN",
		Priority:    "HIGH",
		Category:    "Hardware",
		AIAnalysis:  json.RawMessage(`{"summary":"impressora"}`),
		Messages: []Message{
			{ID: "msg_1", Sender: SenderUser, Text: "ainda quebrado", CreatedAt: now},
			{ID: "msg_2", Sender: SenderAgent, Text: "verificando", CreatedAt: now.Add(time.Hour)},
		},
		Attachments: []Attachment{
			{Name: "foto-da-impressora.jpg", URL: "https://files.nexticket.dev/ticket-attachments/TK-1A2B3C/1_foto-da-impressora.jpg", Type: "image/jpeg", Size: 204800},
			{Name: "nota-fiscal.pdf", URL: "https://files.nexticket.dev/ticket-attachments/TK-1A2B3C/2_nota-fiscal.pdf", Type: "application/pdf", Size: 51200},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	scanned := roundTripTicket(t, ticket)

	if !reflect.DeepEqual(scanned.Attachments, ticket.Attachments) {
		t.Fatalf("attachments changed in round trip:\n got %+v\nwant %+v", scanned.Attachments, ticket.Attachments)
	}
	if !reflect.DeepEqual(scanned.Messages, ticket.Messages) {
		t.Fatalf("messages changed in round trip:\n got %+v\nwant %+v", scanned.Messages, ticket.Messages)
	}
	if string(scanned.AIAnalysis) != string(ticket.AIAnalysis) {
		t.Fatalf("analysis changed in round trip: got %s want %s", scanned.AIAnalysis, ticket.AIAnalysis)
	}
	if !reflect.DeepEqual(scanned, ticket) {
		t.Fatalf("ticket changed in round trip:\n got %+v\nwant %+v", scanned, ticket)
	}
}

func TestTicketRoundTripNormalizesEmptyCollections(t *testing.T) {
	scanned := roundTripTicket(t, Ticket{ID: "TK-EMPTY1", Title: "Sem anexos"})

	if scanned.Messages == nil || len(scanned.Messages) != 0 {
		t.Fatalf("expected empty non-nil messages, got %#v", scanned.Messages)
	}
	if scanned.Attachments == nil || len(scanned.Attachments) != 0 {
		t.Fatalf("expected empty non-nil attachments, got %#v", scanned.Attachments)
	}
	if scanned.AIAnalysis != nil {
		t.Fatalf("expected nil analysis for null column, got %s", scanned.AIAnalysis)
	}
}
