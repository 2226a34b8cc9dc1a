package search

import (
	"context"
	"testing"

	"nexticket/api/internal/store"
)

type fakeFinder struct {
	searchTicketsFn func(context.Context, string, int) ([]store.Ticket, error)
}

func (f *fakeFinder) SearchTickets(ctx context.Context, query string, limit int) ([]store.Ticket, error) {
	if f.searchTicketsFn != nil {
		return f.searchTicketsFn(ctx, query, limit)
	}
	return nil, nil
}

func TestFallbackFiltersByOwner(t *testing.T) {
	svc := NewService(nil, &fakeFinder{
		searchTicketsFn: func(context.Context, string, int) ([]store.Ticket, error) {
			return []store.Ticket{
				{ID: "TK-000001", OwnerEmail: "a@x.dev", Title: "vpn"},
				{ID: "TK-000002", OwnerEmail: "b@x.dev", Title: "vpn lenta"},
			}, nil
		},
	})

	docs := svc.Search(context.Background(), "vpn", "a@x.dev", 10)
	if len(docs) != 1 || docs[0].ID != "TK-000001" {
		t.Fatalf("owner filter must apply on the fallback path, got %+v", docs)
	}

	all := svc.Search(context.Background(), "vpn", "", 10)
	if len(all) != 2 {
		t.Fatalf("elevated viewer must see every match, got %d", len(all))
	}
}

func TestDocumentForProjectsSearchableFields(t *testing.T) {
	doc := DocumentFor(store.Ticket{
		ID:          "TK-1A2B3C",
		Title:       "Impressora parou",
		Description: "Sem tinta?",
		Requester:   "Carla",
		OwnerEmail:  "carla@nexticket.dev",
		Status:      "OPEN",
		Priority:    "HIGH",
		Category:    "Hardware",
	})
	if doc.ID != "TK-1A2B3C" || doc.OwnerEmail != "carla@nexticket.dev" || doc.Priority != "HIGH" {
		t.Fatalf("unexpected projection: %+v", doc)
	}
}
