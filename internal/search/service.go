package search

import (
	"context"
	"log"

	"nexticket/api/internal/store"
)

// TicketFinder is the Postgres fallback surface.
type TicketFinder interface {
	SearchTickets(ctx context.Context, query string, limit int) ([]store.Ticket, error)
}

// Service is the facade that tries Meilisearch first and falls back to a
// Postgres scan.
type Service struct {
	meili *Meili
	pg    TicketFinder
}

// NewService creates a search service. meili may be nil when Meilisearch
// is not configured.
func NewService(meili *Meili, pg TicketFinder) *Service {
	return &Service{meili: meili, pg: pg}
}

// Search finds tickets matching text. ownerEmail narrows results to one
// owner and must be set for non-elevated viewers.
func (s *Service) Search(ctx context.Context, text, ownerEmail string, limit int) []TicketDocument {
	if limit <= 0 {
		limit = 20
	}

	if s.meili != nil && s.meili.Healthy() {
		docs, err := s.meili.Search(text, ownerEmail, limit)
		if err == nil {
			return docs
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}

	tickets, err := s.pg.SearchTickets(ctx, text, limit)
	if err != nil {
		log.Printf("search: postgres fallback error: %v", err)
		return []TicketDocument{}
	}

	docs := make([]TicketDocument, 0, len(tickets))
	for _, t := range tickets {
		if ownerEmail != "" && t.OwnerEmail != ownerEmail {
			continue
		}
		docs = append(docs, DocumentFor(t))
	}
	return docs
}

// IndexTicket pushes a ticket to Meilisearch, fire and forget.
func (s *Service) IndexTicket(t store.Ticket) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	doc := DocumentFor(t)
	go func() {
		if err := s.meili.IndexTicket(doc); err != nil {
			log.Printf("search: index ticket %s: %v", doc.ID, err)
		}
	}()
}

// DeleteTicket removes a ticket from the index, fire and forget.
func (s *Service) DeleteTicket(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteTicket(id); err != nil {
			log.Printf("search: delete ticket %s: %v", id, err)
		}
	}()
}

// ReindexAll pushes the whole collection to Meilisearch, called once at
// startup when the index may be cold.
func (s *Service) ReindexAll(tickets []store.Ticket) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	docs := make([]TicketDocument, 0, len(tickets))
	for _, t := range tickets {
		docs = append(docs, DocumentFor(t))
	}
	if err := s.meili.IndexTickets(docs); err != nil {
		log.Printf("search: reindex tickets: %v", err)
	}
}
