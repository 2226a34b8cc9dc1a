// Package search finds tickets by free text, through Meilisearch when it
// is reachable and a Postgres ILIKE scan otherwise.
package search

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"nexticket/api/internal/store"
)

const idxTickets = "nexticket_tickets"

// TicketDocument is the searchable projection of a ticket.
type TicketDocument struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Requester   string `json:"requester"`
	OwnerEmail  string `json:"ownerEmail"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	Category    string `json:"category"`
}

// DocumentFor projects a ticket into its index shape.
func DocumentFor(t store.Ticket) TicketDocument {
	return TicketDocument{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Requester:   t.Requester,
		OwnerEmail:  t.OwnerEmail,
		Status:      t.Status,
		Priority:    t.Priority,
		Category:    t.Category,
	}
}

// Meili wraps the Meilisearch client behind a health gate.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the ticket index.
// An unreachable server is not fatal; the health loop keeps probing.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxTickets,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxTickets, err)
	}

	index := m.client.Index(idxTickets)
	filterable := []interface{}{"ownerEmail", "status", "priority", "category"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxTickets, err)
	}
	searchable := []string{"title", "description", "requester", "id"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxTickets, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the ticket index. ownerEmail restricts results to one
// owner; empty means no restriction (elevated viewer).
func (m *Meili) Search(text, ownerEmail string, limit int) ([]TicketDocument, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}

	if limit <= 0 {
		limit = 20
	}
	req := &meili.SearchRequest{
		Limit: int64(limit),
	}
	if ownerEmail != "" {
		req.Filter = fmt.Sprintf("ownerEmail = %q", ownerEmail)
	}

	resp, err := m.client.Index(idxTickets).Search(text, req)
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	docs := make([]TicketDocument, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		raw, err := json.Marshal(hit)
		if err != nil {
			continue
		}
		var doc TicketDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// IndexTicket adds or updates a ticket in the search index.
func (m *Meili) IndexTicket(doc TicketDocument) error {
	_, err := m.client.Index(idxTickets).AddDocuments([]TicketDocument{doc}, nil)
	return err
}

// IndexTickets bulk-indexes tickets.
func (m *Meili) IndexTickets(docs []TicketDocument) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := m.client.Index(idxTickets).AddDocuments(docs, nil)
	return err
}

// DeleteTicket removes a ticket from the search index.
func (m *Meili) DeleteTicket(id string) error {
	_, err := m.client.Index(idxTickets).DeleteDocument(id, nil)
	return err
}
