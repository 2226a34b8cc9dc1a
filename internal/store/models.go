package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         string
	Status       string
	Avatar       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Sender tags for conversation entries.
const (
	SenderUser  = "USER"
	SenderAgent = "AGENT"
)

// Message is one entry in a ticket's conversation log. The log is
// append-only in normal flow; only DEV users may remove a single entry.
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

type Ticket struct {
	ID          string
	Title       string
	Description string
	Requester   string
	OwnerEmail  string
	Status      string
	Priority    string
	Category    string
	AIAnalysis  json.RawMessage
	Messages    []Message
	Attachments []Attachment
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Key returns the ticket's stable identity.
func (t Ticket) Key() string { return t.ID }

// Owner returns the identity used for visibility filtering.
func (t Ticket) Owner() string { return t.OwnerEmail }

type Bill struct {
	ID            string
	UserID        string
	Title         string
	Amount        float64
	Category      string
	Status        string
	DueDate       string
	PaidDate      string
	Notes         string
	AttachmentURL string
	AIAnalysis    json.RawMessage
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (b Bill) Key() string   { return b.ID }
func (b Bill) Owner() string { return b.UserID }

type Notification struct {
	ID             string
	RecipientEmail string
	TicketID       string
	Message        string
	Read           bool
	CreatedAt      time.Time
}

// TicketStatusCounts feeds the dashboard summary cards.
type TicketStatusCounts struct {
	Open       int
	InProgress int
	Resolved   int
	Closed     int
}
