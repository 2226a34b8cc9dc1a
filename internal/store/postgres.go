package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- users ---

const userColumns = `id, name, email, password_hash, role, status, avatar, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.Status, &user.Avatar, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, email)
	user, err := scanUser(row)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	user, err := scanUser(row)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, status, avatar)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.Role, user.Status, user.Avatar)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, user User) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET name=$2, role=$3, status=$4, avatar=$5, updated_at=NOW()
		WHERE id=$1
	`, user.ID, user.Name, user.Role, user.Status, user.Avatar)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

// ListActiveEmailsByRole backs role fan-out: every ACTIVE identity holding
// the role, in one indexed query.
func (s *PostgresStore) ListActiveEmailsByRole(ctx context.Context, role string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT email FROM users WHERE role=$1 AND status='ACTIVE' ORDER BY email
	`, role)
	if err != nil {
		return nil, fmt.Errorf("list emails by role: %w", err)
	}
	defer rows.Close()

	emails := make([]string, 0)
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate emails: %w", err)
	}
	return emails, nil
}

// --- tickets ---

const ticketColumns = `id, title, description, requester, owner_email, status, priority, category, ai_analysis, messages, attachments, created_at, updated_at`

func scanTicket(row interface{ Scan(...any) error }) (Ticket, error) {
	var (
		ticket      Ticket
		analysis    []byte
		messages    []byte
		attachments []byte
	)
	err := row.Scan(&ticket.ID, &ticket.Title, &ticket.Description, &ticket.Requester, &ticket.OwnerEmail,
		&ticket.Status, &ticket.Priority, &ticket.Category, &analysis, &messages, &attachments,
		&ticket.CreatedAt, &ticket.UpdatedAt)
	if err != nil {
		return Ticket{}, err
	}
	if len(analysis) > 0 && string(analysis) != "null" {
		ticket.AIAnalysis = json.RawMessage(analysis)
	}
	if len(messages) > 0 {
		if err := json.Unmarshal(messages, &ticket.Messages); err != nil {
			return Ticket{}, fmt.Errorf("decode messages: %w", err)
		}
	}
	if ticket.Messages == nil {
		ticket.Messages = []Message{}
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &ticket.Attachments); err != nil {
			return Ticket{}, fmt.Errorf("decode attachments: %w", err)
		}
	}
	if ticket.Attachments == nil {
		ticket.Attachments = []Attachment{}
	}
	return ticket, nil
}

func encodeTicketJSON(ticket Ticket) (analysis, messages, attachments []byte, err error) {
	analysis = []byte("null")
	if len(ticket.AIAnalysis) > 0 {
		analysis = ticket.AIAnalysis
	}
	if ticket.Messages == nil {
		ticket.Messages = []Message{}
	}
	messages, err = json.Marshal(ticket.Messages)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode messages: %w", err)
	}
	if ticket.Attachments == nil {
		ticket.Attachments = []Attachment{}
	}
	attachments, err = json.Marshal(ticket.Attachments)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode attachments: %w", err)
	}
	return analysis, messages, attachments, nil
}

func (s *PostgresStore) ListTickets(ctx context.Context) ([]Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ticketColumns+` FROM tickets ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	items := make([]Ticket, 0)
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		items = append(items, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tickets: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetTicket(ctx context.Context, ticketID string) (Ticket, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, ticketID)
	return scanTicket(row)
}

func (s *PostgresStore) InsertTicket(ctx context.Context, ticket Ticket) (Ticket, error) {
	analysis, messages, attachments, err := encodeTicketJSON(ticket)
	if err != nil {
		return Ticket{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO tickets (id, title, description, requester, owner_email, status, priority, category, ai_analysis, messages, attachments)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+ticketColumns+`
	`, ticket.ID, ticket.Title, ticket.Description, ticket.Requester, ticket.OwnerEmail,
		ticket.Status, ticket.Priority, ticket.Category, analysis, messages, attachments)
	inserted, err := scanTicket(row)
	if err != nil {
		return Ticket{}, fmt.Errorf("insert ticket: %w", err)
	}
	return inserted, nil
}

// UpdateTicket replaces the mutable fields only; id, requester and
// owner_email never change after creation. updated_at refreshes on every
// call so optimistic clients can reconcile.
func (s *PostgresStore) UpdateTicket(ctx context.Context, ticket Ticket) error {
	analysis, messages, attachments, err := encodeTicketJSON(ticket)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE tickets
		SET title=$2, description=$3, status=$4, priority=$5, category=$6,
			ai_analysis=$7, messages=$8, attachments=$9, updated_at=NOW()
		WHERE id=$1
	`, ticket.ID, ticket.Title, ticket.Description, ticket.Status, ticket.Priority, ticket.Category,
		analysis, messages, attachments)
	if err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteTicket(ctx context.Context, ticketID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tickets WHERE id=$1`, ticketID)
	if err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) TicketStatusCounts(ctx context.Context) (TicketStatusCounts, error) {
	var counts TicketStatusCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status='OPEN'),
			COUNT(*) FILTER (WHERE status='IN_PROGRESS'),
			COUNT(*) FILTER (WHERE status='RESOLVED'),
			COUNT(*) FILTER (WHERE status='CLOSED')
		FROM tickets
	`).Scan(&counts.Open, &counts.InProgress, &counts.Resolved, &counts.Closed)
	if err != nil {
		return TicketStatusCounts{}, fmt.Errorf("ticket status counts: %w", err)
	}
	return counts, nil
}

// SearchTickets is the fallback when Meilisearch is unavailable.
func (s *PostgresStore) SearchTickets(ctx context.Context, query string, limit int) ([]Ticket, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + strings.TrimSpace(query) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE title ILIKE $1 OR description ILIKE $1 OR requester ILIKE $1
		ORDER BY created_at DESC
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search tickets: %w", err)
	}
	defer rows.Close()

	items := make([]Ticket, 0)
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		items = append(items, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tickets: %w", err)
	}
	return items, nil
}

// --- bills ---

const billColumns = `id, user_id, title, amount, category, status, due_date, COALESCE(paid_date, ''), notes, attachment_url, ai_analysis, created_at, updated_at`

func scanBill(row interface{ Scan(...any) error }) (Bill, error) {
	var (
		bill     Bill
		analysis []byte
	)
	err := row.Scan(&bill.ID, &bill.UserID, &bill.Title, &bill.Amount, &bill.Category, &bill.Status,
		&bill.DueDate, &bill.PaidDate, &bill.Notes, &bill.AttachmentURL, &analysis,
		&bill.CreatedAt, &bill.UpdatedAt)
	if err != nil {
		return Bill{}, err
	}
	if len(analysis) > 0 && string(analysis) != "null" {
		bill.AIAnalysis = json.RawMessage(analysis)
	}
	return bill, nil
}

func (s *PostgresStore) ListBills(ctx context.Context) ([]Bill, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+billColumns+` FROM bills ORDER BY due_date ASC`)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	defer rows.Close()

	items := make([]Bill, 0)
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		items = append(items, bill)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bills: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetBill(ctx context.Context, billID string) (Bill, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+billColumns+` FROM bills WHERE id=$1`, billID)
	return scanBill(row)
}

// InsertBill lets the store assign the identity; the canonical row is
// returned so optimistic callers can re-key their local entry.
func (s *PostgresStore) InsertBill(ctx context.Context, bill Bill) (Bill, error) {
	analysis := []byte("null")
	if len(bill.AIAnalysis) > 0 {
		analysis = bill.AIAnalysis
	}
	var paidDate any
	if bill.PaidDate != "" {
		paidDate = bill.PaidDate
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO bills (user_id, title, amount, category, status, due_date, paid_date, notes, attachment_url, ai_analysis)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+billColumns+`
	`, bill.UserID, bill.Title, bill.Amount, bill.Category, bill.Status, bill.DueDate, paidDate,
		bill.Notes, bill.AttachmentURL, analysis)
	inserted, err := scanBill(row)
	if err != nil {
		return Bill{}, fmt.Errorf("insert bill: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) UpdateBill(ctx context.Context, bill Bill) error {
	analysis := []byte("null")
	if len(bill.AIAnalysis) > 0 {
		analysis = bill.AIAnalysis
	}
	var paidDate any
	if bill.PaidDate != "" {
		paidDate = bill.PaidDate
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE bills
		SET title=$2, amount=$3, category=$4, status=$5, due_date=$6, paid_date=$7,
			notes=$8, attachment_url=$9, ai_analysis=$10, updated_at=NOW()
		WHERE id=$1
	`, bill.ID, bill.Title, bill.Amount, bill.Category, bill.Status, bill.DueDate, paidDate,
		bill.Notes, bill.AttachmentURL, analysis)
	if err != nil {
		return fmt.Errorf("update bill: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteBill(ctx context.Context, billID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM bills WHERE id=$1`, billID)
	if err != nil {
		return fmt.Errorf("delete bill: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- notifications ---

func (s *PostgresStore) ListNotifications(ctx context.Context, recipientEmail string) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient_email, ticket_id, message, read, created_at
		FROM notifications
		WHERE recipient_email=$1
		ORDER BY created_at DESC
	`, recipientEmail)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var item Notification
		if err := rows.Scan(&item.ID, &item.RecipientEmail, &item.TicketID, &item.Message, &item.Read, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

// InsertNotifications submits a fan-out batch as a single statement.
func (s *PostgresStore) InsertNotifications(ctx context.Context, items []Notification) error {
	if len(items) == 0 {
		return nil
	}
	var (
		builder strings.Builder
		args    []any
	)
	builder.WriteString(`INSERT INTO notifications (id, recipient_email, ticket_id, message, read) VALUES `)
	for i, item := range items {
		if i > 0 {
			builder.WriteString(", ")
		}
		base := i * 5
		fmt.Fprintf(&builder, "($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5)
		args = append(args, item.ID, item.RecipientEmail, item.TicketID, item.Message, item.Read)
	}
	if _, err := s.db.ExecContext(ctx, builder.String(), args...); err != nil {
		return fmt.Errorf("insert notifications: %w", err)
	}
	return nil
}

// MarkNotificationRead flips the read flag. Scoped to the recipient so a
// session can only touch its own notifications.
func (s *PostgresStore) MarkNotificationRead(ctx context.Context, notificationID, recipientEmail string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE notifications SET read=TRUE WHERE id=$1 AND recipient_email=$2`, notificationID, recipientEmail)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteNotification(ctx context.Context, notificationID, recipientEmail string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id=$1 AND recipient_email=$2`, notificationID, recipientEmail)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

// --- refresh sessions (Postgres fallback when Redis is not configured) ---

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

// LookupRefreshSession returns the user id bound to a live refresh token.
// The user row is re-read by the caller so role/status changes apply.
func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	const query = `
		SELECT user_id
		FROM refresh_sessions
		WHERE token_hash = $1
			AND revoked_at IS NULL
			AND expires_at > NOW()
	`
	var userID string
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		return "", fmt.Errorf("lookup refresh session: %w", err)
	}
	return userID, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}
