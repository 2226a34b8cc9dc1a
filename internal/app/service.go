package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"nexticket/api/internal/ai"
	"nexticket/api/internal/auth"
	"nexticket/api/internal/authpw"
	"nexticket/api/internal/config"
	"nexticket/api/internal/export"
	"nexticket/api/internal/filestore"
	"nexticket/api/internal/notify"
	"nexticket/api/internal/rbac"
	"nexticket/api/internal/search"
	"nexticket/api/internal/store"
	"nexticket/api/internal/tracker"
	"nexticket/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

func (s Session) Elevated() bool {
	return rbac.Elevated(rbac.Normalize(s.Role))
}

// TicketInput is the whole-object payload for ticket create and update.
// Identity, owner and requester are never taken from the client on update.
type TicketInput struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Status      string             `json:"status"`
	Priority    string             `json:"priority"`
	Category    string             `json:"category"`
	AIAnalysis  json.RawMessage    `json:"aiAnalysis,omitempty"`
	Messages    []store.Message    `json:"messages"`
	Attachments []store.Attachment `json:"attachments"`
}

// BillInput is the whole-object payload for bill create and update.
type BillInput struct {
	Title         string  `json:"title"`
	Amount        float64 `json:"amount"`
	Category      string  `json:"category"`
	Status        string  `json:"status"`
	DueDate       string  `json:"dueDate"`
	PaidDate      string  `json:"paidDate"`
	Notes         string  `json:"notes"`
	AttachmentURL string  `json:"attachmentUrl"`
}

// UserInput carries the DEV-managed account fields.
type UserInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
	Role     string `json:"role"`
	Status   string `json:"status"`
	Avatar   string `json:"avatar"`
}

var allowedTicketStatus = map[string]struct{}{
	"OPEN": {}, "IN_PROGRESS": {}, "RESOLVED": {}, "CLOSED": {},
}

var allowedTicketPriority = map[string]struct{}{
	"LOW": {}, "MEDIUM": {}, "HIGH": {}, "URGENT": {},
}

var allowedBillStatus = map[string]struct{}{
	"PENDING": {}, "PAID": {}, "OVERDUE": {},
}

var allowedBillCategory = map[string]struct{}{
	"HOUSING": {}, "UTILITIES": {}, "FOOD": {}, "TRANSPORT": {}, "LEISURE": {}, "HEALTH": {}, "OTHER": {},
}

var allowedUserStatus = map[string]struct{}{
	"ACTIVE": {}, "INACTIVE": {},
}

type dataStore interface {
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	CreateUser(context.Context, store.User) error
	UpdateUser(context.Context, store.User) error
	UpdateUserPassword(context.Context, string, string) error
	ListUsers(context.Context) ([]store.User, error)
	ListActiveEmailsByRole(context.Context, string) ([]string, error)

	ListTickets(context.Context) ([]store.Ticket, error)
	InsertTicket(context.Context, store.Ticket) (store.Ticket, error)
	UpdateTicket(context.Context, store.Ticket) error
	DeleteTicket(context.Context, string) error
	TicketStatusCounts(context.Context) (store.TicketStatusCounts, error)
	SearchTickets(context.Context, string, int) ([]store.Ticket, error)

	ListBills(context.Context) ([]store.Bill, error)
	InsertBill(context.Context, store.Bill) (store.Bill, error)
	UpdateBill(context.Context, store.Bill) error
	DeleteBill(context.Context, string) error

	ListNotifications(context.Context, string) ([]store.Notification, error)
	InsertNotifications(context.Context, []store.Notification) error
	MarkNotificationRead(context.Context, string, string) error
	DeleteNotification(context.Context, string, string) error

	Ping(ctx context.Context) error
}

// sessionStore keeps refresh tokens. Redis when configured, the row store
// otherwise.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// sessionContext is the per-login application context: the signed-in user
// plus one tracker per record family. Created on login, torn down on
// logout.
type sessionContext struct {
	user    store.User
	tickets *tracker.Tracker[store.Ticket]
	bills   *tracker.Tracker[store.Bill]
	loaded  bool
	mu      sync.Mutex
}

// Options carries the optional collaborators. Any of them may be nil.
type Options struct {
	Sessions   sessionStore
	Meili      *search.Meili
	Files      *filestore.Service
	Classifier *ai.Classifier
	Mailer     notify.Mailer
}

type Service struct {
	cfg         config.Config
	store       dataStore
	sessions    sessionStore
	passwords   *authpw.Service
	fanout      *notify.Fanout
	ticketRules *notify.TicketRules
	billRules   *notify.BillRules
	search      *search.Service
	files       *filestore.Service
	classifier  *ai.Classifier
	exporter    *export.Service

	mu   sync.Mutex
	open map[string]*sessionContext
}

func New(cfg config.Config, pg *store.PostgresStore, opts Options) *Service {
	sessions := opts.Sessions
	if sessions == nil {
		sessions = pg
	}
	fanout := notify.NewFanout(pg)
	if opts.Mailer != nil {
		fanout.WithMailer(opts.Mailer)
	}
	return &Service{
		cfg:         cfg,
		store:       pg,
		sessions:    sessions,
		passwords:   authpw.NewService(pg),
		fanout:      fanout,
		ticketRules: notify.NewTicketRules(fanout),
		billRules:   notify.NewBillRules(fanout),
		search:      search.NewService(opts.Meili, pg),
		files:       opts.Files,
		classifier:  opts.Classifier,
		exporter:    export.NewService(),
		open:        make(map[string]*sessionContext),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap reindexes the ticket search engine; the index may be cold
// after a restart.
func (s *Service) Bootstrap(ctx context.Context) error {
	tickets, err := s.store.ListTickets(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap tickets: %w", err)
	}
	s.search.ReindexAll(tickets)
	return nil
}

// --- sessions ---

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}

	session, err := s.issueSession(ctx, user)
	if err != nil {
		return Session{}, err
	}

	// fresh application context for this login
	s.mu.Lock()
	s.open[user.ID] = s.newSessionContext(user)
	s.mu.Unlock()

	return session, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	if user.Status != "ACTIVE" {
		return Session{}, auth.ErrInvalidToken
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.Name,
		Email:        user.Email,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	if user.Status != "ACTIVE" {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.Name,
		Email:     user.Email,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Logout revokes the refresh token and tears down the application
// context for this user.
func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	s.mu.Lock()
	delete(s.open, session.UserID)
	s.mu.Unlock()
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// --- session contexts ---

func (s *Service) newSessionContext(user store.User) *sessionContext {
	actor := notify.Actor{
		Email:    user.Email,
		Name:     user.Name,
		Elevated: rbac.Elevated(rbac.Normalize(user.Role)),
	}

	sc := &sessionContext{user: user}
	sc.tickets = tracker.New[store.Ticket](ticketRemote{s.store}, tracker.Hooks[store.Ticket]{
		RecordCreated: func(ctx context.Context, t store.Ticket) {
			s.ticketRules.Created(ctx, actor, t)
			s.search.IndexTicket(t)
		},
		RecordUpdated: func(ctx context.Context, old, updated store.Ticket) {
			s.ticketRules.Updated(ctx, actor, old, updated)
			s.search.IndexTicket(updated)
		},
	})
	sc.bills = tracker.New[store.Bill](billRemote{s.store}, tracker.Hooks[store.Bill]{
		RecordUpdated: func(ctx context.Context, old, updated store.Bill) {
			owner, err := s.store.GetUserByID(ctx, updated.UserID)
			if err != nil {
				log.Printf("app: resolve bill owner %s: %v", updated.UserID, err)
				return
			}
			s.billRules.Updated(ctx, actor, old, updated, owner.Email)
		},
	})
	return sc
}

// contextFor returns this session's application context, creating it
// lazily when the process restarted under a still-valid token.
func (s *Service) contextFor(ctx context.Context, session Session) (*sessionContext, error) {
	s.mu.Lock()
	sc, ok := s.open[session.UserID]
	if !ok {
		user, err := s.store.GetUserByID(ctx, session.UserID)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		sc = s.newSessionContext(user)
		s.open[session.UserID] = sc
	}
	s.mu.Unlock()

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if !sc.loaded {
		if err := sc.tickets.Load(ctx); err != nil {
			return nil, err
		}
		if err := sc.bills.Load(ctx); err != nil {
			return nil, err
		}
		sc.loaded = true
	}
	return sc, nil
}

// ticketRemote adapts the row store to the tracker's persistence surface.
type ticketRemote struct{ store dataStore }

func (r ticketRemote) List(ctx context.Context) ([]store.Ticket, error) {
	return r.store.ListTickets(ctx)
}
func (r ticketRemote) Insert(ctx context.Context, t store.Ticket) (store.Ticket, error) {
	return r.store.InsertTicket(ctx, t)
}
func (r ticketRemote) Update(ctx context.Context, t store.Ticket) error {
	return r.store.UpdateTicket(ctx, t)
}
func (r ticketRemote) Delete(ctx context.Context, id string) error {
	return r.store.DeleteTicket(ctx, id)
}

type billRemote struct{ store dataStore }

func (r billRemote) List(ctx context.Context) ([]store.Bill, error) {
	return r.store.ListBills(ctx)
}
func (r billRemote) Insert(ctx context.Context, b store.Bill) (store.Bill, error) {
	return r.store.InsertBill(ctx, b)
}
func (r billRemote) Update(ctx context.Context, b store.Bill) error {
	return r.store.UpdateBill(ctx, b)
}
func (r billRemote) Delete(ctx context.Context, id string) error {
	return r.store.DeleteBill(ctx, id)
}

// --- tickets ---

func (s *Service) ListTickets(ctx context.Context, session Session) ([]store.Ticket, error) {
	sc, err := s.contextFor(ctx, session)
	if err != nil {
		return nil, err
	}
	return sc.tickets.Visible(session.Email, session.Elevated()), nil
}

func (s *Service) GetTicket(ctx context.Context, session Session, id string) (store.Ticket, error) {
	sc, err := s.contextFor(ctx, session)
	if err != nil {
		return store.Ticket{}, err
	}
	ticket, ok := sc.tickets.Get(id)
	if !ok || (!session.Elevated() && ticket.OwnerEmail != session.Email) {
		return store.Ticket{}, domainError(http.StatusNotFound, "NOT_FOUND", "Ticket not found", nil)
	}
	sc.tickets.SetOpen(id)
	return ticket, nil
}

func (s *Service) CreateTicket(ctx context.Context, session Session, input TicketInput) (store.Ticket, error) {
	if strings.TrimSpace(input.Title) == "" || strings.TrimSpace(input.Description) == "" {
		return store.Ticket{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title and description are required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = "MEDIUM"
	}
	if _, ok := allowedTicketPriority[priority]; !ok {
		return store.Ticket{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid priority", nil)
	}

	sc, err := s.contextFor(ctx, session)
	if err != nil {
		return store.Ticket{}, err
	}

	now := time.Now()
	ticket := store.Ticket{
		ID:          util.NewTicketTag(),
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Requester:   session.UserName,
		OwnerEmail:  session.Email,
		Status:      "OPEN",
		Priority:    priority,
		Category:    input.Category,
		Messages:    []store.Message{},
		Attachments: []store.Attachment{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := sc.tickets.Create(ctx, ticket); err != nil {
		return store.Ticket{}, err
	}
	created, _ := sc.tickets.Get(ticket.ID)
	return created, nil
}

func (s *Service) UpdateTicket(ctx context.Context, session Session, id string, input TicketInput) (store.Ticket, error) {
	sc, err := s.contextFor(ctx, session)
	if err != nil {
		return store.Ticket{}, err
	}
	old, ok := sc.tickets.Get(id)
	if !ok || (!session.Elevated() && old.OwnerEmail != session.Email) {
		return store.Ticket{}, domainError(http.StatusNotFound, "NOT_FOUND", "Ticket not found", nil)
	}
	if _, ok := allowedTicketStatus[input.Status]; !ok {
		return store.Ticket{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid status", nil)
	}
	if _, ok := allowedTicketPriority[input.Priority]; !ok {
		return store.Ticket{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid priority", nil)
	}

	updated := old
	updated.Title = input.Title
	updated.Description = input.Description
	updated.Status = input.Status
	updated.Priority = input.Priority
	updated.Category = input.Category
	if input.AIAnalysis != nil {
		updated.AIAnalysis = input.AIAnalysis
	}
	if input.Messages != nil {
		updated.Messages = input.Messages
	}
	if input.Attachments != nil {
		updated.Attachments = input.Attachments
	}
	updated.UpdatedAt = time.Now()

	if err := sc.tickets.Update(ctx, updated); err != nil {
		return store.Ticket{}, err
	}
	return updated, nil
}

func (s *Service) AddTicketMessage(ctx context.Context, session Session, id, text string) (store.Ticket, error) {
	if strings.TrimSpace(text) == "" {
		return store.Ticket{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text is required", nil)
	}
	sc, err := s.contextFor(ctx, session)
	if err != nil {
		return store.Ticket{}, err
	}
	old, ok := sc.tickets.Get(id)
	if !ok || (!session.Elevated() && old.OwnerEmail != session.Email) {
		return store.Ticket{}, domainError(http.StatusNotFound, "NOT_FOUND", "Ticket not found", nil)
	}

	sender := store.SenderUser
	if session.Elevated() {
		sender = store.SenderAgent
	}

	updated := old
	updated.Messages = append(append([]store.Message{}, old.Messages...), store.Message{
		ID:        util.NewID("msg"),
		Sender:    sender,
		Text:      text,
		CreatedAt: time.Now(),
	})
	updated.UpdatedAt = time.Now()

	if err := sc.tickets.Update(ctx, updated); err != nil {
		return store.Ticket{}, err
	}
	return updated, nil
}

// DeleteTicketMessage removes one entry from the conversation log.
// Elevated roles only; the log is append-only for everyone else.
func (s *Service) DeleteTicketMessage(ctx context.Context, session Session, id, messageID string) (store.Ticket, error) {
	if !session.Elevated() {
		return store.Ticket{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	sc, err := s.contextFor(ctx, session)
	if err != nil {
		return store.Ticket{}, err
	}
	old, ok := sc.tickets.Get(id)
	if !ok {
		return store.Ticket{}, domainError(http.StatusNotFound, "NOT_FOUND", "Ticket not found", nil)
	}

	kept := make([]store.Message, 0, len(old.Messages))
	found := false
	for _, m := range old.Messages {
		if m.ID == messageID {
			found = true
			continue
		}
		kept = append(kept, m)
	}
	if !found {
		return store.Ticket{}, domainError(http.StatusNotFound, "NOT_FOUND", "Message not found", nil)
	}

	updated := old
	updated.Messages = kept
	updated.UpdatedAt = time.Now()
	if err := sc.tickets.Update(ctx, updated); err != nil {
		return store.Ticket{}, err
	}
	return updated, nil
}

func (s *Service) DeleteTicket(ctx context.Context, session Session, id string) error {
	if !s.Can(session.Role, rbac.ActionDeleteRecord) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	sc, err := s.contextFor(ctx, session)
	if err != nil {
		return err
	}
	if _, ok := sc.tickets.Get(id); !ok {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Ticket not found", nil)
	}
	if err := sc.tickets.Remove(ctx, id); err != nil {
		return err
	}
	s.search.DeleteTicket(id)
	return nil
}

// AddTicketAttachment uploads the file and appends its metadata to the
// ticket's attachment set.
func (s *Service) AddTicketAttachment(ctx context.Context, session Session, id, filename, contentType string, size int64, body io.Reader) (store.Ticket, error) {
	if s.files == nil {
		return store.Ticket{}, domainError(http.StatusServiceUnavailable, "FILES_UNAVAILABLE", "File storage not configured", nil)
	}
	sc, err := s.contextFor(ctx, session)
	if err != nil {
		return store.Ticket{}, err
	}
	old, ok := sc.tickets.Get(id)
	if !ok || (!session.Elevated() && old.OwnerEmail != session.Email) {
		return store.Ticket{}, domainError(http.StatusNotFound, "NOT_FOUND", "Ticket not found", nil)
	}

	_, url, err := s.files.Upload(ctx, filestore.TicketBucket, id, filename, contentType, size, body)
	if err != nil {
		return store.Ticket{}, err
	}

	updated := old
	updated.Attachments = append(append([]store.Attachment{}, old.Attachments...), store.Attachment{
		Name: filename,
		URL:  url,
		Type: contentType,
		Size: size,
	})
	updated.UpdatedAt = time.Now()
	if err := sc.tickets.Update(ctx, updated); err != nil {
		return store.Ticket{}, err
	}
	return updated, nil
}

// AnalyzeTicket asks the classifier for triage suggestions and caches the
// result on the ticket. A classifier failure degrades to no suggestion.
func (s *Service) AnalyzeTicket(ctx context.Context, session Session, id string) (*ai.TicketAnalysis, error) {
	sc, err := s.contextFor(ctx, session)
	if err != nil {
		return nil, err
	}
	ticket, ok := sc.tickets.Get(id)
	if !ok || (!session.Elevated() && ticket.OwnerEmail != session.Email) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Ticket not found", nil)
	}

	if s.classifier == nil {
		return nil, nil
	}

	analysis, err := s.classifier.AnalyzeTicket(ctx, ticket.Title, ticket.Description)
	if err != nil {
		log.Printf("ai: ticket %s analysis: %v", id, err)
		return nil, nil
	}

	raw, err := json.Marshal(analysis)
	if err != nil {
		return nil, fmt.Errorf("encode analysis: %w", err)
	}
	updated := ticket
	updated.AIAnalysis = raw
	updated.UpdatedAt = time.Now()
	if err := sc.tickets.Update(ctx, updated); err != nil {
		return nil, err
	}
	return analysis, nil
}

func (s *Service) SearchTickets(ctx context.Context, session Session, query string, limit int) []search.TicketDocument {
	ownerEmail := ""
	if !session.Elevated() {
		ownerEmail = session.Email
	}
	return s.search.Search(ctx, query, ownerEmail, limit)
}

func (s *Service) TicketSummary(ctx context.Context) (store.TicketStatusCounts, error) {
	return s.store.TicketStatusCounts(ctx)
}

func (s *Service) ExportTicket(ctx context.Context, session Session, id string) (*export.Result, error) {
	ticket, err := s.GetTicket(ctx, session, id)
	if err != nil {
		return nil, err
	}
	return s.exporter.TicketReport(ticket)
}

// --- bills ---

func (s *Service) ListBills(ctx context.Context, session Session) ([]store.Bill, error) {
	sc, err := s.contextFor(ctx, session)
	if err != nil {
		return nil, err
	}
	return sc.bills.Visible(session.UserID, session.Elevated()), nil
}

func (s *Service) GetBill(ctx context.Context, session Session, id string) (store.Bill, error) {
	sc, err := s.contextFor(ctx, session)
	if err != nil {
		return store.Bill{}, err
	}
	bill, ok := sc.bills.Get(id)
	if !ok || (!session.Elevated() && bill.UserID != session.UserID) {
		return store.Bill{}, domainError(http.StatusNotFound, "NOT_FOUND", "Bill not found", nil)
	}
	sc.bills.SetOpen(id)
	return bill, nil
}

func validateBillInput(input BillInput) error {
	if strings.TrimSpace(input.Title) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if input.Amount <= 0 {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "amount must be positive", nil)
	}
	if _, ok := allowedBillCategory[input.Category]; !ok {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid category", nil)
	}
	if input.DueDate == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "dueDate is required", nil)
	}
	if _, err := time.Parse("2006-01-02", input.DueDate); err != nil {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "dueDate must be YYYY-MM-DD", nil)
	}
	return nil
}

func (s *Service) CreateBill(ctx context.Context, session Session, input BillInput) (store.Bill, error) {
	if err := validateBillInput(input); err != nil {
		return store.Bill{}, err
	}
	status := input.Status
	if status == "" {
		status = "PENDING"
	}
	if _, ok := allowedBillStatus[status]; !ok {
		return store.Bill{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid status", nil)
	}

	sc, err := s.contextFor(ctx, session)
	if err != nil {
		return store.Bill{}, err
	}

	now := time.Now()
	// provisional identity; the store assigns the real one on insert
	bill := store.Bill{
		ID:        util.NewID("tmp"),
		UserID:    session.UserID,
		Title:     strings.TrimSpace(input.Title),
		Amount:    input.Amount,
		Category:  input.Category,
		Status:    status,
		DueDate:   input.DueDate,
		PaidDate:  input.PaidDate,
		Notes:     input.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// the new bill opens as the detail view; the open id follows the
	// re-key to the store-assigned identity
	sc.bills.SetOpen(bill.ID)
	if err := sc.bills.Create(ctx, bill); err != nil {
		return store.Bill{}, err
	}
	created, ok := sc.bills.Get(sc.bills.OpenID())
	if !ok {
		return bill, nil
	}
	return created, nil
}

func (s *Service) UpdateBill(ctx context.Context, session Session, id string, input BillInput) (store.Bill, error) {
	sc, err := s.contextFor(ctx, session)
	if err != nil {
		return store.Bill{}, err
	}
	old, ok := sc.bills.Get(id)
	if !ok || (!session.Elevated() && old.UserID != session.UserID) {
		return store.Bill{}, domainError(http.StatusNotFound, "NOT_FOUND", "Bill not found", nil)
	}
	if err := validateBillInput(input); err != nil {
		return store.Bill{}, err
	}
	if _, ok := allowedBillStatus[input.Status]; !ok {
		return store.Bill{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid status", nil)
	}

	updated := old
	updated.Title = strings.TrimSpace(input.Title)
	updated.Amount = input.Amount
	updated.Category = input.Category
	updated.Status = input.Status
	updated.DueDate = input.DueDate
	updated.PaidDate = input.PaidDate
	updated.Notes = input.Notes
	if input.AttachmentURL != "" {
		updated.AttachmentURL = input.AttachmentURL
	}
	updated.UpdatedAt = time.Now()

	if err := sc.bills.Update(ctx, updated); err != nil {
		return store.Bill{}, err
	}
	return updated, nil
}

// MarkBillPaid flips the bill to PAID with today's date.
func (s *Service) MarkBillPaid(ctx context.Context, session Session, id string) (store.Bill, error) {
	sc, err := s.contextFor(ctx, session)
	if err != nil {
		return store.Bill{}, err
	}
	old, ok := sc.bills.Get(id)
	if !ok || (!session.Elevated() && old.UserID != session.UserID) {
		return store.Bill{}, domainError(http.StatusNotFound, "NOT_FOUND", "Bill not found", nil)
	}

	updated := old
	updated.Status = "PAID"
	updated.PaidDate = time.Now().Format("2006-01-02")
	updated.UpdatedAt = time.Now()
	if err := sc.bills.Update(ctx, updated); err != nil {
		return store.Bill{}, err
	}
	return updated, nil
}

func (s *Service) DeleteBill(ctx context.Context, session Session, id string) error {
	sc, err := s.contextFor(ctx, session)
	if err != nil {
		return err
	}
	bill, ok := sc.bills.Get(id)
	if !ok || (!session.Elevated() && bill.UserID != session.UserID) {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Bill not found", nil)
	}
	return sc.bills.Remove(ctx, id)
}

// AttachBillReceipt uploads a receipt and stores its public URL on the
// bill. Bills carry a single attachment, unlike tickets.
func (s *Service) AttachBillReceipt(ctx context.Context, session Session, id, filename, contentType string, size int64, body io.Reader) (store.Bill, error) {
	if s.files == nil {
		return store.Bill{}, domainError(http.StatusServiceUnavailable, "FILES_UNAVAILABLE", "File storage not configured", nil)
	}
	sc, err := s.contextFor(ctx, session)
	if err != nil {
		return store.Bill{}, err
	}
	old, ok := sc.bills.Get(id)
	if !ok || (!session.Elevated() && old.UserID != session.UserID) {
		return store.Bill{}, domainError(http.StatusNotFound, "NOT_FOUND", "Bill not found", nil)
	}

	_, url, err := s.files.Upload(ctx, filestore.BillBucket, id, filename, contentType, size, body)
	if err != nil {
		return store.Bill{}, err
	}

	updated := old
	updated.AttachmentURL = url
	updated.UpdatedAt = time.Now()
	if err := sc.bills.Update(ctx, updated); err != nil {
		return store.Bill{}, err
	}
	return updated, nil
}

// AnalyzeBill asks the classifier for a spending insight and caches it.
func (s *Service) AnalyzeBill(ctx context.Context, session Session, id string) (*ai.FinanceAnalysis, error) {
	sc, err := s.contextFor(ctx, session)
	if err != nil {
		return nil, err
	}
	bill, ok := sc.bills.Get(id)
	if !ok || (!session.Elevated() && bill.UserID != session.UserID) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Bill not found", nil)
	}

	if s.classifier == nil {
		return nil, nil
	}

	analysis, err := s.classifier.AnalyzeBill(ctx, bill.Title, bill.Amount, bill.Category)
	if err != nil {
		log.Printf("ai: bill %s analysis: %v", id, err)
		return nil, nil
	}

	raw, err := json.Marshal(analysis)
	if err != nil {
		return nil, fmt.Errorf("encode analysis: %w", err)
	}
	updated := bill
	updated.AIAnalysis = raw
	updated.UpdatedAt = time.Now()
	if err := sc.bills.Update(ctx, updated); err != nil {
		return nil, err
	}
	return analysis, nil
}

// MonthlyStatement renders the PDF statement for one month ("2026-08").
func (s *Service) MonthlyStatement(ctx context.Context, session Session, month string) (*export.Result, error) {
	if _, err := time.Parse("2006-01", month); err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "month must be YYYY-MM", nil)
	}
	bills, err := s.ListBills(ctx, session)
	if err != nil {
		return nil, err
	}
	return s.exporter.MonthlyStatement(session.UserName, month, bills)
}

// --- notifications ---

func (s *Service) ListNotifications(ctx context.Context, session Session) ([]store.Notification, error) {
	return s.store.ListNotifications(ctx, session.Email)
}

func (s *Service) MarkNotificationRead(ctx context.Context, session Session, id string) error {
	return s.store.MarkNotificationRead(ctx, id, session.Email)
}

func (s *Service) DeleteNotification(ctx context.Context, session Session, id string) error {
	return s.store.DeleteNotification(ctx, id, session.Email)
}

// --- user management (DEV only) ---

func (s *Service) ListUsers(ctx context.Context, session Session) ([]store.User, error) {
	if !s.Can(session.Role, rbac.ActionManageUsers) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return s.store.ListUsers(ctx)
}

func (s *Service) CreateUser(ctx context.Context, session Session, input UserInput) (store.User, error) {
	if !s.Can(session.Role, rbac.ActionManageUsers) {
		return store.User{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	user, err := s.passwords.CreateUser(ctx, authpw.CreateUserRequest{
		Name:     input.Name,
		Email:    input.Email,
		Password: input.Password,
		Role:     input.Role,
		Avatar:   input.Avatar,
	})
	if err != nil {
		return store.User{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	return user, nil
}

// UpdateUser changes name, role, status and avatar. Toggling status to
// INACTIVE gates the next login; live sessions expire with their token.
func (s *Service) UpdateUser(ctx context.Context, session Session, id string, input UserInput) (store.User, error) {
	if !s.Can(session.Role, rbac.ActionManageUsers) {
		return store.User{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return store.User{}, err
	}

	if strings.TrimSpace(input.Name) != "" {
		user.Name = strings.TrimSpace(input.Name)
	}
	if input.Role != "" {
		user.Role = string(rbac.Normalize(input.Role))
	}
	if input.Status != "" {
		if _, ok := allowedUserStatus[input.Status]; !ok {
			return store.User{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid status", nil)
		}
		user.Status = input.Status
	}
	if input.Avatar != "" {
		user.Avatar = input.Avatar
	}

	if err := s.store.UpdateUser(ctx, user); err != nil {
		return store.User{}, err
	}
	return user, nil
}

func (s *Service) ResetUserPassword(ctx context.Context, session Session, id, newPassword string) error {
	if !s.Can(session.Role, rbac.ActionManageUsers) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if err := s.passwords.ResetPassword(ctx, id, newPassword); err != nil {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	return nil
}
