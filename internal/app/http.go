package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nexticket/api/internal/auth"
	"nexticket/api/internal/authpw"
	"nexticket/api/internal/export"
	"nexticket/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/login" {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Login(r.Context(), body.Email, body.Password)
		if err != nil {
			if errors.Is(err, authpw.ErrAccountInactive) {
				writeError(w, http.StatusForbidden, "ACCOUNT_INACTIVE", "Account is inactive", nil)
				return
			}
			if errors.Is(err, authpw.ErrInvalidCredentials) {
				writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
				return
			}
			writeError(w, http.StatusInternalServerError, "LOGIN_FAILED", "Login failed", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":        session.Token,
			"refreshToken": session.RefreshToken,
			"userId":       session.UserID,
			"userName":     session.UserName,
			"email":        session.Email,
			"role":         session.Role,
			"expiresAt":    session.ExpiresAt.Unix(),
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":        session.Token,
			"refreshToken": session.RefreshToken,
			"userName":     session.UserName,
			"expiresAt":    session.ExpiresAt.Unix(),
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		session := Session{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				session = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), session, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        session.UserID,
			"userName":      session.UserName,
			"email":         session.Email,
			"role":          session.Role,
		})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/tickets" {
		items, err := s.service.ListTickets(r.Context(), session)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list tickets", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tickets": ticketsJSON(items)})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/tickets" {
		var body TicketInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		ticket, err := s.service.CreateTicket(r.Context(), session, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, ticketJSON(ticket))
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/tickets/summary" {
		counts, err := s.service.TicketSummary(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not load summary", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"open":       counts.Open,
			"inProgress": counts.InProgress,
			"resolved":   counts.Resolved,
			"closed":     counts.Closed,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/tickets/search" {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		limit := 20
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
				return
			}
			limit = parsed
		}
		docs := s.service.SearchTickets(r.Context(), session, q, limit)
		writeJSON(w, http.StatusOK, map[string]any{"hits": docs})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/bills" {
		items, err := s.service.ListBills(r.Context(), session)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list bills", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bills": billsJSON(items)})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/bills" {
		var body BillInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		bill, err := s.service.CreateBill(r.Context(), session, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, billJSON(bill))
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/bills/statement" {
		month := strings.TrimSpace(r.URL.Query().Get("month"))
		result, err := s.service.MonthlyStatement(r.Context(), session, month)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeFile(w, result)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/notifications" {
		items, err := s.service.ListNotifications(r.Context(), session)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Could not list notifications", nil)
			return
		}
		payload := make([]map[string]any, 0, len(items))
		for _, n := range items {
			payload = append(payload, notificationJSON(n))
		}
		writeJSON(w, http.StatusOK, map[string]any{"notifications": payload})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/users" {
		users, err := s.service.ListUsers(r.Context(), session)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		payload := make([]map[string]any, 0, len(users))
		for _, u := range users {
			payload = append(payload, userJSON(u))
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": payload})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/users" {
		var body UserInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		user, err := s.service.CreateUser(r.Context(), session, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusCreated, userJSON(user))
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "tickets" {
		s.handleTicket(w, r, session, parts[2:])
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "bills" {
		s.handleBill(w, r, session, parts[2:])
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "notifications" {
		s.handleNotification(w, r, session, parts[2:])
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "users" {
		s.handleUser(w, r, session, parts[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handleTicket dispatches /api/tickets/{id}[/...] routes.
func (s *HTTPServer) handleTicket(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	id := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			ticket, err := s.service.GetTicket(r.Context(), session, id)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, ticketJSON(ticket))
		case http.MethodPut:
			var body TicketInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			ticket, err := s.service.UpdateTicket(r.Context(), session, id, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, ticketJSON(ticket))
		case http.MethodDelete:
			if err := s.service.DeleteTicket(r.Context(), session, id); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 2 && parts[1] == "messages" && r.Method == http.MethodPost {
		var body struct {
			Text string `json:"text"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		ticket, err := s.service.AddTicketMessage(r.Context(), session, id, body.Text)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, ticketJSON(ticket))
		return
	}

	if len(parts) == 3 && parts[1] == "messages" && r.Method == http.MethodDelete {
		ticket, err := s.service.DeleteTicketMessage(r.Context(), session, id, parts[2])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, ticketJSON(ticket))
		return
	}

	if len(parts) == 2 && parts[1] == "attachments" && r.Method == http.MethodPost {
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "file field is required", nil)
			return
		}
		defer file.Close()
		contentType := header.Header.Get("Content-Type")
		ticket, err := s.service.AddTicketAttachment(r.Context(), session, id, header.Filename, contentType, header.Size, file)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, ticketJSON(ticket))
		return
	}

	if len(parts) == 2 && parts[1] == "analysis" && r.Method == http.MethodPost {
		analysis, err := s.service.AnalyzeTicket(r.Context(), session, id)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"analysis": analysis})
		return
	}

	if len(parts) == 2 && parts[1] == "export" && r.Method == http.MethodGet {
		result, err := s.service.ExportTicket(r.Context(), session, id)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeFile(w, result)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handleBill dispatches /api/bills/{id}[/...] routes.
func (s *HTTPServer) handleBill(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	id := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			bill, err := s.service.GetBill(r.Context(), session, id)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, billJSON(bill))
		case http.MethodPut:
			var body BillInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			bill, err := s.service.UpdateBill(r.Context(), session, id, body)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, billJSON(bill))
		case http.MethodDelete:
			if err := s.service.DeleteBill(r.Context(), session, id); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 2 && parts[1] == "pay" && r.Method == http.MethodPost {
		bill, err := s.service.MarkBillPaid(r.Context(), session, id)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, billJSON(bill))
		return
	}

	if len(parts) == 2 && parts[1] == "attachment" && r.Method == http.MethodPost {
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "file field is required", nil)
			return
		}
		defer file.Close()
		contentType := header.Header.Get("Content-Type")
		bill, err := s.service.AttachBillReceipt(r.Context(), session, id, header.Filename, contentType, header.Size, file)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, billJSON(bill))
		return
	}

	if len(parts) == 2 && parts[1] == "analysis" && r.Method == http.MethodPost {
		analysis, err := s.service.AnalyzeBill(r.Context(), session, id)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"analysis": analysis})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleNotification(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	id := parts[0]

	if len(parts) == 1 && r.Method == http.MethodDelete {
		if err := s.service.DeleteNotification(r.Context(), session, id); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if len(parts) == 2 && parts[1] == "read" && r.Method == http.MethodPost {
		if err := s.service.MarkNotificationRead(r.Context(), session, id); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleUser(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	id := parts[0]

	if len(parts) == 1 && r.Method == http.MethodPut {
		var body UserInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		user, err := s.service.UpdateUser(r.Context(), session, id, body)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, userJSON(user))
		return
	}

	if len(parts) == 2 && parts[1] == "password" && r.Method == http.MethodPost {
		var body struct {
			NewPassword string `json:"newPassword"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.ResetUserPassword(r.Context(), session, id, body.NewPassword); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// --- response shapes ---

func ticketJSON(t store.Ticket) map[string]any {
	messages := t.Messages
	if messages == nil {
		messages = []store.Message{}
	}
	attachments := t.Attachments
	if attachments == nil {
		attachments = []store.Attachment{}
	}
	var analysis any
	if len(t.AIAnalysis) > 0 {
		analysis = json.RawMessage(t.AIAnalysis)
	}
	return map[string]any{
		"id":          t.ID,
		"title":       t.Title,
		"description": t.Description,
		"requester":   t.Requester,
		"ownerEmail":  t.OwnerEmail,
		"status":      t.Status,
		"priority":    t.Priority,
		"category":    t.Category,
		"aiAnalysis":  analysis,
		"messages":    messages,
		"attachments": attachments,
		"createdAt":   t.CreatedAt,
		"updatedAt":   t.UpdatedAt,
	}
}

func ticketsJSON(items []store.Ticket) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, t := range items {
		out = append(out, ticketJSON(t))
	}
	return out
}

func billJSON(b store.Bill) map[string]any {
	var analysis any
	if len(b.AIAnalysis) > 0 {
		analysis = json.RawMessage(b.AIAnalysis)
	}
	return map[string]any{
		"id":            b.ID,
		"userId":        b.UserID,
		"title":         b.Title,
		"amount":        b.Amount,
		"category":      b.Category,
		"status":        b.Status,
		"dueDate":       b.DueDate,
		"paidDate":      b.PaidDate,
		"notes":         b.Notes,
		"attachmentUrl": b.AttachmentURL,
		"aiAnalysis":    analysis,
		"createdAt":     b.CreatedAt,
		"updatedAt":     b.UpdatedAt,
	}
}

func billsJSON(items []store.Bill) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, b := range items {
		out = append(out, billJSON(b))
	}
	return out
}

func userJSON(u store.User) map[string]any {
	return map[string]any{
		"id":        u.ID,
		"name":      u.Name,
		"email":     u.Email,
		"role":      u.Role,
		"status":    u.Status,
		"avatar":    u.Avatar,
		"createdAt": u.CreatedAt,
	}
}

func notificationJSON(n store.Notification) map[string]any {
	return map[string]any{
		"id":             n.ID,
		"recipientEmail": n.RecipientEmail,
		"ticketId":       n.TicketID,
		"message":        n.Message,
		"read":           n.Read,
		"createdAt":      n.CreatedAt,
	}
}

// writeFile streams a rendered export to the client.
func writeFile(w http.ResponseWriter, result *export.Result) {
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF renderer not available", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
