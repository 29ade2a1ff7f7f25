package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"caredesk.io/telehealth/internal/auth"
	"caredesk.io/telehealth/internal/core"
	"caredesk.io/telehealth/internal/markdown"
	"caredesk.io/telehealth/internal/notify"
	"caredesk.io/telehealth/internal/registration"
	"caredesk.io/telehealth/internal/store"
)

type contextKey string

const (
	ctxSubject contextKey = "subject"
	ctxRole    contextKey = "role"
)

type APIHandler struct {
	queryService        *core.QueryService
	notificationService *core.NotificationService
	registrationService *registration.Service // nil when no registration DB is configured
	verifier            *auth.GoogleVerifier
	hub                 *notify.Hub
}

func NewAPIHandler(qs *core.QueryService, ns *core.NotificationService, rs *registration.Service, verifier *auth.GoogleVerifier, hub *notify.Hub) *APIHandler {
	return &APIHandler{
		queryService:        qs,
		notificationService: ns,
		registrationService: rs,
		verifier:            verifier,
		hub:                 hub,
	}
}

// JWTAuthMiddleware validates the session token and stashes subject and
// role in the request context. Websocket clients cannot set headers, so a
// token query parameter is accepted as well.
func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}
		if tokenString == "" {
			http.Error(w, "Authorization is required", http.StatusUnauthorized)
			return
		}

		subject, role, err := auth.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := contextWithIdentity(r.Context(), subject, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireCapability gates a route on the role capability table.
func (h *APIHandler) RequireCapability(cap auth.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := roleFrom(r)
			if !auth.Can(role, cap) {
				http.Error(w, "Forbidden for role "+string(role), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GoogleLoginHandler redirects the browser into the role's OAuth flow.
func (h *APIHandler) GoogleLoginHandler(w http.ResponseWriter, r *http.Request) {
	role := store.Role(chi.URLParam(r, "role"))
	if !auth.ValidRole(role) {
		http.Error(w, "Unknown login role", http.StatusNotFound)
		return
	}

	url, err := h.verifier.LoginURL(role, uuid.NewString())
	if err != nil {
		log.Printf("Error building login URL for role %s: %v", role, err)
		http.Error(w, "Failed to start login", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// GoogleCallbackHandler finishes the OAuth flow and issues a session token.
func (h *APIHandler) GoogleCallbackHandler(w http.ResponseWriter, r *http.Request) {
	role := store.Role(chi.URLParam(r, "role"))
	if !auth.ValidRole(role) {
		http.Error(w, "Unknown login role", http.StatusNotFound)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		return
	}

	profile, err := h.verifier.Exchange(r.Context(), role, code)
	if err != nil {
		if errors.Is(err, auth.ErrNotClinicStaff) {
			log.Printf("Unauthorized clinician login attempt")
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		log.Printf("Google login failed for role %s: %v", role, err)
		http.Error(w, "Login failed", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(profile.Email, profile.Role)
	if err != nil {
		log.Printf("Error generating JWT for %s: %v", profile.Email, err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{
		"token": token,
		"name":  profile.Name,
		"role":  string(profile.Role),
	})
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginHandler authenticates a registered patient with portal credentials.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if h.registrationService == nil {
		http.Error(w, "Registration database is not configured", http.StatusServiceUnavailable)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	patient, err := h.registrationService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		log.Printf("Error authenticating %s: %v", req.Email, err)
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if patient == nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(patient.Email, store.RolePatient)
	if err != nil {
		log.Printf("Error generating JWT for %s: %v", patient.Email, err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// RegisterHandler persists a new patient from the intake form.
func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if h.registrationService == nil {
		http.Error(w, "Registration database is not configured", http.StatusServiceUnavailable)
		return
	}

	var req registration.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	patient, err := h.registrationService.Register(r.Context(), req)
	if err != nil {
		log.Printf("Error registering patient %s: %v", req.Email, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"message": "User registered successfully!",
		"userId":  patient.ID,
	})
}

// GetPatientHandler returns one registered patient.
func (h *APIHandler) GetPatientHandler(w http.ResponseWriter, r *http.Request) {
	if h.registrationService == nil {
		http.Error(w, "Registration database is not configured", http.StatusServiceUnavailable)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "patientID"))
	if err != nil {
		http.Error(w, "Invalid patient id", http.StatusBadRequest)
		return
	}

	patient, err := h.registrationService.GetByID(r.Context(), id)
	if err != nil {
		log.Printf("Error fetching patient %s: %v", id, err)
		http.Error(w, "Failed to fetch patient", http.StatusInternalServerError)
		return
	}
	if patient == nil {
		http.Error(w, "Patient not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(patient)
}

// ListPatientsHandler returns all registered patients.
func (h *APIHandler) ListPatientsHandler(w http.ResponseWriter, r *http.Request) {
	if h.registrationService == nil {
		http.Error(w, "Registration database is not configured", http.StatusServiceUnavailable)
		return
	}

	patients, err := h.registrationService.ListAll(r.Context())
	if err != nil {
		log.Printf("Error listing patients: %v", err)
		http.Error(w, "Failed to list patients", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(patients)
}

type SubmitQueryRequest struct {
	Text        string             `json:"text"`
	IsUrgent    bool               `json:"isUrgent"`
	Attachments []store.Attachment `json:"attachments,omitempty"`
}

// QueryResponse decorates a stored record with its display text and the
// rendered HTML clients show.
type QueryResponse struct {
	store.QueryRecord
	DisplayResponse string `json:"displayResponse,omitempty"`
	ResponseHTML    string `json:"responseHtml,omitempty"`
}

func toQueryResponse(rec store.QueryRecord) QueryResponse {
	display := rec.DisplayResponse()
	return QueryResponse{
		QueryRecord:     rec,
		DisplayResponse: display,
		ResponseHTML:    markdown.Render(display),
	}
}

// SubmitQueryHandler records a new patient query and starts the AI draft.
func (h *APIHandler) SubmitQueryHandler(w http.ResponseWriter, r *http.Request) {
	var req SubmitQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Text == "" && len(req.Attachments) == 0 {
		http.Error(w, "Query must have text or attachments", http.StatusBadRequest)
		return
	}

	rec, err := h.queryService.SubmitQuery(subjectFrom(r), req.Text, req.IsUrgent, req.Attachments)
	if err != nil {
		log.Printf("Error submitting query for %s: %v", subjectFrom(r), err)
		http.Error(w, "Failed to submit query", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toQueryResponse(*rec))
}

// ListQueriesHandler returns the role's view of the collection, urgent
// unapproved work first.
func (h *APIHandler) ListQueriesHandler(w http.ResponseWriter, r *http.Request) {
	filter := store.ListFilter(r.URL.Query().Get("filter"))
	switch filter {
	case store.FilterAll, store.FilterUnapproved, store.FilterApproved:
	case "":
		filter = store.FilterAll
	default:
		http.Error(w, "Unknown filter", http.StatusBadRequest)
		return
	}

	responses := []QueryResponse{}
	for _, rec := range h.queryService.List(roleFrom(r), filter, subjectFrom(r)) {
		responses = append(responses, toQueryResponse(rec))
	}
	json.NewEncoder(w).Encode(responses)
}

// GetQueryHandler returns one record. Patients can only fetch their own
// records; someone else's id answers 404 the same as an unknown one.
func (h *APIHandler) GetQueryHandler(w http.ResponseWriter, r *http.Request) {
	rec, found := h.queryService.Get(chi.URLParam(r, "queryID"))
	if !found || (roleFrom(r) == store.RolePatient && rec.PatientName != subjectFrom(r)) {
		http.Error(w, "Query not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(toQueryResponse(*rec))
}

// ApproveQueryHandler latches a record approved.
func (h *APIHandler) ApproveQueryHandler(w http.ResponseWriter, r *http.Request) {
	queryID := chi.URLParam(r, "queryID")

	ok, err := h.queryService.Approve(queryID)
	if err != nil {
		log.Printf("Error approving query %s: %v", queryID, err)
		http.Error(w, "Failed to approve query", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "Query not found", http.StatusNotFound)
		return
	}

	rec, _ := h.queryService.Get(queryID)
	json.NewEncoder(w).Encode(toQueryResponse(*rec))
}

type SaveEditRequest struct {
	Content string `json:"content"`
}

// SaveEditHandler commits a clinician's replacement text.
func (h *APIHandler) SaveEditHandler(w http.ResponseWriter, r *http.Request) {
	queryID := chi.URLParam(r, "queryID")

	var req SaveEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, "Edited response cannot be empty", http.StatusBadRequest)
		return
	}

	ok, err := h.queryService.SaveEdit(queryID, req.Content)
	if err != nil {
		log.Printf("Error saving edit for query %s: %v", queryID, err)
		http.Error(w, "Failed to save edit", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "Query not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BeginEditHandler marks a record as being edited.
func (h *APIHandler) BeginEditHandler(w http.ResponseWriter, r *http.Request) {
	queryID := chi.URLParam(r, "queryID")

	ok, err := h.queryService.BeginEdit(queryID)
	if err != nil {
		log.Printf("Error starting edit for query %s: %v", queryID, err)
		http.Error(w, "Failed to start edit", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "Query not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListNotificationsHandler returns the caller's feed, newest first.
func (h *APIHandler) ListNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	notices := h.notificationService.List(roleFrom(r))
	if notices == nil {
		notices = []store.NotificationRecord{}
	}
	json.NewEncoder(w).Encode(notices)
}

// UnreadCountHandler is the polling fallback for notification badges.
func (h *APIHandler) UnreadCountHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]int{
		"unread": h.notificationService.UnreadCount(roleFrom(r)),
	})
}

// MarkNotificationReadHandler flags one notice read; repeated calls are
// harmless.
func (h *APIHandler) MarkNotificationReadHandler(w http.ResponseWriter, r *http.Request) {
	notificationID := chi.URLParam(r, "notificationID")

	ok, err := h.notificationService.MarkRead(roleFrom(r), notificationID)
	if err != nil {
		log.Printf("Error marking notification %s read: %v", notificationID, err)
		http.Error(w, "Failed to mark notification read", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "Notification not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllReadHandler clears the caller's unread badge.
func (h *APIHandler) MarkAllReadHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.notificationService.MarkAllRead(roleFrom(r)); err != nil {
		log.Printf("Error marking all notifications read: %v", err)
		http.Error(w, "Failed to mark notifications read", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EventsHandler subscribes the caller's view to storage-change broadcasts.
func (h *APIHandler) EventsHandler(w http.ResponseWriter, r *http.Request) {
	h.hub.Subscribe(w, r, roleFrom(r))
}
