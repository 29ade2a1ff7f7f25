package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caredesk.io/telehealth/internal/auth"
	"caredesk.io/telehealth/internal/config"
	"caredesk.io/telehealth/internal/core"
	"caredesk.io/telehealth/internal/notify"
	"caredesk.io/telehealth/internal/registration"
	"caredesk.io/telehealth/internal/store"
)

func TestMain(m *testing.M) {
	config.AppConfig.JWTSecret = "test-secret"
	m.Run()
}

type fakeGateway struct {
	answer string
}

func (g *fakeGateway) Generate(ctx context.Context, prompt string) (string, error) {
	return g.answer, nil
}

type memoryPatientRepository struct {
	patients []*registration.Patient
}

func (r *memoryPatientRepository) Create(ctx context.Context, patient *registration.Patient) error {
	r.patients = append(r.patients, patient)
	return nil
}

func (r *memoryPatientRepository) GetByID(ctx context.Context, id uuid.UUID) (*registration.Patient, error) {
	for _, p := range r.patients {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (r *memoryPatientRepository) FindByEmail(ctx context.Context, email string) (*registration.Patient, error) {
	for _, p := range r.patients {
		if p.Email == email {
			return p, nil
		}
	}
	return nil, nil
}

func (r *memoryPatientRepository) ListAll(ctx context.Context) ([]*registration.Patient, error) {
	return r.patients, nil
}

func newTestRouter(t *testing.T, withRegistration bool) http.Handler {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "api-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	buckets, err := store.NewBucketStore(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { buckets.Close() })

	hub := notify.NewHub()
	buckets.OnChange(hub.Publish)

	feed := store.NewNotificationFeed(buckets)
	queryService := core.NewQueryService(store.NewQueryStore(buckets), feed, &fakeGateway{answer: "Possible viral infection..."})
	notificationService := core.NewNotificationService(feed)

	var registrationService *registration.Service
	if withRegistration {
		registrationService = registration.NewService(&memoryPatientRepository{})
	}

	handler := NewAPIHandler(queryService, notificationService, registrationService, auth.NewGoogleVerifier(), hub)
	return NewRouter(handler)
}

func token(t *testing.T, subject string, role store.Role) string {
	t.Helper()
	tok, err := auth.GenerateJWT(subject, role)
	require.NoError(t, err)
	return tok
}

func doJSON(t *testing.T, router http.Handler, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, false)

	rec := doJSON(t, router, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQueriesRequireAuth(t *testing.T) {
	router := newTestRouter(t, false)

	rec := doJSON(t, router, http.MethodGet, "/api/queries", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/queries", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoleGating(t *testing.T) {
	router := newTestRouter(t, false)
	patient := token(t, "jane@example.com", store.RolePatient)
	clinician := token(t, "doc@clinic.example", store.RoleClinician)

	rec := doJSON(t, router, http.MethodPost, "/api/queries/123/approve", patient, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "patients cannot approve")

	rec = doJSON(t, router, http.MethodPost, "/api/queries", clinician, SubmitQueryRequest{Text: "hi"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "clinicians cannot submit queries")

	rec = doJSON(t, router, http.MethodGet, "/api/patients", patient, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "patients cannot browse the registry")
}

func TestSubmitReviewApproveFlow(t *testing.T) {
	router := newTestRouter(t, false)
	patient := token(t, "jane@example.com", store.RolePatient)
	clinician := token(t, "doc@clinic.example", store.RoleClinician)

	// Patient submits an urgent query.
	rec := doJSON(t, router, http.MethodPost, "/api/queries", patient, SubmitQueryRequest{
		Text:     "fever and chills",
		IsUrgent: true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var submitted QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	assert.Equal(t, store.StatusLoading, submitted.ResponseStatus)
	queryID := submitted.ID

	// The clinician's worklist has it, and their feed got the notice.
	rec = doJSON(t, router, http.MethodGet, "/api/queries?filter=unapproved", clinician, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var worklist []QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &worklist))
	require.Len(t, worklist, 1)
	assert.Equal(t, queryID, worklist[0].ID)

	rec = doJSON(t, router, http.MethodGet, "/api/notifications", clinician, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var notices []store.NotificationRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &notices))
	require.Len(t, notices, 1)
	assert.Equal(t, store.NotifNewQuery, notices[0].Type)

	// The background draft resolves.
	require.Eventually(t, func() bool {
		rec := doJSON(t, router, http.MethodGet, "/api/queries/"+queryID, clinician, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		var current QueryResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &current); err != nil {
			return false
		}
		return current.ResponseStatus == store.StatusSuccess
	}, 2*time.Second, 10*time.Millisecond)

	// Clinician edits, then approves.
	rec = doJSON(t, router, http.MethodPut, "/api/queries/"+queryID+"/response", clinician, SaveEditRequest{
		Content: "Likely viral; monitor temperature.",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/queries/"+queryID+"/approve", clinician, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var approved QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &approved))
	assert.True(t, approved.IsApproved)

	// The patient's verified view carries the edited text, rendered.
	rec = doJSON(t, router, http.MethodGet, "/api/queries?filter=approved", patient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var verified []QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verified))
	require.Len(t, verified, 1)
	assert.Equal(t, "Likely viral; monitor temperature.", verified[0].DisplayResponse)
	assert.Contains(t, verified[0].ResponseHTML, "Likely viral; monitor temperature.")

	// And exactly one verification notice reached the patient.
	rec = doJSON(t, router, http.MethodGet, "/api/notifications", patient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &notices))
	require.Len(t, notices, 1)
	assert.Equal(t, store.NotifDoctorResponse, notices[0].Type)
	assert.Equal(t, queryID, notices[0].RelatedID)
}

func TestPatientQueriesAreScopedToOwner(t *testing.T) {
	router := newTestRouter(t, false)
	alice := token(t, "alice@example.com", store.RolePatient)
	mallory := token(t, "mallory@example.com", store.RolePatient)
	clinician := token(t, "doc@clinic.example", store.RoleClinician)

	rec := doJSON(t, router, http.MethodPost, "/api/queries", alice, SubmitQueryRequest{Text: "fever and chills"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var submitted QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))

	// Another patient's listing must not contain it.
	rec = doJSON(t, router, http.MethodGet, "/api/queries", mallory, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Empty(t, listed)

	// Nor can they fetch it directly by id.
	rec = doJSON(t, router, http.MethodGet, "/api/queries/"+submitted.ID, mallory, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The owner and the clinician both still see it.
	rec = doJSON(t, router, http.MethodGet, "/api/queries", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, submitted.ID, listed[0].ID)

	rec = doJSON(t, router, http.MethodGet, "/api/queries/"+submitted.ID, clinician, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNotificationReadFlow(t *testing.T) {
	router := newTestRouter(t, false)
	patient := token(t, "jane@example.com", store.RolePatient)
	clinician := token(t, "doc@clinic.example", store.RoleClinician)

	rec := doJSON(t, router, http.MethodPost, "/api/queries", patient, SubmitQueryRequest{Text: "sore throat"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/notifications/unread-count", clinician, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var count map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &count))
	assert.Equal(t, 1, count["unread"])

	rec = doJSON(t, router, http.MethodGet, "/api/notifications", clinician, nil)
	var notices []store.NotificationRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &notices))
	require.Len(t, notices, 1)

	rec = doJSON(t, router, http.MethodPost, "/api/notifications/"+notices[0].ID+"/read", clinician, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/notifications/unread-count", clinician, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &count))
	assert.Equal(t, 0, count["unread"])

	// The patient feed is untouched by doctor-side reads.
	rec = doJSON(t, router, http.MethodGet, "/api/notifications", patient, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &notices))
	assert.Empty(t, notices)
}

func TestSubmitQueryValidation(t *testing.T) {
	router := newTestRouter(t, false)
	patient := token(t, "jane@example.com", store.RolePatient)

	rec := doJSON(t, router, http.MethodPost, "/api/queries", patient, SubmitQueryRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/queries?filter=bogus", patient, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApproveUnknownQuery(t *testing.T) {
	router := newTestRouter(t, false)
	clinician := token(t, "doc@clinic.example", store.RoleClinician)

	rec := doJSON(t, router, http.MethodPost, "/api/queries/ghost/approve", clinician, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegistrationUnavailableWithoutDatabase(t *testing.T) {
	router := newTestRouter(t, false)

	rec := doJSON(t, router, http.MethodPost, "/api/register", "", registration.RegisterRequest{
		Name:     "Jane Doe",
		Email:    "jane@example.com",
		Password: "s3cret",
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	router := newTestRouter(t, true)

	rec := doJSON(t, router, http.MethodPost, "/api/register", "", registration.RegisterRequest{
		Name:     "Jane Doe",
		Email:    "jane@example.com",
		Password: "s3cret",
		HealthInfo: registration.HealthInfo{
			Age:        34,
			BloodGroup: "O+",
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/login", "", LoginRequest{
		Email:    "jane@example.com",
		Password: "s3cret",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var loginResp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loginResp))
	require.NotEmpty(t, loginResp["token"])

	// The issued token works as a patient session.
	rec = doJSON(t, router, http.MethodGet, "/api/queries", loginResp["token"], nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Wrong password is rejected.
	rec = doJSON(t, router, http.MethodPost, "/api/login", "", LoginRequest{
		Email:    "jane@example.com",
		Password: "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Clinician can browse the registry.
	clinician := token(t, "doc@clinic.example", store.RoleClinician)
	rec = doJSON(t, router, http.MethodGet, "/api/patients", clinician, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var patients []registration.Patient
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &patients))
	require.Len(t, patients, 1)
	assert.Equal(t, "Jane", patients[0].FirstName)
	assert.Equal(t, "Doe", patients[0].Surname)
}
