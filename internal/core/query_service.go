package core

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"caredesk.io/telehealth/internal/store"
)

// patientErrorMessage is what a patient sees inline when generation fails.
const patientErrorMessage = "There was an error processing your query. Please submit it again."

// QueryService orchestrates the patient-query lifecycle: submission,
// the asynchronous AI draft, clinician review and approval, and the
// notification side effects tied to each transition.
type QueryService struct {
	queries *store.QueryStore
	feed    *store.NotificationFeed
	gateway AIGateway
}

func NewQueryService(queries *store.QueryStore, feed *store.NotificationFeed, gateway AIGateway) *QueryService {
	return &QueryService{
		queries: queries,
		feed:    feed,
		gateway: gateway,
	}
}

// SubmitQuery records a new patient query in the loading state, posts a
// new_query notice to the doctor feed and kicks off draft generation in
// the background. The returned record is the loading-state version; the
// caller observes the resolved state through later reads.
func (s *QueryService) SubmitQuery(patientName, text string, urgent bool, attachments []store.Attachment) (*store.QueryRecord, error) {
	if text == "" && len(attachments) == 0 {
		return nil, fmt.Errorf("query must have text or attachments")
	}

	now := time.Now()
	rec := store.QueryRecord{
		ID:             strconv.FormatInt(now.UnixNano(), 10),
		PatientName:    patientName,
		Text:           text,
		Timestamp:      now.UnixMilli(),
		Attachments:    attachments,
		ResponseStatus: store.StatusLoading,
		IsApproved:     false,
		IsUrgent:       urgent,
	}

	if err := s.queries.Append(rec); err != nil {
		return nil, fmt.Errorf("failed to store query: %w", err)
	}

	name := patientName
	if name == "" {
		name = "A patient"
	}
	urgentTag := ""
	if urgent {
		urgentTag = "URGENT "
	}
	notice := store.NotificationRecord{
		Type:      store.NotifNewQuery,
		RelatedID: rec.ID,
		Text:      fmt.Sprintf("%s submitted a %squery: %q", name, urgentTag, truncate(text, 50)),
		IsUrgent:  urgent,
	}
	if _, err := s.feed.Post(store.RoleClinician, notice); err != nil {
		// The query itself is stored; a missing notice is not worth
		// failing the submission over.
		log.Printf("Failed to post new_query notice for %s: %v", rec.ID, err)
	}

	// No timeout is imposed on the draft: a stalled provider leaves the
	// record in loading. Known gap, kept deliberately.
	go s.GenerateDraft(context.Background(), rec.ID, text)

	return &rec, nil
}

// GenerateDraft calls the AI gateway and attaches the outcome to the
// record via a merge-on-write update, so an approval or edit granted while
// the call was in flight survives.
func (s *QueryService) GenerateDraft(ctx context.Context, id, prompt string) {
	patch := store.UpdatePatch{ResponseStatus: store.StatusSuccess}

	answer, err := s.gateway.Generate(ctx, prompt)
	if err != nil {
		log.Printf("AI generation failed for query %s: %v", id, err)
		patch = store.UpdatePatch{
			ResponseStatus: store.StatusError,
			AIResponse:     patientErrorMessage,
		}
	} else {
		patch.AIResponse = answer
	}

	found, err := s.queries.UpdateOwnRecord(id, patch)
	if err != nil {
		log.Printf("Failed to attach AI draft to query %s: %v", id, err)
		return
	}
	if !found {
		log.Printf("Query %s vanished before its draft resolved, dropping result", id)
	}
}

// Approve latches a record approved and posts exactly one doctor_response
// notice to the patient feed. Returns false if the record is unknown.
func (s *QueryService) Approve(id string) (bool, error) {
	rec, found := s.queries.Get(id)
	if !found {
		return false, nil
	}
	alreadyApproved := rec.IsApproved

	ok, err := s.queries.Approve(id)
	if err != nil || !ok {
		return ok, err
	}

	// A second approval of the same record is a harmless no-op and must
	// not duplicate the patient's notice.
	if !alreadyApproved {
		notice := store.NotificationRecord{
			Type:      store.NotifDoctorResponse,
			RelatedID: id,
			Text:      fmt.Sprintf("Your doctor has verified the response to your query: %q", truncate(rec.Text, 50)),
		}
		if _, err := s.feed.Post(store.RolePatient, notice); err != nil {
			log.Printf("Failed to post doctor_response notice for %s: %v", id, err)
		}
	}
	return true, nil
}

// SaveEdit commits a clinician's replacement text without approving.
func (s *QueryService) SaveEdit(id, newText string) (bool, error) {
	if newText == "" {
		return false, fmt.Errorf("edited response must not be empty")
	}
	return s.queries.SaveEdit(id, newText)
}

// BeginEdit marks a record as being edited by the clinician.
func (s *QueryService) BeginEdit(id string) (bool, error) {
	return s.queries.SetEditing(id, true)
}

// List materializes the role's view of the collection. Patients only see
// records they submitted; clinicians see the whole worklist and subject is
// ignored for them.
func (s *QueryService) List(role store.Role, filter store.ListFilter, subject string) []store.QueryRecord {
	var records []store.QueryRecord
	for rec := range s.queries.ListFor(role, filter) {
		if role == store.RolePatient && rec.PatientName != subject {
			continue
		}
		records = append(records, rec)
	}
	return records
}

// Get returns one record by id.
func (s *QueryService) Get(id string) (*store.QueryRecord, bool) {
	return s.queries.Get(id)
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
