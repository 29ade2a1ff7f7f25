package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caredesk.io/telehealth/internal/store"
)

type fakeGateway struct {
	answer string
	err    error
	calls  int
}

func (g *fakeGateway) Generate(ctx context.Context, prompt string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func newTestService(t *testing.T, gateway AIGateway) (*QueryService, *store.NotificationFeed) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "queryservice-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	buckets, err := store.NewBucketStore(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { buckets.Close() })

	feed := store.NewNotificationFeed(buckets)
	return NewQueryService(store.NewQueryStore(buckets), feed, gateway), feed
}

func waitForStatus(t *testing.T, svc *QueryService, id string, status store.ResponseStatus) store.QueryRecord {
	t.Helper()
	var rec *store.QueryRecord
	require.Eventually(t, func() bool {
		current, found := svc.Get(id)
		if !found {
			return false
		}
		rec = current
		return current.ResponseStatus == status
	}, 2*time.Second, 10*time.Millisecond)
	return *rec
}

func TestSubmitQueryLifecycle(t *testing.T) {
	gateway := &fakeGateway{answer: "Possible viral infection..."}
	svc, feed := newTestService(t, gateway)

	rec, err := svc.SubmitQuery("Jane Doe", "fever and chills", true, nil)
	require.NoError(t, err)
	assert.Equal(t, store.StatusLoading, rec.ResponseStatus)
	assert.True(t, rec.IsUrgent)
	assert.False(t, rec.IsApproved)

	// The doctor feed gets the submission notice immediately.
	doctorNotices := feed.List(store.RoleClinician)
	require.Len(t, doctorNotices, 1)
	assert.Equal(t, store.NotifNewQuery, doctorNotices[0].Type)
	assert.Equal(t, rec.ID, doctorNotices[0].RelatedID)
	assert.Contains(t, doctorNotices[0].Text, "URGENT")
	assert.Contains(t, doctorNotices[0].Text, "fever and chills")
	assert.True(t, doctorNotices[0].IsUrgent)

	// The async draft resolves.
	resolved := waitForStatus(t, svc, rec.ID, store.StatusSuccess)
	assert.Equal(t, "Possible viral infection...", resolved.AIResponse)
	assert.False(t, resolved.IsApproved)

	// Clinician reviews: edits, then approves.
	ok, err := svc.SaveEdit(rec.ID, "Likely viral; monitor temperature.")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.Approve(rec.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// The patient's verified view now carries the edited text.
	approved := svc.List(store.RolePatient, store.FilterApproved, "Jane Doe")
	require.Len(t, approved, 1)
	assert.Equal(t, rec.ID, approved[0].ID)
	assert.True(t, approved[0].IsApproved)
	assert.Equal(t, "Likely viral; monitor temperature.", approved[0].EditedResponse)
	assert.Equal(t, "Likely viral; monitor temperature.", approved[0].DisplayResponse())

	// And exactly one verification notice reached the patient feed.
	patientNotices := feed.List(store.RolePatient)
	require.Len(t, patientNotices, 1)
	assert.Equal(t, store.NotifDoctorResponse, patientNotices[0].Type)
	assert.Equal(t, rec.ID, patientNotices[0].RelatedID)
}

func TestSubmitQueryRejectsEmpty(t *testing.T) {
	svc, _ := newTestService(t, &fakeGateway{answer: "ok"})

	_, err := svc.SubmitQuery("Jane Doe", "", false, nil)
	assert.Error(t, err)
}

func TestGenerationFailureMarksError(t *testing.T) {
	gateway := &fakeGateway{err: fmt.Errorf("provider unavailable")}
	svc, _ := newTestService(t, gateway)

	rec, err := svc.SubmitQuery("Jane Doe", "persistent headache", false, nil)
	require.NoError(t, err)

	failed := waitForStatus(t, svc, rec.ID, store.StatusError)
	assert.Contains(t, failed.AIResponse, "error processing your query")
}

func TestApprovalDuringInFlightGeneration(t *testing.T) {
	gateway := &fakeGateway{answer: "Drink fluids and rest."}
	svc, _ := newTestService(t, gateway)

	rec, err := svc.SubmitQuery("Jane Doe", "sore throat", false, nil)
	require.NoError(t, err)

	// Approve before the draft has necessarily landed; the latch must
	// survive the merge either way.
	ok, err := svc.Approve(rec.ID)
	require.NoError(t, err)
	require.True(t, ok)

	resolved := waitForStatus(t, svc, rec.ID, store.StatusSuccess)
	assert.True(t, resolved.IsApproved)
	assert.Equal(t, "Drink fluids and rest.", resolved.AIResponse)
}

func TestRepeatedApprovalPostsOneNotice(t *testing.T) {
	gateway := &fakeGateway{answer: "ok"}
	svc, feed := newTestService(t, gateway)

	rec, err := svc.SubmitQuery("Jane Doe", "mild rash", false, nil)
	require.NoError(t, err)
	waitForStatus(t, svc, rec.ID, store.StatusSuccess)

	for i := 0; i < 3; i++ {
		ok, err := svc.Approve(rec.ID)
		require.NoError(t, err)
		require.True(t, ok)
	}

	var responses int
	for _, notice := range feed.List(store.RolePatient) {
		if notice.Type == store.NotifDoctorResponse {
			responses++
		}
	}
	assert.Equal(t, 1, responses, "re-approval must not duplicate the notice")
}

func TestApproveUnknownQuery(t *testing.T) {
	svc, feed := newTestService(t, &fakeGateway{answer: "ok"})

	ok, err := svc.Approve("ghost")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, feed.List(store.RolePatient))
}

func TestSaveEditRejectsEmptyText(t *testing.T) {
	svc, _ := newTestService(t, &fakeGateway{answer: "ok"})

	_, err := svc.SaveEdit("any", "")
	assert.Error(t, err)
}

func TestPatientListIsScopedToOwnQueries(t *testing.T) {
	gateway := &fakeGateway{answer: "ok"}
	svc, _ := newTestService(t, gateway)

	aliceRec, err := svc.SubmitQuery("alice@example.com", "fever and chills", false, nil)
	require.NoError(t, err)
	_, err = svc.SubmitQuery("mallory@example.com", "sprained ankle", false, nil)
	require.NoError(t, err)

	// One patient must never see another patient's submissions.
	mine := svc.List(store.RolePatient, store.FilterAll, "mallory@example.com")
	require.Len(t, mine, 1)
	assert.Equal(t, "mallory@example.com", mine[0].PatientName)
	assert.NotEqual(t, aliceRec.ID, mine[0].ID)

	// The clinician worklist spans all patients regardless of subject.
	worklist := svc.List(store.RoleClinician, store.FilterAll, "")
	assert.Len(t, worklist, 2)
}

func TestNotificationTextTruncation(t *testing.T) {
	gateway := &fakeGateway{answer: "ok"}
	svc, feed := newTestService(t, gateway)

	long := "I have been experiencing a dull ache in my lower back for about three weeks now"
	_, err := svc.SubmitQuery("Jane Doe", long, false, nil)
	require.NoError(t, err)

	notices := feed.List(store.RoleClinician)
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0].Text, long[:50]+"...")
	assert.NotContains(t, notices[0].Text, "URGENT")
}
