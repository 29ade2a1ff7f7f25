package store

import (
	"encoding/json"
	"fmt"
	"iter"
	"log"
	"slices"
)

// QueryBucket is the shared collection both roles read and write. The name
// is part of the persisted state layout and must not change between
// releases.
const QueryBucket = "patientPromptHistory"

// QueryStore maintains the one logical collection of QueryRecords on top of
// a last-write-wins bucket. Two independent contexts (patient view,
// clinician view) interleave non-atomic read-modify-write cycles against
// it; the merge rules here are the only thing standing between a slow
// writer and a lost approval.
//
// Known limitation: two concurrent SaveEdit calls are last-write-wins. The
// merge rules protect the approval latch and response-text precedence,
// nothing else.
type QueryStore struct {
	buckets *BucketStore
}

func NewQueryStore(buckets *BucketStore) *QueryStore {
	return &QueryStore{buckets: buckets}
}

// readAll decodes the current collection. A missing, non-JSON or
// shape-mismatched bucket is treated as an empty collection; storage
// anomalies never propagate to callers.
func (s *QueryStore) readAll() []QueryRecord {
	payload, err := s.buckets.Get(QueryBucket)
	if err != nil {
		log.Printf("Failed to read query bucket, treating as empty: %v", err)
		return nil
	}
	if len(payload) == 0 {
		return nil
	}

	var records []QueryRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		log.Printf("Malformed query bucket content, treating as empty: %v", err)
		return nil
	}
	return records
}

// writeAll replaces the whole collection, most recent first.
func (s *QueryStore) writeAll(records []QueryRecord) error {
	slices.SortStableFunc(records, func(a, b QueryRecord) int {
		switch {
		case b.Timestamp > a.Timestamp:
			return 1
		case b.Timestamp < a.Timestamp:
			return -1
		}
		return 0
	})

	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal query collection: %w", err)
	}
	return s.buckets.Put(QueryBucket, payload)
}

// Append stores a newly submitted query at the front of the collection.
// The record must carry text or at least one attachment.
func (s *QueryStore) Append(rec QueryRecord) error {
	if rec.Text == "" && len(rec.Attachments) == 0 {
		return fmt.Errorf("query must have text or attachments")
	}

	records := s.readAll()
	records = append([]QueryRecord{rec}, records...)
	return s.writeAll(records)
}

// Get returns the current stored version of one record.
func (s *QueryStore) Get(id string) (*QueryRecord, bool) {
	for _, rec := range s.readAll() {
		if rec.ID == id {
			return &rec, true
		}
	}
	return nil, false
}

// UpdatePatch carries the fields a patient-side update may set after an
// asynchronous AI call resolves.
type UpdatePatch struct {
	AIResponse     string
	EditedResponse string
	ResponseStatus ResponseStatus
	IsApproved     bool
}

// UpdateOwnRecord applies a patient-side patch with merge-on-write: the
// collection is re-read immediately before writing, the approval flag is
// OR-ed with the stored value (a one-way latch, never downgraded), and a
// clinician edit that landed in the interim takes precedence over the
// patch's AI text. This is what keeps a slow-finishing AI update from
// clobbering an approval granted while the call was outstanding.
//
// Returns false if the record is no longer present; the caller is by
// definition looking at stale data and should log and move on.
func (s *QueryStore) UpdateOwnRecord(id string, patch UpdatePatch) (bool, error) {
	records := s.readAll()

	idx := slices.IndexFunc(records, func(r QueryRecord) bool { return r.ID == id })
	if idx < 0 {
		return false, nil
	}

	stored := records[idx]
	merged := stored

	// success and error are terminal. A stale writer resolving against an
	// old read must not drag a settled record back to loading.
	if !stored.ResponseStatus.Terminal() {
		merged.ResponseStatus = patch.ResponseStatus
	}
	merged.IsApproved = stored.IsApproved || patch.IsApproved

	if patch.EditedResponse != "" {
		merged.EditedResponse = patch.EditedResponse
	}
	// Display precedence: stored edit, then stored AI text, then the
	// patch's AI text. The AI draft is only ever set once.
	if stored.AIResponse == "" {
		merged.AIResponse = patch.AIResponse
	}

	records[idx] = merged
	if err := s.writeAll(records); err != nil {
		return false, err
	}
	return true, nil
}

// Approve latches isApproved on one record. If the clinician was mid-edit
// the pending edit is committed as the authoritative text and the editing
// flag cleared. Idempotent: approving twice is the same as approving once.
func (s *QueryStore) Approve(id string) (bool, error) {
	records := s.readAll()

	idx := slices.IndexFunc(records, func(r QueryRecord) bool { return r.ID == id })
	if idx < 0 {
		return false, nil
	}

	records[idx].IsApproved = true
	records[idx].IsEditing = false

	if err := s.writeAll(records); err != nil {
		return false, err
	}
	return true, nil
}

// SaveEdit commits an in-progress clinician edit without approving. Last
// write wins between two concurrent editors; that is a documented property
// of this design, not an oversight to patch here.
func (s *QueryStore) SaveEdit(id string, newText string) (bool, error) {
	records := s.readAll()

	idx := slices.IndexFunc(records, func(r QueryRecord) bool { return r.ID == id })
	if idx < 0 {
		return false, nil
	}

	records[idx].EditedResponse = newText
	records[idx].IsEditing = false

	if err := s.writeAll(records); err != nil {
		return false, err
	}
	return true, nil
}

// SetEditing toggles the clinician's editing flag on a record.
func (s *QueryStore) SetEditing(id string, editing bool) (bool, error) {
	records := s.readAll()

	idx := slices.IndexFunc(records, func(r QueryRecord) bool { return r.ID == id })
	if idx < 0 {
		return false, nil
	}

	records[idx].IsEditing = editing
	if err := s.writeAll(records); err != nil {
		return false, err
	}
	return true, nil
}

// worklistRank orders records for listing: urgent unapproved first, then
// the rest of the unapproved backlog, then approved records.
func worklistRank(r QueryRecord) int {
	switch {
	case !r.IsApproved && r.IsUrgent:
		return 0
	case !r.IsApproved:
		return 1
	}
	return 2
}

// ListFor yields the collection for one role, filtered by approval state
// and ordered by rank then recency. The sequence is lazy and restartable:
// every range over it re-reads the bucket, so a second pass observes
// writes that landed in between.
func (s *QueryStore) ListFor(role Role, filter ListFilter) iter.Seq[QueryRecord] {
	return func(yield func(QueryRecord) bool) {
		records := s.readAll()

		slices.SortStableFunc(records, func(a, b QueryRecord) int {
			if ra, rb := worklistRank(a), worklistRank(b); ra != rb {
				return ra - rb
			}
			switch {
			case b.Timestamp > a.Timestamp:
				return 1
			case b.Timestamp < a.Timestamp:
				return -1
			}
			return 0
		})

		for _, rec := range records {
			switch filter {
			case FilterUnapproved:
				if rec.IsApproved {
					continue
				}
			case FilterApproved:
				if !rec.IsApproved {
					continue
				}
			}
			if !yield(rec) {
				return
			}
		}
	}
}
