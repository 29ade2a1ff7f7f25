package store

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Bucket names for the two role-scoped feeds. A notice written for the
// doctor is invisible to the patient feed and vice versa.
const (
	DoctorNotificationBucket  = "doctorNotifications"
	PatientNotificationBucket = "patientNotifications"
)

// NotificationFeed is an append-only per-role log of event notices.
// Entries are prepended and later flagged read, never otherwise mutated,
// so it carries none of the QueryStore merge concerns.
type NotificationFeed struct {
	buckets *BucketStore
}

func NewNotificationFeed(buckets *BucketStore) *NotificationFeed {
	return &NotificationFeed{buckets: buckets}
}

func bucketFor(role Role) string {
	if role == RoleClinician {
		return DoctorNotificationBucket
	}
	return PatientNotificationBucket
}

func (f *NotificationFeed) readAll(role Role) []NotificationRecord {
	payload, err := f.buckets.Get(bucketFor(role))
	if err != nil {
		log.Printf("Failed to read %s feed, treating as empty: %v", role, err)
		return nil
	}
	if len(payload) == 0 {
		return nil
	}

	var records []NotificationRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		log.Printf("Malformed %s feed content, treating as empty: %v", role, err)
		return nil
	}
	return records
}

func (f *NotificationFeed) writeAll(role Role, records []NotificationRecord) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal %s feed: %w", role, err)
	}
	return f.buckets.Put(bucketFor(role), payload)
}

// Post prepends a notice to one role's feed, assigning id and timestamp.
func (f *NotificationFeed) Post(role Role, notice NotificationRecord) (*NotificationRecord, error) {
	if notice.ID == "" {
		notice.ID = uuid.NewString()
	}
	if notice.Timestamp == 0 {
		notice.Timestamp = time.Now().UnixMilli()
	}

	records := f.readAll(role)
	records = append([]NotificationRecord{notice}, records...)
	if err := f.writeAll(role, records); err != nil {
		return nil, err
	}
	return &notice, nil
}

// List returns the feed, most recent first.
func (f *NotificationFeed) List(role Role) []NotificationRecord {
	return f.readAll(role)
}

// MarkRead flags one entry read. Idempotent; returns false if the entry is
// not in the feed.
func (f *NotificationFeed) MarkRead(role Role, id string) (bool, error) {
	records := f.readAll(role)
	for i := range records {
		if records[i].ID != id {
			continue
		}
		if records[i].IsRead {
			return true, nil // already read, nothing to write
		}
		records[i].IsRead = true
		if err := f.writeAll(role, records); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// MarkAllRead flags every entry in one role's feed read.
func (f *NotificationFeed) MarkAllRead(role Role) error {
	records := f.readAll(role)
	changed := false
	for i := range records {
		if !records[i].IsRead {
			records[i].IsRead = true
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return f.writeAll(role, records)
}

// UnreadCount counts entries not yet flagged read.
func (f *NotificationFeed) UnreadCount(role Role) int {
	count := 0
	for _, rec := range f.readAll(role) {
		if !rec.IsRead {
			count++
		}
	}
	return count
}
