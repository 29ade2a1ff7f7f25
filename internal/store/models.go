package store

// Role identifies which side of a consultation a caller is on. The set is
// closed; anything else is rejected at the API boundary.
type Role string

const (
	RolePatient   Role = "patient"
	RoleClinician Role = "clinician"
)

// ResponseStatus tracks the AI draft lifecycle for a query. Transitions are
// pending/loading -> success or error; success and error are terminal.
type ResponseStatus string

const (
	StatusPending ResponseStatus = "pending"
	StatusLoading ResponseStatus = "loading"
	StatusSuccess ResponseStatus = "success"
	StatusError   ResponseStatus = "error"
)

// Terminal reports whether the draft lifecycle has settled; terminal
// statuses are never overwritten by later merges.
func (s ResponseStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// AttachmentKind buckets an upload for display purposes only. Binary
// payloads are never persisted here.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentVideo AttachmentKind = "video"
	AttachmentFile  AttachmentKind = "file"
)

type Attachment struct {
	ID       string         `json:"id"`
	FileName string         `json:"fileName"`
	FileType string         `json:"fileType"`
	Kind     AttachmentKind `json:"type"`
}

// QueryRecord is one patient question plus its AI draft, clinician edit and
// approval state. Text, Timestamp, Attachments and IsUrgent are immutable
// after creation.
type QueryRecord struct {
	ID             string         `json:"id"`
	PatientName    string         `json:"patientName,omitempty"`
	Text           string         `json:"text"`
	Timestamp      int64          `json:"timestamp"` // ms since epoch, default sort key
	Attachments    []Attachment   `json:"attachments,omitempty"`
	AIResponse     string         `json:"aiResponse,omitempty"`
	EditedResponse string         `json:"editedResponse,omitempty"`
	ResponseStatus ResponseStatus `json:"responseStatus"`
	IsApproved     bool           `json:"isApproved"`
	IsUrgent       bool           `json:"isUrgent"`
	IsEditing      bool           `json:"isEditing,omitempty"`
}

// DisplayResponse returns the text a reader should see: the clinician's
// edit when present, the AI draft otherwise. The AI draft is never deleted.
func (q *QueryRecord) DisplayResponse() string {
	if q.EditedResponse != "" {
		return q.EditedResponse
	}
	return q.AIResponse
}

// NotificationType is the event class of a feed entry.
type NotificationType string

const (
	NotifNewQuery       NotificationType = "new_query"
	NotifDoctorResponse NotificationType = "doctor_response"
)

// NotificationRecord is one human-readable event notice. Entries are only
// ever appended and flagged read, never mutated otherwise.
type NotificationRecord struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Timestamp int64            `json:"timestamp"`
	RelatedID string           `json:"relatedId"`
	Text      string           `json:"text"`
	IsRead    bool             `json:"isRead"`
	IsUrgent  bool             `json:"isUrgent,omitempty"`
}

// ListFilter restricts ListFor to a slice of the approval lifecycle.
type ListFilter string

const (
	FilterAll        ListFilter = "all"
	FilterUnapproved ListFilter = "unapproved"
	FilterApproved   ListFilter = "approved"
)
