package domain

import "time"

// Lifecycle values for a duty.
const (
	LifecycleActive   = "ACTIVE"
	LifecycleArchived = "ARCHIVED"
)

// Status values for a duty.
const (
	StatusPending    = "PENDING"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
)

// User roles.
const (
	RoleManager = "MANAGER"
	RoleStaff   = "STAFF"
	RoleClient  = "CLIENT"
)

// TimeLayout is RFC3339 with millisecond precision, used for every stored timestamp.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp formats t in UTC with millisecond precision.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

func ValidLifecycle(l string) bool {
	return l == LifecycleActive || l == LifecycleArchived
}

type Duty struct {
	ID                 string  `json:"id"`
	ClientID           string  `json:"clientId"`
	Title              string  `json:"title"`
	Description        string  `json:"description"`
	DueDate            string  `json:"dueDate" format:"date-time"`
	Frequency          string  `json:"frequency"`
	Lifecycle          string  `json:"lifecycle" enum:"ACTIVE,ARCHIVED"`
	Status             string  `json:"status" enum:"PENDING,IN_PROGRESS,COMPLETED"`
	RequiresAttachment bool    `json:"requiresAttachment,omitempty"`
	NotesRequired      bool    `json:"notesRequired,omitempty"`
	AssignedTo         *string `json:"assignedTo,omitempty"`
	CreatedAt          string  `json:"createdAt" format:"date-time"`
	UpdatedAt          string  `json:"updatedAt" format:"date-time"`
}

// DutyEvent is an immutable record of a single completion/reopen action.
type DutyEvent struct {
	ID             string `json:"id"`
	DutyID         string `json:"dutyId"`
	ClientID       string `json:"clientId"`
	Status         string `json:"status" enum:"PENDING,IN_PROGRESS,COMPLETED"`
	CreatedAt      string `json:"createdAt" format:"date-time"`
	Notes          string `json:"notes,omitempty"`
	AttachmentName string `json:"attachmentName,omitempty"`
}

// DutyLog is an immutable, human-readable audit entry derived from an event.
type DutyLog struct {
	ID        string `json:"id"`
	DutyID    string `json:"dutyId"`
	ClientID  string `json:"clientId"`
	Message   string `json:"message"`
	CreatedAt string `json:"createdAt" format:"date-time"`
	Lifecycle string `json:"lifecycle" enum:"ACTIVE,ARCHIVED"`
	Status    string `json:"status" enum:"PENDING,IN_PROGRESS,COMPLETED"`
}

type Client struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role" enum:"MANAGER,STAFF,CLIENT"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Notification records one webhook delivery of a duty event.
type Notification struct {
	ID        int64  `json:"id"`
	EventSeq  int64  `json:"event_seq"`
	HookURL   string `json:"hook_url"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// TimelineEntry is a log enriched with the duty title for display.
type TimelineEntry struct {
	ID        string `json:"id"`
	DutyID    string `json:"dutyId"`
	DutyTitle string `json:"dutyTitle"`
	Message   string `json:"message"`
	CreatedAt string `json:"createdAt" format:"date-time"`
	Status    string `json:"status" enum:"PENDING,IN_PROGRESS,COMPLETED"`
	Lifecycle string `json:"lifecycle" enum:"ACTIVE,ARCHIVED"`
}

type WeekRange struct {
	Start string `json:"start" format:"date-time"`
	End   string `json:"end" format:"date-time"`
}

type Totals struct {
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
}

// Summary is the derived per-client view; it is recomputed on every read.
type Summary struct {
	ClientID  string          `json:"clientId"`
	WeekRange WeekRange       `json:"weekRange"`
	Active    []Duty          `json:"active"`
	Archived  []Duty          `json:"archived"`
	Timeline  []TimelineEntry `json:"timeline"`
	Totals    Totals          `json:"totals"`
}
