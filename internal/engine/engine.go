package engine

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"dutyline/internal/config"
	"dutyline/internal/domain"
	"dutyline/internal/journal"
	"dutyline/internal/repo"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Journal journal.Writer
	Config  *config.Config
	Now     func() time.Time

	locks *dutyLocks
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Journal: journal.Writer{DB: db},
		Config:  cfg,
		Now:     time.Now,
		locks:   &dutyLocks{},
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// dutyLocks serializes read-modify-write cycles per duty so two concurrent
// submissions cannot interleave between the read and the overwrite.
type dutyLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *dutyLocks) lock(dutyID string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = map[string]*sync.Mutex{}
	}
	dm, ok := l.m[dutyID]
	if !ok {
		dm = &sync.Mutex{}
		l.m[dutyID] = dm
	}
	l.mu.Unlock()
	dm.Lock()
	return dm.Unlock
}

// ValidationError is a rejected input. The message is what API callers see.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// RecordEventOptions are parameters for recording a duty status change.
type RecordEventOptions struct {
	DutyID         string
	ClientID       string
	Status         string
	Lifecycle      string
	Notes          string
	AttachmentName string
}

// RecordEvent overwrites the duty's status and lifecycle, then appends the
// event/log pair. Validation happens before any read or write; a missing duty
// leaves the store untouched. Any status/lifecycle pair is accepted.
func (e Engine) RecordEvent(ctx context.Context, opts RecordEventOptions) (domain.DutyEvent, domain.Duty, error) {
	if opts.DutyID == "" {
		return domain.DutyEvent{}, domain.Duty{}, invalid("dutyId", "dutyId is required")
	}
	if opts.ClientID == "" {
		return domain.DutyEvent{}, domain.Duty{}, invalid("clientId", "clientId is required")
	}
	if !domain.ValidStatus(opts.Status) {
		return domain.DutyEvent{}, domain.Duty{}, invalid("status", "Invalid duty status")
	}
	if !domain.ValidLifecycle(opts.Lifecycle) {
		return domain.DutyEvent{}, domain.Duty{}, invalid("lifecycle", "Invalid lifecycle value")
	}

	unlock := e.locks.lock(opts.DutyID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.DutyEvent{}, domain.Duty{}, err
	}
	defer tx.Rollback()

	duty, err := e.Repo.GetDuty(ctx, opts.ClientID, opts.DutyID)
	if err != nil {
		return domain.DutyEvent{}, domain.Duty{}, err
	}
	duty.Status = opts.Status
	duty.Lifecycle = opts.Lifecycle
	duty.UpdatedAt = domain.Timestamp(e.now())
	if err := e.Repo.SetDutyStateTx(ctx, tx, duty.ID, duty.Status, duty.Lifecycle, duty.UpdatedAt); err != nil {
		return domain.DutyEvent{}, domain.Duty{}, err
	}
	w := e.Journal
	if w.Now == nil {
		w.Now = e.Now
	}
	event, _, err := w.Append(ctx, tx, duty, opts.Notes, opts.AttachmentName)
	if err != nil {
		return domain.DutyEvent{}, domain.Duty{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.DutyEvent{}, domain.Duty{}, err
	}
	return event, duty, nil
}

// DutyCreateOptions are parameters for creating a duty.
type DutyCreateOptions struct {
	ClientID           string
	Title              string
	Description        string
	DueDate            string
	Frequency          string
	RequiresAttachment bool
	NotesRequired      bool
	AssignedTo         string
}

func (e Engine) CreateDuty(ctx context.Context, opts DutyCreateOptions) (domain.Duty, error) {
	if opts.ClientID == "" {
		return domain.Duty{}, invalid("clientId", "clientId is required")
	}
	if opts.Title == "" {
		return domain.Duty{}, invalid("title", "title is required")
	}
	if _, err := e.Repo.GetClient(ctx, opts.ClientID); err != nil {
		return domain.Duty{}, err
	}
	if opts.AssignedTo != "" {
		if _, err := e.Repo.GetUser(ctx, opts.AssignedTo); err != nil {
			return domain.Duty{}, err
		}
	}
	now := domain.Timestamp(e.now())
	if opts.DueDate == "" {
		opts.DueDate = now
	}
	if opts.Frequency == "" {
		opts.Frequency = "weekly"
	}
	d := domain.Duty{
		ID:                 uuid.NewString(),
		ClientID:           opts.ClientID,
		Title:              opts.Title,
		Description:        opts.Description,
		DueDate:            opts.DueDate,
		Frequency:          opts.Frequency,
		Lifecycle:          domain.LifecycleActive,
		Status:             domain.StatusPending,
		RequiresAttachment: opts.RequiresAttachment,
		NotesRequired:      opts.NotesRequired,
		AssignedTo:         optionalString(opts.AssignedTo),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Duty{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDuty(ctx, tx, d); err != nil {
		return domain.Duty{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Duty{}, err
	}
	return d, nil
}

// DutyUpdateOptions encapsulates allowed field edits; nil fields stay as-is.
type DutyUpdateOptions struct {
	Title       *string
	Description *string
	Frequency   *string
	Status      *string
}

func (e Engine) UpdateDuty(ctx context.Context, dutyID string, opts DutyUpdateOptions) (domain.Duty, error) {
	if dutyID == "" {
		return domain.Duty{}, invalid("dutyId", "dutyId is required")
	}
	if opts.Status != nil && !domain.ValidStatus(*opts.Status) {
		return domain.Duty{}, invalid("status", "Invalid duty status")
	}
	if opts.Title != nil && *opts.Title == "" {
		return domain.Duty{}, invalid("title", "title is required")
	}
	patch := repo.DutyPatch{
		Title:       opts.Title,
		Description: opts.Description,
		Frequency:   opts.Frequency,
		Status:      opts.Status,
	}
	if err := e.Repo.UpdateDuty(ctx, dutyID, patch, domain.Timestamp(e.now())); err != nil {
		return domain.Duty{}, err
	}
	return e.Repo.GetDutyByID(ctx, dutyID)
}

// AssignDuty sets or clears the duty's assignee. An empty userID unassigns.
func (e Engine) AssignDuty(ctx context.Context, dutyID, userID string) (domain.Duty, error) {
	if dutyID == "" {
		return domain.Duty{}, invalid("dutyId", "dutyId is required")
	}
	var assignee *string
	if userID != "" {
		if _, err := e.Repo.GetUser(ctx, userID); err != nil {
			return domain.Duty{}, err
		}
		assignee = &userID
	}
	if err := e.Repo.AssignDuty(ctx, dutyID, assignee, domain.Timestamp(e.now())); err != nil {
		return domain.Duty{}, err
	}
	return e.Repo.GetDutyByID(ctx, dutyID)
}

// ArchiveDuty completes and archives a duty in one recorded step, so the
// archive shows up in the journal like any other status change.
func (e Engine) ArchiveDuty(ctx context.Context, dutyID string) (domain.Duty, error) {
	if dutyID == "" {
		return domain.Duty{}, invalid("dutyId", "dutyId is required")
	}
	duty, err := e.Repo.GetDutyByID(ctx, dutyID)
	if err != nil {
		return domain.Duty{}, err
	}
	_, updated, err := e.RecordEvent(ctx, RecordEventOptions{
		DutyID:    duty.ID,
		ClientID:  duty.ClientID,
		Status:    domain.StatusCompleted,
		Lifecycle: domain.LifecycleArchived,
	})
	if err != nil {
		return domain.Duty{}, err
	}
	return updated, nil
}

// CreateClient registers a client workspace.
func (e Engine) CreateClient(ctx context.Context, id, name, description string) (domain.Client, error) {
	if id == "" {
		return domain.Client{}, invalid("clientId", "clientId is required")
	}
	if name == "" {
		name = id
	}
	now := domain.Timestamp(e.now())
	c := domain.Client{ID: id, Name: name, Description: description, CreatedAt: now, UpdatedAt: now}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Client{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertClient(ctx, tx, c); err != nil {
		return domain.Client{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Client{}, err
	}
	return c, nil
}

// IsNotFound reports whether err is the store's missing-row sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
