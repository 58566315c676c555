package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dutyline/internal/domain"
)

// Writer appends the immutable event/log pair produced by a status change.
// Both rows go into the caller's transaction so a failed commit leaves no
// partial history behind.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// Message renders the audit line for a status. Completion gets its own
// wording; every other status reads as a revert to pending.
func Message(title, status string) string {
	if status == domain.StatusCompleted {
		return fmt.Sprintf("%s marked completed", title)
	}
	return fmt.Sprintf("%s reverted to pending", title)
}

// Append records one duty event and its derived log entry. The duty passed in
// must already reflect the new status and lifecycle.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, duty domain.Duty, notes, attachmentName string) (domain.DutyEvent, domain.DutyLog, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := domain.Timestamp(now())

	event := domain.DutyEvent{
		ID:             uuid.NewString(),
		DutyID:         duty.ID,
		ClientID:       duty.ClientID,
		Status:         duty.Status,
		CreatedAt:      ts,
		Notes:          notes,
		AttachmentName: attachmentName,
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO duty_events(id,duty_id,client_id,status,notes,attachment_name,created_at) VALUES (?,?,?,?,?,?,?)`,
		event.ID, event.DutyID, event.ClientID, event.Status, nullable(event.Notes), nullable(event.AttachmentName), event.CreatedAt)
	if err != nil {
		return domain.DutyEvent{}, domain.DutyLog{}, fmt.Errorf("insert duty event: %w", err)
	}

	log := domain.DutyLog{
		ID:        uuid.NewString(),
		DutyID:    duty.ID,
		ClientID:  duty.ClientID,
		Message:   Message(duty.Title, duty.Status),
		CreatedAt: ts,
		Lifecycle: duty.Lifecycle,
		Status:    duty.Status,
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO duty_logs(id,duty_id,client_id,message,lifecycle,status,created_at) VALUES (?,?,?,?,?,?,?)`,
		log.ID, log.DutyID, log.ClientID, log.Message, log.Lifecycle, log.Status, log.CreatedAt)
	if err != nil {
		return domain.DutyEvent{}, domain.DutyLog{}, fmt.Errorf("insert duty log: %w", err)
	}
	return event, log, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
