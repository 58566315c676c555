package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"dutyline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const dutyColumns = `id,client_id,title,COALESCE(description,'') AS description,due_date,frequency,lifecycle,status,requires_attachment,notes_required,assigned_to,created_at,updated_at`

func scanDuty(scan func(dest ...any) error) (domain.Duty, error) {
	var d domain.Duty
	var assigned sql.NullString
	var reqAttach, notesReq int
	err := scan(&d.ID, &d.ClientID, &d.Title, &d.Description, &d.DueDate, &d.Frequency,
		&d.Lifecycle, &d.Status, &reqAttach, &notesReq, &assigned, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.RequiresAttachment = reqAttach != 0
	d.NotesRequired = notesReq != 0
	if assigned.Valid {
		d.AssignedTo = &assigned.String
	}
	return d, nil
}

// GetDuty looks a duty up by its client/id pair. Reads never cross clients.
func (r Repo) GetDuty(ctx context.Context, clientID, dutyID string) (domain.Duty, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+dutyColumns+` FROM duties WHERE id=? AND client_id=?`, dutyID, clientID)
	return scanDuty(row.Scan)
}

// GetDutyByID looks a duty up by id alone; manager paths are not client-scoped.
func (r Repo) GetDutyByID(ctx context.Context, dutyID string) (domain.Duty, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+dutyColumns+` FROM duties WHERE id=?`, dutyID)
	return scanDuty(row.Scan)
}

func (r Repo) ListDuties(ctx context.Context, clientID string) ([]domain.Duty, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+dutyColumns+` FROM duties WHERE client_id=? ORDER BY created_at DESC, id DESC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Duty
	for rows.Next() {
		d, err := scanDuty(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) InsertDuty(ctx context.Context, tx *sql.Tx, d domain.Duty) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO duties(id,client_id,title,description,due_date,frequency,lifecycle,status,requires_attachment,notes_required,assigned_to,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.ClientID, d.Title, nullable(d.Description), d.DueDate, d.Frequency, d.Lifecycle, d.Status,
		boolInt(d.RequiresAttachment), boolInt(d.NotesRequired), nullableStringPtr(d.AssignedTo), d.CreatedAt, d.UpdatedAt)
	return err
}

// SetDutyStateTx overwrites status and lifecycle in place.
func (r Repo) SetDutyStateTx(ctx context.Context, tx *sql.Tx, dutyID, status, lifecycle, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE duties SET status=?, lifecycle=?, updated_at=? WHERE id=?`,
		status, lifecycle, updatedAt, dutyID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DutyPatch holds optional field updates for a duty; nil fields are left alone.
type DutyPatch struct {
	Title       *string
	Description *string
	Frequency   *string
	Status      *string
}

func (r Repo) UpdateDuty(ctx context.Context, dutyID string, patch DutyPatch, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	if patch.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *patch.Title)
	}
	if patch.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*patch.Description))
	}
	if patch.Frequency != nil {
		fields = append(fields, "frequency=?")
		args = append(args, *patch.Frequency)
	}
	if patch.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *patch.Status)
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, dutyID)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE duties SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) AssignDuty(ctx context.Context, dutyID string, userID *string, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE duties SET assigned_to=?, updated_at=? WHERE id=?`,
		nullableStringPtr(userID), updatedAt, dutyID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListEvents(ctx context.Context, clientID string) ([]domain.DutyEvent, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,duty_id,client_id,status,COALESCE(notes,''),COALESCE(attachment_name,''),created_at
FROM duty_events WHERE client_id=? ORDER BY seq ASC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DutyEvent
	for rows.Next() {
		var e domain.DutyEvent
		if err := rows.Scan(&e.ID, &e.DutyID, &e.ClientID, &e.Status, &e.Notes, &e.AttachmentName, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// ListLogs returns a client's logs newest first. The insertion sequence breaks
// same-millisecond timestamp ties.
func (r Repo) ListLogs(ctx context.Context, clientID string) ([]domain.DutyLog, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,duty_id,client_id,message,lifecycle,status,created_at
FROM duty_logs WHERE client_id=? ORDER BY created_at DESC, seq DESC`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DutyLog
	for rows.Next() {
		var l domain.DutyLog
		if err := rows.Scan(&l.ID, &l.DutyID, &l.ClientID, &l.Message, &l.Lifecycle, &l.Status, &l.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// DutyTitles returns the id->title lookup used to enrich timelines and exports.
func (r Repo) DutyTitles(ctx context.Context, clientID string) (map[string]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,title FROM duties WHERE client_id=?`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	titles := map[string]string{}
	for rows.Next() {
		var id, title string
		if err := rows.Scan(&id, &title); err != nil {
			return nil, err
		}
		titles[id] = title
	}
	return titles, rows.Err()
}

// EventsAfter returns duty events past a sequence cursor, oldest first.
func (r Repo) EventsAfter(ctx context.Context, limit int, afterSeq int64) ([]int64, []domain.DutyEvent, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT seq,id,duty_id,client_id,status,COALESCE(notes,''),COALESCE(attachment_name,''),created_at
FROM duty_events WHERE seq>? ORDER BY seq ASC LIMIT ?`, afterSeq, limit)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var seqs []int64
	var res []domain.DutyEvent
	for rows.Next() {
		var seq int64
		var e domain.DutyEvent
		if err := rows.Scan(&seq, &e.ID, &e.DutyID, &e.ClientID, &e.Status, &e.Notes, &e.AttachmentName, &e.CreatedAt); err != nil {
			return nil, nil, err
		}
		seqs = append(seqs, seq)
		res = append(res, e)
	}
	return seqs, res, rows.Err()
}

func (r Repo) LatestEventSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(seq) FROM duty_events`).Scan(&seq); err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
