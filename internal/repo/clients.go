package repo

import (
	"context"
	"database/sql"

	"dutyline/internal/domain"
)

func (r Repo) InsertClient(ctx context.Context, tx *sql.Tx, c domain.Client) error {
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	_, err := exec(ctx, `INSERT INTO clients(id,name,description,created_at,updated_at) VALUES (?,?,?,?,?)`,
		c.ID, c.Name, nullable(c.Description), c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) GetClient(ctx context.Context, id string) (domain.Client, error) {
	var c domain.Client
	var desc sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,description,created_at,updated_at FROM clients WHERE id=?`, id).
		Scan(&c.ID, &c.Name, &desc, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if desc.Valid {
		c.Description = desc.String
	}
	return c, err
}

// ClientRow is a client with duty counts for the manager table.
type ClientRow struct {
	domain.Client
	ActiveDutyCount int `json:"activeDutyCount"`
	TotalDutyCount  int `json:"totalDutyCount"`
}

// ListClientRows returns clients with their duty counts; duties not yet
// completed count as active.
func (r Repo) ListClientRows(ctx context.Context) ([]ClientRow, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT c.id,c.name,COALESCE(c.description,''),c.created_at,c.updated_at,
COALESCE(SUM(CASE WHEN d.status!='COMPLETED' THEN 1 ELSE 0 END),0),
COUNT(d.id)
FROM clients c LEFT JOIN duties d ON d.client_id=c.id
GROUP BY c.id ORDER BY c.name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ClientRow
	for rows.Next() {
		var row ClientRow
		if err := rows.Scan(&row.ID, &row.Name, &row.Description, &row.CreatedAt, &row.UpdatedAt,
			&row.ActiveDutyCount, &row.TotalDutyCount); err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, rows.Err()
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	_, err := exec(ctx, `INSERT INTO users(id,name,email,role,created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.Name, nullable(u.Email), u.Role, u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	var email sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,email,role,created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.Name, &email, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if email.Valid {
		u.Email = email.String
	}
	return u, err
}

// ListAssignableUsers returns users that can own duties.
func (r Repo) ListAssignableUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(email,''),role,created_at FROM users
WHERE role IN ('MANAGER','STAFF') ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// DutyRow is a duty joined with client and assignee names for the manager table.
type DutyRow struct {
	domain.Duty
	ClientName     string  `json:"clientName"`
	AssignedToName *string `json:"assignedToName,omitempty"`
}

func (r Repo) ListDutyRows(ctx context.Context) ([]DutyRow, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT d.id,d.client_id,d.title,COALESCE(d.description,''),d.due_date,d.frequency,
d.lifecycle,d.status,d.requires_attachment,d.notes_required,d.assigned_to,d.created_at,d.updated_at,
c.name,u.name
FROM duties d
JOIN clients c ON c.id=d.client_id
LEFT JOIN users u ON u.id=d.assigned_to
ORDER BY d.created_at DESC, d.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []DutyRow
	for rows.Next() {
		var row DutyRow
		var assigned, assignedName sql.NullString
		var reqAttach, notesReq int
		if err := rows.Scan(&row.ID, &row.ClientID, &row.Title, &row.Description, &row.DueDate, &row.Frequency,
			&row.Lifecycle, &row.Status, &reqAttach, &notesReq, &assigned, &row.CreatedAt, &row.UpdatedAt,
			&row.ClientName, &assignedName); err != nil {
			return nil, err
		}
		row.RequiresAttachment = reqAttach != 0
		row.NotesRequired = notesReq != 0
		if assigned.Valid {
			row.AssignedTo = &assigned.String
		}
		if assignedName.Valid {
			row.AssignedToName = &assignedName.String
		}
		res = append(res, row)
	}
	return res, rows.Err()
}

// GetDutyRow returns the joined row for one duty.
func (r Repo) GetDutyRow(ctx context.Context, dutyID string) (DutyRow, error) {
	var row DutyRow
	var assigned, assignedName sql.NullString
	var reqAttach, notesReq int
	err := r.DB.QueryRowContext(ctx, `SELECT d.id,d.client_id,d.title,COALESCE(d.description,''),d.due_date,d.frequency,
d.lifecycle,d.status,d.requires_attachment,d.notes_required,d.assigned_to,d.created_at,d.updated_at,
c.name,u.name
FROM duties d
JOIN clients c ON c.id=d.client_id
LEFT JOIN users u ON u.id=d.assigned_to
WHERE d.id=?`, dutyID).
		Scan(&row.ID, &row.ClientID, &row.Title, &row.Description, &row.DueDate, &row.Frequency,
			&row.Lifecycle, &row.Status, &reqAttach, &notesReq, &assigned, &row.CreatedAt, &row.UpdatedAt,
			&row.ClientName, &assignedName)
	if err == sql.ErrNoRows {
		return row, ErrNotFound
	}
	if err != nil {
		return row, err
	}
	row.RequiresAttachment = reqAttach != 0
	row.NotesRequired = notesReq != 0
	if assigned.Valid {
		row.AssignedTo = &assigned.String
	}
	if assignedName.Valid {
		row.AssignedToName = &assignedName.String
	}
	return row, nil
}
