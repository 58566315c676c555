package repo

import (
	"context"

	"dutyline/internal/domain"
)

func (r Repo) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO notifications(event_seq,hook_url,status,created_at) VALUES (?,?,?,?)`,
		n.EventSeq, n.HookURL, n.Status, n.CreatedAt)
	return err
}

// ListNotifications returns delivery records, newest first.
func (r Repo) ListNotifications(ctx context.Context, limit int) ([]domain.Notification, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,event_seq,hook_url,status,created_at FROM notifications ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.EventSeq, &n.HookURL, &n.Status, &n.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}
