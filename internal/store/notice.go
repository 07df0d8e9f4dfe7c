package store

import (
	"context"
	"fmt"
	"time"

	"privmsg/internal/model"
)

// InsertNotice stores an inbox notice for n.UserUID.
func (s *Store) InsertNotice(ctx context.Context, n model.Notice, now time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		"INSERT INTO notices (user_uid, title, body, link_path, created_at, read_at) VALUES (?, ?, ?, ?, ?, NULL)",
		n.UserUID, n.Title, n.Body, n.LinkPath, millis(now))
	if err != nil {
		return 0, fmt.Errorf("store: insert notice: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: notice id: %w", err)
	}
	return id, nil
}

// Notices returns the newest notices of uid.
func (s *Store) Notices(ctx context.Context, uid string, limit int) ([]model.Notice, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT id, user_uid, title, body, link_path FROM notices WHERE user_uid = ? ORDER BY id DESC LIMIT ?",
		uid, limit)
	if err != nil {
		return nil, fmt.Errorf("store: notices: %w", err)
	}
	defer rows.Close()

	var out []model.Notice
	for rows.Next() {
		var n model.Notice
		if err := rows.Scan(&n.ID, &n.UserUID, &n.Title, &n.Body, &n.LinkPath); err != nil {
			return nil, fmt.Errorf("store: scan notice: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: notices: %w", err)
	}
	return out, nil
}
