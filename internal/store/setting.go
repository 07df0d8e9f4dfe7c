package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"privmsg/internal/database"
)

// Setting returns the raw value stored under name.
func (s *Store) Setting(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := s.q.QueryRowContext(ctx, "SELECT value FROM settings WHERE name = ?", name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: setting %s: %w", name, err)
	}
	return value, true, nil
}

// PutSetting upserts a setting.
func (s *Store) PutSetting(ctx context.Context, name, value string) error {
	query := "INSERT INTO settings (name, value) VALUES (?, ?) "
	switch s.dialect {
	case database.MySQL:
		query += "ON DUPLICATE KEY UPDATE value = VALUES(value)"
	default:
		query += "ON CONFLICT(name) DO UPDATE SET value = excluded.value"
	}
	if _, err := s.q.ExecContext(ctx, query, name, value); err != nil {
		return fmt.Errorf("store: put setting %s: %w", name, err)
	}
	return nil
}
