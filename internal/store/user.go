package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"privmsg/internal/database"
	"privmsg/internal/model"
)

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var (
		u    model.User
		role string
	)
	if err := row.Scan(&u.UID, &u.Name, &u.Avatar, &role); err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	return u, nil
}

// User loads a profile by uid.
func (s *Store) User(ctx context.Context, uid string) (model.User, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx,
		"SELECT uid, name, avatar, role FROM users WHERE uid = ?", uid))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("store: user: %w", err)
	}
	return u, nil
}

// Users loads several profiles keyed by uid. Unknown uids are absent
// from the result.
func (s *Store) Users(ctx context.Context, uids []string) (map[string]model.User, error) {
	out := make(map[string]model.User, len(uids))
	if len(uids) == 0 {
		return out, nil
	}
	args := make([]any, len(uids))
	for i, uid := range uids {
		args[i] = uid
	}
	rows, err := s.q.QueryContext(ctx,
		"SELECT uid, name, avatar, role FROM users WHERE uid IN ("+placeholders(len(uids))+")", args...)
	if err != nil {
		return nil, fmt.Errorf("store: users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan user: %w", err)
		}
		out[u.UID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: users: %w", err)
	}
	return out, nil
}

// UserSearch filters the user directory.
type UserSearch struct {
	Query   string
	Exclude string
	Roles   []model.Role
	Limit   int
}

// SearchUsers matches q against uid (exact) or name (substring) among
// users whose role is in f.Roles, excluding f.Exclude.
func (s *Store) SearchUsers(ctx context.Context, f UserSearch) ([]model.User, error) {
	if len(f.Roles) == 0 {
		return nil, nil
	}
	pattern := "%" + escapeLike(f.Query) + "%"
	args := []any{f.Exclude, f.Query, pattern}
	for _, r := range f.Roles {
		args = append(args, string(r))
	}
	args = append(args, f.Limit)

	rows, err := s.q.QueryContext(ctx,
		`SELECT uid, name, avatar, role FROM users
		WHERE uid <> ? AND (uid = ? OR name LIKE ? ESCAPE '!')
			AND role IN (`+placeholders(len(f.Roles))+`)
		ORDER BY name, uid LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: search users: %w", err)
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: search users: %w", err)
	}
	return out, nil
}

func escapeLike(q string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(q)
}

// PutUser inserts or replaces a profile. The messaging core only reads
// users; this exists for seeding development and test databases.
func (s *Store) PutUser(ctx context.Context, u model.User) error {
	query := "INSERT INTO users (uid, name, avatar, role) VALUES (?, ?, ?, ?) "
	switch s.dialect {
	case database.MySQL:
		query += "ON DUPLICATE KEY UPDATE name = VALUES(name), avatar = VALUES(avatar), role = VALUES(role)"
	default:
		query += "ON CONFLICT(uid) DO UPDATE SET name = excluded.name, avatar = excluded.avatar, role = excluded.role"
	}
	if _, err := s.q.ExecContext(ctx, query, u.UID, u.Name, u.Avatar, string(u.Role)); err != nil {
		return fmt.Errorf("store: put user: %w", err)
	}
	return nil
}
