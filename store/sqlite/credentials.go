package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/circulation-engine/circulation"
)

// =============================================================================
// CREDENTIAL STORE - Used only by the auth package
// =============================================================================

// Credentials returns the account and its password hash. The hash never
// leaves the auth boundary; circulation code only sees circulation.Member.
func (s *Store) Credentials(ctx context.Context, id circulation.MemberID) (circulation.Member, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		m        circulation.Member
		category sql.NullString
		hash     string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, role, category, password_hash FROM users WHERE id = ?", id).
		Scan(&m.ID, &m.Name, &m.Role, &category, &hash)
	if err == sql.ErrNoRows {
		return m, "", circulation.ErrUserNotFound
	}
	if err != nil {
		return m, "", fmt.Errorf("failed to load credentials: %w", err)
	}
	m.Category = circulation.Category(category.String)
	return m, hash, nil
}

// SaveUserWithPassword upserts an account together with its password hash.
func (s *Store) SaveUserWithPassword(ctx context.Context, m circulation.Member, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, password_hash, role, category)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			password_hash = excluded.password_hash,
			role = excluded.role,
			category = excluded.category
	`, m.ID, m.Name, passwordHash, m.Role, nullCategory(m.Category))
	return err
}

// SetPassword replaces an existing account's password hash.
func (s *Store) SetPassword(ctx context.Context, id circulation.MemberID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET password_hash = ? WHERE id = ?", passwordHash, id)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return circulation.ErrUserNotFound
	}
	return nil
}

// CountUsers reports how many accounts exist; the factory uses it to seed
// only an empty database.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n)
	return n, err
}
