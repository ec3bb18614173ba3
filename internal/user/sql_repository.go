package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/onnwee/pinmap/internal/db"
	"github.com/onnwee/pinmap/internal/tracing"
)

// SQLRepository implements Repository on Postgres or SQLite.
type SQLRepository struct {
	db *db.DB
}

// NewSQLRepository creates a new SQLRepository.
func NewSQLRepository(database *db.DB) *SQLRepository {
	return &SQLRepository{db: database}
}

// Create inserts a new user row.
func (r *SQLRepository) Create(ctx context.Context, u *User) error {
	ctx, end := tracing.StartDBSpan(ctx, r.db.System(), "users", tracing.DBOperationInsert)

	query := r.db.Rebind(`INSERT INTO users (id, username, email, password_hash, created_at_ns) VALUES (?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query, u.ID, u.Username, strings.ToLower(u.Email), u.PasswordHash, u.CreatedAt.UnixNano())
	if db.IsUniqueViolation(err) {
		end(nil)
		return ErrDuplicateUser
	}
	end(err)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetByUsername looks a user up by username.
func (r *SQLRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	ctx, end := tracing.StartDBSpan(ctx, r.db.System(), "users", tracing.DBOperationQuery)

	query := r.db.Rebind(`SELECT id, username, email, password_hash, created_at_ns FROM users WHERE username = ?`)

	var (
		u         User
		createdNs int64
	)
	err := r.db.QueryRowContext(ctx, query, username).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &createdNs)
	if errors.Is(err, sql.ErrNoRows) {
		end(nil)
		return nil, ErrUserNotFound
	}
	end(err)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.CreatedAt = time.Unix(0, createdNs).UTC()
	return &u, nil
}
