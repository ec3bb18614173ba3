// Package user stores pinmap accounts.
package user

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	// ErrUserNotFound is returned when no account matches the lookup.
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateUser is returned when the username or email is already taken.
	ErrDuplicateUser = errors.New("username or email already registered")
)

// User is a registered account. PasswordHash is never serialized.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Repository persists users.
type Repository interface {
	// Create stores u. Returns ErrDuplicateUser if the username or email exists.
	Create(ctx context.Context, u *User) error

	// GetByUsername returns the user with the given username.
	GetByUsername(ctx context.Context, username string) (*User, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe; used for development and tests.
type InMemoryRepository struct {
	mu         sync.RWMutex
	byUsername map[string]*User
	emails     map[string]struct{}
}

// NewInMemoryRepository creates a new in-memory user repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byUsername: make(map[string]*User),
		emails:     make(map[string]struct{}),
	}
}

// Create stores a copy of u.
func (r *InMemoryRepository) Create(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, exists := r.byUsername[u.Username]; exists {
		return ErrDuplicateUser
	}
	if _, exists := r.emails[email]; exists {
		return ErrDuplicateUser
	}

	c := *u
	r.byUsername[u.Username] = &c
	r.emails[email] = struct{}{}
	return nil
}

// GetByUsername returns a copy of the stored user.
func (r *InMemoryRepository) GetByUsername(_ context.Context, username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byUsername[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	c := *u
	return &c, nil
}
