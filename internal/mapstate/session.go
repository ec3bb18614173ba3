package mapstate

import (
	"errors"
	"sync"
)

// ErrNoSession is returned by operations that need a signed-in user.
var ErrNoSession = errors.New("no session user")

// User is the signed-in identity. Token authenticates backend writes.
type User struct {
	Username string `json:"username"`
	Token    string `json:"-"`
}

// Session holds the current user, if any. The zero value is signed out.
type Session struct {
	mu   sync.RWMutex
	user *User
}

// NewSession returns a session for u. A nil u is signed out.
func NewSession(u *User) *Session {
	s := &Session{}
	if u != nil {
		s.SignIn(*u)
	}
	return s
}

// User returns a copy of the current user, or nil when signed out.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Username returns the current username, or "" when signed out.
func (s *Session) Username() string {
	if u := s.User(); u != nil {
		return u.Username
	}
	return ""
}

// SignIn replaces the current user. Blank usernames are ignored.
func (s *Session) SignIn(u User) {
	if u.Username == "" {
		return
	}
	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()
}

// SignOut clears the current user.
func (s *Session) SignOut() {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
}
