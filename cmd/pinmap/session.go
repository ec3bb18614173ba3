package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/onnwee/pinmap/internal/mapstate"
)

// storedSession is the on-disk login. mapstate.User keeps its token out of
// JSON, so it is copied here explicitly.
type storedSession struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".pinmap-session.json"
	}
	return filepath.Join(dir, "pinmap", "session.json")
}

// loadSession returns the saved user, or nil when nobody is signed in.
func loadSession(path string) (*mapstate.User, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var s storedSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", path, err)
	}
	if s.Username == "" || s.Token == "" {
		return nil, nil
	}
	return &mapstate.User{Username: s.Username, Token: s.Token}, nil
}

func saveSession(path string, u *mapstate.User) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.MarshalIndent(storedSession{Username: u.Username, Token: u.Token}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func clearSession(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}
