package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/onnwee/pinmap/internal/auth"
	"github.com/onnwee/pinmap/internal/user"
)

const testJWTSecret = "test-secret-key-at-least-32-bytes-long"

func newTestUserHandlers(t *testing.T) (*UserHandlers, *auth.JWTService) {
	t.Helper()
	tokens := auth.NewJWTService(testJWTSecret)
	return NewUserHandlers(user.NewInMemoryRepository(), tokens), tokens
}

func postJSON(handler http.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestRegister_Success(t *testing.T) {
	h, _ := newTestUserHandlers(t)

	w := postJSON(h.Register, "/api/user/register", `{"username":"alice","email":"alice@example.com","password":"hunter22"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	if strings.Contains(w.Body.String(), "hunter22") || strings.Contains(w.Body.String(), "password") {
		t.Errorf("response must not leak password material: %s", w.Body.String())
	}

	var u user.User
	if err := json.Unmarshal(w.Body.Bytes(), &u); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if u.Username != "alice" {
		t.Errorf("expected username alice, got %s", u.Username)
	}
	if u.ID == "" {
		t.Error("expected generated id")
	}
}

func TestRegister_Duplicate(t *testing.T) {
	h, _ := newTestUserHandlers(t)

	body := `{"username":"alice","email":"alice@example.com","password":"hunter22"}`
	if w := postJSON(h.Register, "/api/user/register", body); w.Code != http.StatusCreated {
		t.Fatalf("expected first register to succeed, got %d", w.Code)
	}

	w := postJSON(h.Register, "/api/user/register", body)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", w.Code)
	}
	if resp := decodeError(t, w.Body); resp.Error.Code != ErrCodeConflict {
		t.Errorf("expected code %s, got %s", ErrCodeConflict, resp.Error.Code)
	}
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{name: "short username", body: `{"username":"al","email":"a@example.com","password":"hunter22"}`, wantField: "username"},
		{name: "bad username chars", body: `{"username":"al ice","email":"a@example.com","password":"hunter22"}`, wantField: "username"},
		{name: "bad email", body: `{"username":"alice","email":"not-an-email","password":"hunter22"}`, wantField: "email"},
		{name: "short password", body: `{"username":"alice","email":"a@example.com","password":"abc"}`, wantField: "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestUserHandlers(t)

			w := postJSON(h.Register, "/api/user/register", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d: %s", w.Code, w.Body.String())
			}
			resp := decodeError(t, w.Body)
			if resp.Error.Code != ErrCodeValidation {
				t.Errorf("expected code %s, got %s", ErrCodeValidation, resp.Error.Code)
			}
			if len(resp.Error.Fields) == 0 || resp.Error.Fields[0].Field != tt.wantField {
				t.Errorf("expected field issue for %s, got %+v", tt.wantField, resp.Error.Fields)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	h, tokens := newTestUserHandlers(t)
	if w := postJSON(h.Register, "/api/user/register", `{"username":"alice","email":"alice@example.com","password":"hunter22"}`); w.Code != http.StatusCreated {
		t.Fatalf("failed to register: %d", w.Code)
	}

	t.Run("success issues a valid token", func(t *testing.T) {
		w := postJSON(h.Login, "/api/user/login", `{"username":"alice","password":"hunter22"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp LoginResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Username != "alice" {
			t.Errorf("expected username alice, got %s", resp.Username)
		}
		claims, err := tokens.ValidateToken(resp.Token)
		if err != nil {
			t.Fatalf("expected valid token, got %v", err)
		}
		if claims.Username() != "alice" {
			t.Errorf("expected token subject alice, got %s", claims.Username())
		}
	})

	for name, body := range map[string]string{
		"wrong password": `{"username":"alice","password":"wrong-password"}`,
		"unknown user":   `{"username":"bob","password":"hunter22"}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := postJSON(h.Login, "/api/user/login", body)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("expected status 401, got %d", w.Code)
			}
			resp := decodeError(t, w.Body)
			if resp.Error.Code != ErrCodeAuthFailed {
				t.Errorf("expected code %s, got %s", ErrCodeAuthFailed, resp.Error.Code)
			}
			if resp.Error.Message != "Invalid username or password" {
				t.Errorf("unexpected message %q", resp.Error.Message)
			}
		})
	}

	t.Run("missing fields", func(t *testing.T) {
		w := postJSON(h.Login, "/api/user/login", `{"username":"alice"}`)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
	})
}
