package middleware

import (
	"context"
	"log/slog"
	"net/http"

	json "github.com/goccy/go-json"
)

// Error codes written by middleware. They match the codes used by the api package.
const (
	ErrCodeAuthRequired = "auth_required"
	ErrCodeAuthFailed   = "auth_failed"
	ErrCodeRateLimited  = "rate_limited"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeError writes {"error":{"code","message"}} and records the code for logging.
func writeError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	ctx = SetErrorCode(ctx, code)
	UpdateResponseContext(w, ctx)

	var body errorBody
	body.Error.Code = code
	body.Error.Message = message

	data, err := json.Marshal(body)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		http.Error(w, http.StatusText(status), status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
