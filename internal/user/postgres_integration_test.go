//go:build integration

package user

import (
	"testing"

	"github.com/onnwee/pinmap/internal/db/dbtest"
)

// addContainerRepositories runs the repository suite against real Postgres.
func addContainerRepositories(t *testing.T, repos map[string]Repository) {
	t.Helper()
	repos["postgres"] = NewSQLRepository(dbtest.Postgres(t))
}
