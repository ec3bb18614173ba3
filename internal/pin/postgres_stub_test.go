//go:build !integration

package pin

import "testing"

func addContainerRepositories(*testing.T, map[string]Repository) {}
