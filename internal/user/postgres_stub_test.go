//go:build !integration

package user

import "testing"

func addContainerRepositories(*testing.T, map[string]Repository) {}
