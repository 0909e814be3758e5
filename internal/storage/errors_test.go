package storage

import (
	"errors"
	"testing"

	"github.com/blastline/blastline/internal/storage/postgres"
	"github.com/blastline/blastline/internal/storage/sqlite"
)

// Handlers branch on ErrNotFound via errors.Is, so every driver's sentinel
// must be the same value as the facade's.
func TestDriverNotFoundMatchesFacade(t *testing.T) {
	if !errors.Is(postgres.ErrNotFound, ErrNotFound) {
		t.Error("postgres sentinel does not match the facade's ErrNotFound")
	}
	if !errors.Is(sqlite.ErrNotFound, ErrNotFound) {
		t.Error("sqlite sentinel does not match the facade's ErrNotFound")
	}
}
