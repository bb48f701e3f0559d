package testsupport

import (
	"testing"

	"vtranscoder/internal/config"
	"vtranscoder/internal/logging"
	"vtranscoder/internal/state"
)

// MustOpenStore opens the state documents for cfg.
func MustOpenStore(t testing.TB, cfg *config.Config) *state.Store {
	t.Helper()

	store, err := state.Open(cfg.Paths.StateDir, logging.NewNop())
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	return store
}
