// Package state persists in-flight chain states.
//
// Every implementation guards load-mutate-save per state id: Execute runs
// the mutation while holding the store's lock (mutex, WATCH or FOR UPDATE)
// and fails with sentinel.ErrConflict when the version moved since the
// caller read it. DeleteVersion lets exactly one completer remove a state.
package state

import (
	"fmt"
	"time"

	"authchain/internal/chain/models"
	"authchain/pkg/platform/sentinel"
)

// AnyVersion skips the version check in Execute.
const AnyVersion int64 = -1

// Mutator changes a state in place. Returning an error aborts the write.
type Mutator func(st *models.State) error

func checkVersion(st *models.State, expected int64) error {
	if expected != AnyVersion && st.Version != expected {
		return fmt.Errorf("state version %d, expected %d: %w", st.Version, expected, sentinel.ErrConflict)
	}
	return nil
}

func expired(st *models.State, now time.Time) bool {
	return !st.ExpiresAt.IsZero() && !now.Before(st.ExpiresAt)
}

// apply runs mutate against a copy and bumps its version on success.
func apply(current *models.State, mutate Mutator) (*models.State, error) {
	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.Version = current.Version + 1
	return next, nil
}

func errNotFound(st fmt.Stringer) error {
	return fmt.Errorf("state %s not found: %w", st, sentinel.ErrNotFound)
}
