package lockout

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/bankauth/internal/models"
)

// UpdateFunc receives the current entry (nil when absent) and returns the
// replacement. Returning nil deletes the entry.
type UpdateFunc func(current *models.AccountLoginState) (*models.AccountLoginState, error)

// StateStore persists ledger entries. Update must run fn under exclusion
// scoped to username so concurrent updates of one key are serialized.
type StateStore interface {
	Get(ctx context.Context, username string) (*models.AccountLoginState, error)
	Update(ctx context.Context, username string, fn UpdateFunc) error
	Delete(ctx context.Context, username string) error
	// DeleteExpired removes active entries whose window started before
	// activeBefore and locked entries whose lock started at or before lockedBefore.
	DeleteExpired(ctx context.Context, activeBefore, lockedBefore time.Time) (int64, error)
}

// MemoryStore is an in-process StateStore
type MemoryStore struct {
	entries sync.Map // username -> models.AccountLoginState
	keys    KeyedMutex
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Get(ctx context.Context, username string) (*models.AccountLoginState, error) {
	v, ok := m.entries.Load(username)
	if !ok {
		return nil, nil
	}
	state := v.(models.AccountLoginState)
	return &state, nil
}

func (m *MemoryStore) Update(ctx context.Context, username string, fn UpdateFunc) error {
	unlock := m.keys.Lock(username)
	defer unlock()

	current, _ := m.Get(ctx, username)
	next, err := fn(current)
	if err != nil {
		return err
	}

	if next == nil {
		m.entries.Delete(username)
		return nil
	}
	m.entries.Store(username, *next)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, username string) error {
	unlock := m.keys.Lock(username)
	defer unlock()

	m.entries.Delete(username)
	return nil
}

func (m *MemoryStore) DeleteExpired(ctx context.Context, activeBefore, lockedBefore time.Time) (int64, error) {
	var usernames []string
	m.entries.Range(func(key, _ any) bool {
		usernames = append(usernames, key.(string))
		return true
	})

	var deleted int64
	for _, username := range usernames {
		err := m.Update(ctx, username, func(current *models.AccountLoginState) (*models.AccountLoginState, error) {
			if current != nil && Expired(current, activeBefore, lockedBefore) {
				deleted++
				return nil, nil
			}
			return current, nil
		})
		if err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

// Expired reports whether an entry falls under the DeleteExpired cutoffs
func Expired(state *models.AccountLoginState, activeBefore, lockedBefore time.Time) bool {
	if state.IsLocked() {
		return !state.WindowStart.After(lockedBefore)
	}
	return state.WindowStart.Before(activeBefore)
}
