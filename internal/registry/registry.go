// Package registry holds the authoritative in-memory map of active sessions
// plus the room-code index. It is the single owner of session state: no
// other component touches the underlying maps. The durable store behind it
// is consulted on cache miss and written through on every mutation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/nikworkspace/anyshare/internal/domain"
	"github.com/nikworkspace/anyshare/internal/storage"
)

// ErrRoomCodeTaken means the generated code collides with a currently
// active session; the caller regenerates and retries.
var ErrRoomCodeTaken = errors.New("registry: room code taken")

// entry carries the per-session lock. All mutations of one session's peers
// and status are serialized on it; different sessions never contend.
type entry struct {
	mu sync.Mutex
	s  *domain.Session
}

type Registry struct {
	store storage.Store

	mu     sync.RWMutex
	byID   map[domain.SessionID]*entry
	byCode map[domain.RoomCode]domain.SessionID
}

func New(store storage.Store) *Registry {
	return &Registry{
		store:  store,
		byID:   make(map[domain.SessionID]*entry),
		byCode: make(map[domain.RoomCode]domain.SessionID),
	}
}

// Put registers a freshly created session in both indices and mirrors it to
// the durable store. The insert is rolled back if the mirror write fails.
func (r *Registry) Put(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	if _, taken := r.byCode[s.RoomCode]; taken {
		r.mu.Unlock()
		return ErrRoomCodeTaken
	}
	r.byID[s.ID] = &entry{s: s}
	r.byCode[s.RoomCode] = s.ID
	r.mu.Unlock()

	if err := r.store.Save(ctx, s); err != nil {
		r.Evict(s.ID)
		return fmt.Errorf("mirror session: %w", err)
	}
	log.Info().Str("module", "registry").Str("session_id", string(s.ID)).Str("room_code", string(s.RoomCode)).Msg("session registered")
	return nil
}

// Update runs fn with exclusive access to the session, loading it from the
// durable store on cache miss. When fn returns nil the session is written
// through to the store before the per-session lock is released.
func (r *Registry) Update(ctx context.Context, id domain.SessionID, fn func(*domain.Session) error) error {
	e, err := r.entryByID(ctx, id)
	if err != nil {
		return err
	}
	return r.run(ctx, e, fn, true)
}

// UpdateByCode is Update keyed by room code.
func (r *Registry) UpdateByCode(ctx context.Context, code domain.RoomCode, fn func(*domain.Session) error) error {
	e, err := r.entryByCode(ctx, code)
	if err != nil {
		return err
	}
	return r.run(ctx, e, fn, true)
}

// View is like Update but never writes through; use it for reads and for
// runtime-only state such as connection handles.
func (r *Registry) View(ctx context.Context, id domain.SessionID, fn func(*domain.Session) error) error {
	e, err := r.entryByID(ctx, id)
	if err != nil {
		return err
	}
	return r.run(ctx, e, fn, false)
}

// ViewByCode is View keyed by room code.
func (r *Registry) ViewByCode(ctx context.Context, code domain.RoomCode, fn func(*domain.Session) error) error {
	e, err := r.entryByCode(ctx, code)
	if err != nil {
		return err
	}
	return r.run(ctx, e, fn, false)
}

// Evict removes the session from both indices atomically. Idempotent:
// evicting an absent session is a no-op.
func (r *Registry) Evict(id domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	delete(r.byCode, e.s.RoomCode)
	log.Info().Str("module", "registry").Str("session_id", string(id)).Str("room_code", string(e.s.RoomCode)).Msg("session evicted")
}

// ActiveIDs snapshots the ids currently cached, for the expiry sweeper.
func (r *Registry) ActiveIDs() []domain.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.SessionID, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *Registry) run(ctx context.Context, e *entry, fn func(*domain.Session) error, writeThrough bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var undo *domain.Session
	if writeThrough {
		undo = e.s.Clone()
	}
	if err := fn(e.s); err != nil {
		return err
	}
	if writeThrough {
		if err := r.store.Save(ctx, e.s); err != nil {
			// the cached session must never diverge from the store: a
			// mutation that could not be mirrored did not happen
			e.s = undo
			return fmt.Errorf("mirror session: %w", err)
		}
	}
	return nil
}

func (r *Registry) entryByID(ctx context.Context, id domain.SessionID) (*entry, error) {
	r.mu.RLock()
	e, ok := r.byID[id]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	s, err := r.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return r.admit(s)
}

func (r *Registry) entryByCode(ctx context.Context, code domain.RoomCode) (*entry, error) {
	r.mu.RLock()
	id, ok := r.byCode[code]
	var e *entry
	if ok {
		e = r.byID[id]
	}
	r.mu.RUnlock()
	if e != nil {
		return e, nil
	}

	s, err := r.store.FindByRoomCode(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return r.admit(s)
}

// admit inserts a store-loaded session into the cache. Terminal sessions
// are never resurrected.
func (r *Registry) admit(s *domain.Session) (*entry, error) {
	if s.Status.Terminal() {
		return nil, domain.ErrSessionNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byID[s.ID]; ok {
		// lost the load race; use the cached entry
		return e, nil
	}
	e := &entry{s: s}
	r.byID[s.ID] = e
	if _, taken := r.byCode[s.RoomCode]; !taken {
		r.byCode[s.RoomCode] = s.ID
	}
	log.Info().Str("module", "registry").Str("session_id", string(s.ID)).Msg("session loaded from store")
	return e, nil
}
