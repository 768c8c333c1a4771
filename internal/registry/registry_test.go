package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikworkspace/anyshare/internal/domain"
	"github.com/nikworkspace/anyshare/internal/storage"
)

func newSession(code domain.RoomCode) *domain.Session {
	return domain.NewSession(code, time.Now(), 5*time.Minute, 2)
}

func TestPutAndLookup(t *testing.T) {
	ctx := context.Background()
	reg := New(storage.NewMemoryStore())

	s := newSession("SWIFT-0001")
	require.NoError(t, reg.Put(ctx, s))
	assert.Equal(t, 1, reg.Len())

	err := reg.ViewByCode(ctx, "SWIFT-0001", func(got *domain.Session) error {
		assert.Equal(t, s.ID, got.ID)
		return nil
	})
	require.NoError(t, err)

	err = reg.View(ctx, s.ID, func(got *domain.Session) error {
		assert.Equal(t, domain.RoomCode("SWIFT-0001"), got.RoomCode)
		return nil
	})
	require.NoError(t, err)
}

func TestPutRoomCodeCollision(t *testing.T) {
	ctx := context.Background()
	reg := New(storage.NewMemoryStore())

	require.NoError(t, reg.Put(ctx, newSession("SWIFT-0001")))
	err := reg.Put(ctx, newSession("SWIFT-0001"))
	assert.ErrorIs(t, err, ErrRoomCodeTaken)
}

func TestLookupMiss(t *testing.T) {
	ctx := context.Background()
	reg := New(storage.NewMemoryStore())

	err := reg.View(ctx, "absent", func(*domain.Session) error { return nil })
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	err = reg.ViewByCode(ctx, "BOLT-9999", func(*domain.Session) error { return nil })
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestUpdateWritesThrough(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	reg := New(store)

	s := newSession("WAVE-4242")
	require.NoError(t, reg.Put(ctx, s))

	err := reg.Update(ctx, s.ID, func(cur *domain.Session) error {
		cur.Status = domain.StatusConnected
		return nil
	})
	require.NoError(t, err)

	persisted, err := store.FindByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConnected, persisted.Status)
}

// failingStore wraps a real store and errors every Save while fail is set.
type failingStore struct {
	storage.Store
	fail bool
}

func (f *failingStore) Save(ctx context.Context, s *domain.Session) error {
	if f.fail {
		return errors.New("store unavailable")
	}
	return f.Store.Save(ctx, s)
}

func TestUpdateRollsBackOnSaveFailure(t *testing.T) {
	ctx := context.Background()
	fs := &failingStore{Store: storage.NewMemoryStore()}
	reg := New(fs)

	s := newSession("ZOOM-3131")
	require.NoError(t, reg.Put(ctx, s))

	fs.fail = true
	err := reg.Update(ctx, s.ID, func(cur *domain.Session) error {
		cur.Status = domain.StatusConnected
		cur.Peers["peer-x"] = &domain.Peer{ID: "peer-x"}
		return nil
	})
	require.Error(t, err)

	// nothing of the failed mutation is visible in the cache
	err = reg.View(ctx, s.ID, func(cur *domain.Session) error {
		assert.Equal(t, domain.StatusWaiting, cur.Status)
		assert.Equal(t, 0, cur.PeerCount())
		return nil
	})
	require.NoError(t, err)

	// and the store still holds the pre-mutation record
	persisted, err := fs.FindByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaiting, persisted.Status)
	assert.Equal(t, 0, persisted.PeerCount())
}

func TestEvictIdempotent(t *testing.T) {
	ctx := context.Background()
	reg := New(storage.NewMemoryStore())

	s := newSession("FROST-0007")
	require.NoError(t, reg.Put(ctx, s))

	reg.Evict(s.ID)
	reg.Evict(s.ID) // no-op
	assert.Equal(t, 0, reg.Len())
}

func TestCacheMissLoadsFromStore(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	s := newSession("STORM-1111")
	require.NoError(t, store.Save(ctx, s))

	// fresh registry: simulates lookup after a process restart
	reg := New(store)
	err := reg.ViewByCode(ctx, "STORM-1111", func(got *domain.Session) error {
		assert.Equal(t, s.ID, got.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())
}

func TestTerminalSessionNotResurrected(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	s := newSession("FIRE-2222")
	s.Status = domain.StatusClosed
	require.NoError(t, store.Save(ctx, s))

	reg := New(store)
	err := reg.View(ctx, s.ID, func(*domain.Session) error { return nil })
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Equal(t, 0, reg.Len())
}
