package storage

import (
	"context"
	"sync"

	"github.com/nikworkspace/anyshare/internal/domain"
)

// MemoryStore keeps session records in process memory. Default backend for
// single-node deployments and tests; everything durable-store shaped goes
// through the same record conversion as the DynamoDB backend.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[domain.SessionID]sessionRecord
	byCode map[domain.RoomCode]domain.SessionID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[domain.SessionID]sessionRecord),
		byCode: make(map[domain.RoomCode]domain.SessionID),
	}
}

func (m *MemoryStore) Save(_ context.Context, s *domain.Session) error {
	rec := toRecord(s)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[s.ID] = rec
	m.byCode[s.RoomCode] = s.ID
	return nil
}

func (m *MemoryStore) FindByID(_ context.Context, id domain.SessionID) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return fromRecord(rec), nil
}

func (m *MemoryStore) FindByRoomCode(ctx context.Context, code domain.RoomCode) (*domain.Session, error) {
	m.mu.RLock()
	id, ok := m.byCode[code]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.FindByID(ctx, id)
}
