package identity

import (
	"context"
	"sync"

	"github.com/meshim/imcore/internal/imtypes"
)

// InMemoryStore is a Store fake for tests.
type InMemoryStore struct {
	mu        sync.Mutex
	byExtId   map[imtypes.ExtId]imtypes.ExtId
	byName    map[string]imtypes.ExtId
	byPhone   map[string]imtypes.ExtId
	byLegacy  map[int64]imtypes.ExtId
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byExtId:  make(map[imtypes.ExtId]imtypes.ExtId),
		byName:   make(map[string]imtypes.ExtId),
		byPhone:  make(map[string]imtypes.ExtId),
		byLegacy: make(map[int64]imtypes.ExtId),
	}
}

func (s *InMemoryStore) AddUsername(name string, id imtypes.ExtId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byExtId[id] = id
	s.byName[name] = id
}

func (s *InMemoryStore) AddPhone(phone string, id imtypes.ExtId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byExtId[id] = id
	s.byPhone[phone] = id
}

func (s *InMemoryStore) AddLegacyId(legacyId int64, id imtypes.ExtId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byExtId[id] = id
	s.byLegacy[legacyId] = id
}

func (s *InMemoryStore) LookupByExtId(ctx context.Context, id imtypes.ExtId) (imtypes.ExtId, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	got, ok := s.byExtId[id]
	return got, ok, nil
}

func (s *InMemoryStore) LookupByUsername(ctx context.Context, username string) (imtypes.ExtId, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	got, ok := s.byName[username]
	return got, ok, nil
}

func (s *InMemoryStore) LookupByPhone(ctx context.Context, phone string) (imtypes.ExtId, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	got, ok := s.byPhone[phone]
	return got, ok, nil
}

func (s *InMemoryStore) LookupByLegacyId(ctx context.Context, legacyId int64) (imtypes.ExtId, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	got, ok := s.byLegacy[legacyId]
	return got, ok, nil
}
