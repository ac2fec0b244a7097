package memory

import (
	"context"
	"sync"
	"time"

	"github.com/medisync/session-gateway/internal/core/domain"
)

// ClaimsStore is a process-local claims store for single-instance deployments
// and tests. A single mutex makes every operation atomic.
type ClaimsStore struct {
	mu      sync.Mutex
	records map[string]domain.ClaimsRecord
	now     func() time.Time
}

func NewClaimsStore() *ClaimsStore {
	return &ClaimsStore{records: make(map[string]domain.ClaimsRecord), now: time.Now}
}

func (s *ClaimsStore) Get(_ context.Context, uid string) (*domain.ClaimsRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[uid]
	if !ok {
		return nil, domain.ErrClaimsNotFound
	}
	return &rec, nil
}

func (s *ClaimsStore) Provision(_ context.Context, uid string, claims domain.Claims) (*domain.ClaimsRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[uid]
	if !ok {
		now := s.now().UTC()
		rec = domain.ClaimsRecord{UID: uid, Claims: claims, CreatedAt: now, UpdatedAt: now}
		s.records[uid] = rec
	}
	return &rec, nil
}

func (s *ClaimsStore) SetClaims(_ context.Context, uid string, claims domain.Claims) (*domain.ClaimsRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	rec, ok := s.records[uid]
	if !ok {
		rec = domain.ClaimsRecord{UID: uid, CreatedAt: now}
	}
	rec.Claims = claims
	rec.UpdatedAt = now
	s.records[uid] = rec
	return &rec, nil
}

func (s *ClaimsStore) ReserveEpoch(_ context.Context, uid string) (*domain.ClaimsRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[uid]
	if !ok {
		return nil, domain.ErrClaimsNotFound
	}
	rec.Outstanding = true
	s.records[uid] = rec
	return &rec, nil
}

func (s *ClaimsStore) CurrentEpoch(_ context.Context, uid string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[uid]
	if !ok {
		return 0, domain.ErrClaimsNotFound
	}
	return rec.Epoch, nil
}

func (s *ClaimsStore) Revoke(_ context.Context, uid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[uid]
	if !ok || !rec.Outstanding {
		return false, nil
	}
	rec.Epoch++
	rec.Outstanding = false
	rec.UpdatedAt = s.now().UTC()
	s.records[uid] = rec
	return true, nil
}
