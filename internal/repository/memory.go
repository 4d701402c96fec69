package repository

import (
	"context"
	"sync"
	"time"

	"tablebook/internal/domain"
	"tablebook/internal/models"
)

// MemorySlotStore is a process-local SlotStore.
type MemorySlotStore struct {
	mu     sync.Mutex
	record *models.SlotRecord
}

func NewMemorySlotStore() *MemorySlotStore {
	return &MemorySlotStore{record: models.NewSlotRecord()}
}

func (s *MemorySlotStore) Load(_ context.Context) (*models.SlotRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Clone(), nil
}

func (s *MemorySlotStore) Commit(_ context.Context, record *models.SlotRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record.Version != record.Version {
		return domain.ErrConcurrentModification
	}
	next := record.Clone()
	next.Version++
	s.record = next
	record.Version = next.Version
	return nil
}

func (s *MemorySlotStore) Ping(_ context.Context) error {
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

// MemoryRateLimiter counts requests per key in fixed windows.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{entries: make(map[string]*rateLimitEntry)}
}

func (r *MemoryRateLimiter) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.entries[key] = entry
	}
	entry.count++

	return entry.count <= limit, nil
}
