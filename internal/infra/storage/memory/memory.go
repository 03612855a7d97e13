package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/orchestrator/internal/core/domain"
	"github.com/vietddude/orchestrator/internal/infra/storage"
)

type MemoryStorage struct {
	failed      map[string][]*domain.FailedBlock
	invocations map[string]*domain.Invocation
	mu          sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		failed:      make(map[string][]*domain.FailedBlock),
		invocations: make(map[string]*domain.Invocation),
	}
}

// -----------------------------------------------------------------------------
// Failed Block Repository
// -----------------------------------------------------------------------------

type FailedRepo struct {
	store *MemoryStorage
}

func NewFailedRepo(s *MemoryStorage) *FailedRepo { return &FailedRepo{store: s} }

func (r *FailedRepo) Add(ctx context.Context, f *domain.FailedBlock) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.failed[f.Channel] = append(r.store.failed[f.Channel], f)
	return nil
}

func (r *FailedRepo) GetAll(ctx context.Context, channel string, limit int) ([]*domain.FailedBlock, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	all := r.store.failed[channel]
	result := make([]*domain.FailedBlock, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(result) == limit {
			break
		}
		result = append(result, all[i])
	}
	return result, nil
}

func (r *FailedRepo) Count(ctx context.Context, channel string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.failed[channel]), nil
}

func (r *FailedRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var removed int64
	for channel, list := range r.store.failed {
		kept := list[:0]
		for _, f := range list {
			if f.CreatedAt.Before(before) {
				removed++
				continue
			}
			kept = append(kept, f)
		}
		r.store.failed[channel] = kept
	}
	return removed, nil
}

// -----------------------------------------------------------------------------
// Invocation Repository
// -----------------------------------------------------------------------------

type InvocationRepo struct {
	store *MemoryStorage
}

func NewInvocationRepo(s *MemoryStorage) *InvocationRepo { return &InvocationRepo{store: s} }

func (r *InvocationRepo) Save(ctx context.Context, inv *domain.Invocation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.invocations[inv.ID] = inv
	return nil
}

func (r *InvocationRepo) GetByID(ctx context.Context, id string) (*domain.Invocation, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	inv, ok := r.store.invocations[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return inv, nil
}

func (r *InvocationRepo) Recent(ctx context.Context, limit int) ([]*domain.Invocation, error) {
	r.store.mu.RLock()
	result := make([]*domain.Invocation, 0, len(r.store.invocations))
	for _, inv := range r.store.invocations {
		result = append(result, inv)
	}
	r.store.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CompletedAt.After(result[j].CompletedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *InvocationRepo) CountByStatus(ctx context.Context) (map[domain.InvocationStatus]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	counts := make(map[domain.InvocationStatus]int)
	for _, inv := range r.store.invocations {
		counts[inv.Status]++
	}
	return counts, nil
}

func (r *InvocationRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var removed int64
	for id, inv := range r.store.invocations {
		if inv.CompletedAt.Before(before) {
			delete(r.store.invocations, id)
			removed++
		}
	}
	return removed, nil
}
