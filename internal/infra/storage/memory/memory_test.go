package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/orchestrator/internal/core/domain"
	"github.com/vietddude/orchestrator/internal/infra/storage"
)

func TestFailedRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewFailedRepo(NewMemoryStorage())

	for i := uint64(1); i <= 3; i++ {
		if err := repo.Add(ctx, &domain.FailedBlock{ID: "fb", Channel: "mychannel", BlockNumber: i}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	_ = repo.Add(ctx, &domain.FailedBlock{Channel: "other", BlockNumber: 99})

	count, _ := repo.Count(ctx, "mychannel")
	if count != 3 {
		t.Errorf("expected 3 failed blocks, got %d", count)
	}

	latest, _ := repo.GetAll(ctx, "mychannel", 2)
	if len(latest) != 2 || latest[0].BlockNumber != 3 || latest[1].BlockNumber != 2 {
		t.Errorf("expected newest first with limit, got %+v", latest)
	}

	all, _ := repo.GetAll(ctx, "mychannel", 0)
	if len(all) != 3 {
		t.Errorf("expected all 3, got %d", len(all))
	}
}

func TestInvocationRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewInvocationRepo(NewMemoryStorage())
	now := time.Now()

	_ = repo.Save(ctx, &domain.Invocation{ID: "a", Status: domain.InvocationStatusSucceeded, CompletedAt: now})
	_ = repo.Save(ctx, &domain.Invocation{ID: "b", Status: domain.InvocationStatusFailed, CompletedAt: now.Add(time.Second)})
	_ = repo.Save(ctx, &domain.Invocation{ID: "c", Status: domain.InvocationStatusSucceeded, CompletedAt: now.Add(2 * time.Second)})

	recent, _ := repo.Recent(ctx, 2)
	if len(recent) != 2 || recent[0].ID != "c" || recent[1].ID != "b" {
		t.Errorf("unexpected recent order: %+v", recent)
	}

	counts, _ := repo.CountByStatus(ctx)
	if counts[domain.InvocationStatusSucceeded] != 2 || counts[domain.InvocationStatusFailed] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	inv, err := repo.GetByID(ctx, "a")
	if err != nil || inv.ID != "a" {
		t.Errorf("expected invocation a, got %+v, %v", inv, err)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	failed := NewFailedRepo(store)
	invocations := NewInvocationRepo(store)
	now := time.Now()

	_ = failed.Add(ctx, &domain.FailedBlock{ID: "old", Channel: "mychannel", CreatedAt: now.Add(-2 * time.Hour)})
	_ = failed.Add(ctx, &domain.FailedBlock{ID: "new", Channel: "mychannel", CreatedAt: now})
	_ = invocations.Save(ctx, &domain.Invocation{ID: "old", CompletedAt: now.Add(-2 * time.Hour)})
	_ = invocations.Save(ctx, &domain.Invocation{ID: "new", CompletedAt: now})

	cutoff := now.Add(-time.Hour)
	if n, _ := failed.DeleteOlderThan(ctx, cutoff); n != 1 {
		t.Errorf("expected 1 failed block pruned, got %d", n)
	}
	if n, _ := invocations.DeleteOlderThan(ctx, cutoff); n != 1 {
		t.Errorf("expected 1 invocation pruned, got %d", n)
	}

	remaining, _ := failed.GetAll(ctx, "mychannel", 0)
	if len(remaining) != 1 || remaining[0].ID != "new" {
		t.Errorf("unexpected remaining failed blocks: %+v", remaining)
	}
	if _, err := invocations.GetByID(ctx, "old"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected old invocation to be gone, got %v", err)
	}
}
