package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/orchestrator/internal/core/domain"
)

var (
	// ErrNotFound is returned when a record doesn't exist
	ErrNotFound = errors.New("not found")
)

// FailedBlockRepository stores blocks whose processing was abandoned
type FailedBlockRepository interface {
	// Add adds a failed block
	Add(ctx context.Context, failedBlock *domain.FailedBlock) error

	// GetAll retrieves the most recent failed blocks, newest first.
	// limit <= 0 returns all of them.
	GetAll(ctx context.Context, channel string, limit int) ([]*domain.FailedBlock, error)

	// Count returns the count of failed blocks
	Count(ctx context.Context, channel string) (int, error)
}

// InvocationRepository stores completed invocation attempts
type InvocationRepository interface {
	// Save records a completed invocation
	Save(ctx context.Context, inv *domain.Invocation) error

	// GetByID retrieves an invocation by id
	GetByID(ctx context.Context, id string) (*domain.Invocation, error)

	// Recent retrieves the most recent invocations, newest first
	Recent(ctx context.Context, limit int) ([]*domain.Invocation, error)

	// CountByStatus returns the number of invocations per status
	CountByStatus(ctx context.Context) (map[domain.InvocationStatus]int, error)
}

// Prunable is implemented by repositories that can drop records by age.
type Prunable interface {
	// DeleteOlderThan removes records created before the given time and
	// returns how many were removed
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
