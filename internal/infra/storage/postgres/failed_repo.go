package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/orchestrator/internal/core/domain"
)

// FailedBlockRepo implements storage.FailedBlockRepository using PostgreSQL.
type FailedBlockRepo struct {
	db *DB
}

// NewFailedBlockRepo creates a new PostgreSQL failed block repository.
func NewFailedBlockRepo(db *DB) *FailedBlockRepo {
	return &FailedBlockRepo{db: db}
}

type failedBlockRow struct {
	ID          string    `db:"id"`
	Channel     string    `db:"channel"`
	BlockNumber int64     `db:"block_number"`
	FailureType string    `db:"failure_type"`
	ErrorMsg    string    `db:"error_msg"`
	CreatedAt   time.Time `db:"created_at"`
}

// Add adds a failed block.
func (r *FailedBlockRepo) Add(ctx context.Context, fb *domain.FailedBlock) error {
	query := `
		INSERT INTO failed_blocks (id, channel, block_number, failure_type, error_msg, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(
		ctx,
		query,
		fb.ID,
		fb.Channel,
		int64(fb.BlockNumber),
		string(fb.FailureType),
		fb.Error,
		fb.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add failed block: %w", err)
	}
	return nil
}

// GetAll returns the most recent failed blocks for a channel.
func (r *FailedBlockRepo) GetAll(
	ctx context.Context,
	channel string,
	limit int,
) ([]*domain.FailedBlock, error) {
	query := `
		SELECT id, channel, block_number, failure_type, error_msg, created_at
		FROM failed_blocks
		WHERE channel = $1
		ORDER BY created_at DESC
	`
	args := []any{channel}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	var rows []failedBlockRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get failed blocks: %w", err)
	}

	blocks := make([]*domain.FailedBlock, 0, len(rows))
	for _, row := range rows {
		blocks = append(blocks, &domain.FailedBlock{
			ID:          row.ID,
			Channel:     row.Channel,
			BlockNumber: uint64(row.BlockNumber),
			FailureType: domain.FailureType(row.FailureType),
			Error:       row.ErrorMsg,
			CreatedAt:   row.CreatedAt,
		})
	}
	return blocks, nil
}

// Count returns the number of failed blocks.
func (r *FailedBlockRepo) Count(ctx context.Context, channel string) (int, error) {
	query := `SELECT COUNT(*) FROM failed_blocks WHERE channel = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, channel); err != nil {
		return 0, fmt.Errorf("failed to count failed blocks: %w", err)
	}
	return count, nil
}

// DeleteOlderThan removes failed blocks recorded before the given time.
func (r *FailedBlockRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM failed_blocks WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune failed blocks: %w", err)
	}
	return res.RowsAffected()
}
