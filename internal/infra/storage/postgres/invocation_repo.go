package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/orchestrator/internal/core/domain"
	"github.com/vietddude/orchestrator/internal/infra/storage"
)

// InvocationRepo implements storage.InvocationRepository using PostgreSQL.
type InvocationRepo struct {
	db *DB
}

// NewInvocationRepo creates a new PostgreSQL invocation repository.
func NewInvocationRepo(db *DB) *InvocationRepo {
	return &InvocationRepo{db: db}
}

type invocationRow struct {
	ID            string    `db:"id"`
	BlockNumber   int64     `db:"block_number"`
	SourceTxID    string    `db:"source_tx_id"`
	EventName     string    `db:"event_name"`
	Request       []byte    `db:"request"`
	TransactionID string    `db:"transaction_id"`
	Status        string    `db:"status"`
	ErrorMsg      string    `db:"error_msg"`
	StartedAt     time.Time `db:"started_at"`
	CompletedAt   time.Time `db:"completed_at"`
}

func (row invocationRow) toDomain() (*domain.Invocation, error) {
	inv := &domain.Invocation{
		ID:            row.ID,
		BlockNumber:   uint64(row.BlockNumber),
		SourceTxID:    row.SourceTxID,
		EventName:     row.EventName,
		TransactionID: row.TransactionID,
		Status:        domain.InvocationStatus(row.Status),
		Error:         row.ErrorMsg,
		StartedAt:     row.StartedAt,
		CompletedAt:   row.CompletedAt,
	}
	if len(row.Request) > 0 {
		if err := json.Unmarshal(row.Request, &inv.Request); err != nil {
			return nil, fmt.Errorf("failed to unmarshal request of %s: %w", row.ID, err)
		}
	}
	return inv, nil
}

const invocationColumns = `id, block_number, source_tx_id, event_name, request, transaction_id, status, error_msg, started_at, completed_at`

// Save records a completed invocation.
func (r *InvocationRepo) Save(ctx context.Context, inv *domain.Invocation) error {
	request, err := json.Marshal(inv.Request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	query := `
		INSERT INTO invocations (` + invocationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = r.db.ExecContext(ctx, query,
		inv.ID,
		int64(inv.BlockNumber),
		inv.SourceTxID,
		inv.EventName,
		request,
		inv.TransactionID,
		string(inv.Status),
		inv.Error,
		inv.StartedAt,
		inv.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save invocation: %w", err)
	}
	return nil
}

// GetByID retrieves an invocation by id.
func (r *InvocationRepo) GetByID(ctx context.Context, id string) (*domain.Invocation, error) {
	query := `SELECT ` + invocationColumns + ` FROM invocations WHERE id = $1`

	var row invocationRow
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invocation: %w", err)
	}
	return row.toDomain()
}

// Recent retrieves the most recent invocations.
func (r *InvocationRepo) Recent(ctx context.Context, limit int) ([]*domain.Invocation, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + invocationColumns + ` FROM invocations ORDER BY completed_at DESC LIMIT $1`

	var rows []invocationRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list invocations: %w", err)
	}

	result := make([]*domain.Invocation, 0, len(rows))
	for _, row := range rows {
		inv, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, nil
}

// CountByStatus returns the number of invocations per status.
func (r *InvocationRepo) CountByStatus(ctx context.Context) (map[domain.InvocationStatus]int, error) {
	query := `SELECT status, COUNT(*) AS count FROM invocations GROUP BY status`

	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count invocations: %w", err)
	}

	counts := make(map[domain.InvocationStatus]int, len(rows))
	for _, row := range rows {
		counts[domain.InvocationStatus(row.Status)] = row.Count
	}
	return counts, nil
}

// DeleteOlderThan removes invocations completed before the given time.
func (r *InvocationRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM invocations WHERE completed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune invocations: %w", err)
	}
	return res.RowsAffected()
}
