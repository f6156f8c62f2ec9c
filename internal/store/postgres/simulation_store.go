package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vsimlabs/vaultsim/internal/domain"
)

// SimulationStore implements domain.SimulationStore using PostgreSQL.
type SimulationStore struct {
	pool *pgxpool.Pool
}

// NewSimulationStore creates a SimulationStore backed by the given pool.
func NewSimulationStore(pool *pgxpool.Pool) *SimulationStore {
	return &SimulationStore{pool: pool}
}

const simulationSelectCols = `id, wallet, vault, direction, path,
	source_token, source_amount, target_token, target_amount, target_usdc,
	conversion_rate, slippage, fork_id, duration_ms, created_at`

func scanSimulationRows(rows pgx.Rows) ([]domain.SimulationRecord, error) {
	var recs []domain.SimulationRecord
	for rows.Next() {
		var r domain.SimulationRecord
		if err := rows.Scan(
			&r.ID, &r.Wallet, &r.Vault, &r.Direction, &r.Path,
			&r.SourceToken, &r.SourceAmount, &r.TargetToken,
			&r.TargetAmount, &r.TargetUSDC,
			&r.ConversionRate, &r.Slippage, &r.ForkID,
			&r.DurationMs, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Insert persists one completed simulation.
func (s *SimulationStore) Insert(ctx context.Context, rec domain.SimulationRecord) error {
	const query = `
		INSERT INTO simulations (
			id, wallet, vault, direction, path,
			source_token, source_amount, target_token, target_amount,
			target_usdc, conversion_rate, slippage, fork_id,
			duration_ms, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13,
			$14, $15
		)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Wallet, rec.Vault, rec.Direction, rec.Path,
		rec.SourceToken, rec.SourceAmount, rec.TargetToken, rec.TargetAmount,
		rec.TargetUSDC, rec.ConversionRate, rec.Slippage, rec.ForkID,
		rec.DurationMs, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert simulation %s: %w", rec.ID, err)
	}
	return nil
}

// Get retrieves one simulation by id.
// It returns domain.ErrNotFound when no row exists.
func (s *SimulationStore) Get(ctx context.Context, id string) (domain.SimulationRecord, error) {
	query := `SELECT ` + simulationSelectCols + ` FROM simulations WHERE id = $1`

	var r domain.SimulationRecord
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&r.ID, &r.Wallet, &r.Vault, &r.Direction, &r.Path,
		&r.SourceToken, &r.SourceAmount, &r.TargetToken,
		&r.TargetAmount, &r.TargetUSDC,
		&r.ConversionRate, &r.Slippage, &r.ForkID,
		&r.DurationMs, &r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SimulationRecord{}, domain.ErrNotFound
		}
		return domain.SimulationRecord{}, fmt.Errorf("postgres: get simulation %s: %w", id, err)
	}
	return r, nil
}

// List returns simulations, newest first, optionally filtered by wallet.
func (s *SimulationStore) List(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.SimulationRecord, error) {
	query := `SELECT ` + simulationSelectCols + ` FROM simulations`
	args := []any{}
	argIdx := 1

	if wallet != "" {
		query += fmt.Sprintf(" WHERE wallet = $%d", argIdx)
		args = append(args, wallet)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list simulations: %w", err)
	}
	defer rows.Close()

	recs, err := scanSimulationRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan simulations: %w", err)
	}
	return recs, nil
}

// ListBefore returns up to limit simulations created before cutoff, oldest
// first, for archival.
func (s *SimulationStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.SimulationRecord, error) {
	query := `SELECT ` + simulationSelectCols + ` FROM simulations
		WHERE created_at < $1 ORDER BY created_at ASC LIMIT $2`

	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list simulations before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	defer rows.Close()

	recs, err := scanSimulationRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan simulations: %w", err)
	}
	return recs, nil
}

// DeleteBefore removes simulations created before cutoff and returns the
// number of rows deleted.
func (s *SimulationStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM simulations WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete simulations before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.SimulationStore = (*SimulationStore)(nil)
