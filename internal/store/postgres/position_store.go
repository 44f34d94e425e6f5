package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quoterlabs/polyquoter/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Save appends a position snapshot.
func (s *PositionStore) Save(ctx context.Context, snap domain.PositionSnapshot) error {
	const query = `
		INSERT INTO position_snapshots (market_id, token_id, size, avg_cost, taken_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query,
		snap.MarketID, snap.TokenID, snap.Size, snap.AvgCost, snap.TakenAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save position snapshot %s: %w", snap.TokenID, err)
	}
	return nil
}

// Latest returns the most recent snapshot for a token, or domain.ErrNotFound
// when no snapshot has been taken yet.
func (s *PositionStore) Latest(ctx context.Context, tokenID string) (domain.PositionSnapshot, error) {
	const query = `
		SELECT market_id, token_id, size, avg_cost, taken_at
		FROM position_snapshots
		WHERE token_id = $1
		ORDER BY taken_at DESC
		LIMIT 1`

	var snap domain.PositionSnapshot
	err := s.pool.QueryRow(ctx, query, tokenID).Scan(
		&snap.MarketID, &snap.TokenID, &snap.Size, &snap.AvgCost, &snap.TakenAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PositionSnapshot{}, domain.ErrNotFound
		}
		return domain.PositionSnapshot{}, fmt.Errorf("postgres: latest snapshot %s: %w", tokenID, err)
	}
	return snap, nil
}
