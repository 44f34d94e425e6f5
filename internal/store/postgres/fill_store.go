package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quoterlabs/polyquoter/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a FillStore backed by the given connection pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

// Create inserts a fill. Inserting the same fill ID twice is a no-op so the
// poll and websocket observers can race without duplicating rows.
func (s *FillStore) Create(ctx context.Context, f domain.Fill) error {
	const query = `
		INSERT INTO fills (id, market_id, token_id, side, price, size, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		f.ID, f.MarketID, f.TokenID, string(f.Side),
		f.Price, f.Size, string(f.Source), f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create fill %s: %w", f.ID, err)
	}
	return nil
}

// ListBefore returns fills created strictly before the cutoff, oldest first.
func (s *FillStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Fill, error) {
	const query = `
		SELECT id, market_id, token_id, side, price, size, source, created_at
		FROM fills
		WHERE created_at < $1
		ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills before %s: %w", before, err)
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		var side, source string
		if err := rows.Scan(&f.ID, &f.MarketID, &f.TokenID, &side, &f.Price, &f.Size, &source, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan fill: %w", err)
		}
		f.Side = domain.OrderSide(side)
		f.Source = domain.FillSource(source)
		fills = append(fills, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate fills: %w", err)
	}
	return fills, nil
}

// DeleteBefore removes fills created strictly before the cutoff.
func (s *FillStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM fills WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete fills before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}
