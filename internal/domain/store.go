package domain

import (
	"context"
	"time"
)

// FillStore persists confirmed fills.
type FillStore interface {
	Create(ctx context.Context, fill Fill) error
	// ListBefore returns all fills created strictly before the cutoff,
	// oldest first. Used by the archiver.
	ListBefore(ctx context.Context, before time.Time) ([]Fill, error)
	// DeleteBefore removes fills created strictly before the cutoff and
	// returns the number of rows removed. Called only after a successful
	// archive upload.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// PositionStore persists ledger snapshots.
type PositionStore interface {
	Save(ctx context.Context, snap PositionSnapshot) error
	// Latest returns the most recent snapshot per token. Used to warm the
	// ledger on startup. Returns ErrNotFound when no snapshot exists.
	Latest(ctx context.Context, tokenID string) (PositionSnapshot, error)
}
