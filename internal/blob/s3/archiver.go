package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quoterlabs/polyquoter/internal/domain"
)

const contentTypeJSONL = "application/x-ndjson"

// Putter is the blob upload surface the archiver needs. *Writer satisfies it.
type Putter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Archiver moves fills older than the retention window out of Postgres and
// into object storage as JSONL, one object per run keyed by the cutoff
// timestamp. Rows are deleted only after the upload succeeds, so a failed
// upload retries the same rows on the next run.
type Archiver struct {
	writer    Putter
	fills     domain.FillStore
	retention time.Duration
	logger    *slog.Logger
}

// NewArchiver creates an Archiver that keeps fills newer than retention.
func NewArchiver(writer Putter, fills domain.FillStore, retention time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:    writer,
		fills:     fills,
		retention: retention,
		logger:    logger.With("component", "archiver"),
	}
}

// ArchiveFills uploads and then deletes all fills created before
// now - retention. It returns the number of rows removed.
func (a *Archiver) ArchiveFills(ctx context.Context, now time.Time) (int64, error) {
	before := now.Add(-a.retention)

	fills, err := a.fills.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list fills before %s: %w", before.Format(time.RFC3339), err)
	}
	if len(fills) == 0 {
		return 0, nil
	}

	records := make([]fillRecord, len(fills))
	for i, f := range fills {
		records[i] = newFillRecord(f)
	}
	data, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: marshal fills: %w", err)
	}

	key := archivePath("fills", before)
	if err := a.writer.Put(ctx, key, data, contentTypeJSONL); err != nil {
		return 0, err
	}

	deleted, err := a.fills.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: delete archived fills: %w", err)
	}

	a.logger.Info("archived fills",
		"count", len(fills),
		"deleted", deleted,
		"key", key)
	return deleted, nil
}

// Run archives on a fixed interval until the context is cancelled. Errors
// are logged and the loop continues; a transient store or upload failure
// must not stop future runs.
func (a *Archiver) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := a.ArchiveFills(ctx, now); err != nil {
				a.logger.Error("archive run failed", "error", err)
			}
		}
	}
}

// fillRecord is the stable on-disk shape of an archived fill. Kept separate
// from domain.Fill so renames there cannot silently change the archive
// format.
type fillRecord struct {
	ID        string  `json:"id"`
	MarketID  string  `json:"market_id"`
	TokenID   string  `json:"token_id"`
	Side      string  `json:"side"`
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	Source    string  `json:"source"`
	CreatedAt string  `json:"created_at"`
}

func newFillRecord(f domain.Fill) fillRecord {
	return fillRecord{
		ID:        f.ID,
		MarketID:  f.MarketID,
		TokenID:   f.TokenID,
		Side:      string(f.Side),
		Price:     f.Price,
		Size:      f.Size,
		Source:    string(f.Source),
		CreatedAt: f.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// marshalJSONL encodes items as newline-delimited JSON.
func marshalJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// archivePath builds the object key. Objects are grouped by the cutoff's
// month and named by the full cutoff timestamp, so successive runs within a
// month write distinct objects instead of replacing each other:
// archive/fills/2026-08/20260830T120000Z.jsonl.
func archivePath(kind string, before time.Time) string {
	u := before.UTC()
	return fmt.Sprintf("archive/%s/%s/%s.jsonl", kind, u.Format("2006-01"), u.Format("20060102T150405Z"))
}
