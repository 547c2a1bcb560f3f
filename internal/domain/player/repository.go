package player

import "context"

// SnapshotRepository persists cache contents between process runs.
type SnapshotRepository interface {
	LoadAll(ctx context.Context, limit int) ([]Patch, error)
	UpsertMany(ctx context.Context, records []*Record) error
}
