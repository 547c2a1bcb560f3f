package postgres

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/riskibarqy/baduk-client/internal/domain/player"
	qb "github.com/riskibarqy/baduk-client/internal/platform/querybuilder"
)

// ErrSnapshotSchemaMissing is returned when the snapshot table has not been migrated.
var ErrSnapshotSchemaMissing = crerr.New("player snapshot table missing, run migrations")

// upsertBatchSize keeps one statement well under the 65535 bind parameter limit.
const upsertBatchSize = 500

type PlayerSnapshotRepository struct {
	db *sqlx.DB
}

func NewPlayerSnapshotRepository(db *sqlx.DB) *PlayerSnapshotRepository {
	return &PlayerSnapshotRepository{db: db}
}

var _ player.SnapshotRepository = (*PlayerSnapshotRepository)(nil)

// LoadAll returns the most recently saved snapshots first. A limit of zero loads all rows.
func (r *PlayerSnapshotRepository) LoadAll(ctx context.Context, limit int) ([]player.Patch, error) {
	query, args, err := buildSnapshotLoadQuery(limit)
	if err != nil {
		return nil, fmt.Errorf("build select player snapshots query: %w", err)
	}

	var rows []playerSnapshotTableModel
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, classifySnapshotErr(err, "select player snapshots")
	}

	out := make([]player.Patch, 0, len(rows))
	for _, row := range rows {
		p, err := decodeSnapshotPayload(row)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// UpsertMany saves records keyed by player id. Provisional and id-less records are skipped.
func (r *PlayerSnapshotRepository) UpsertMany(ctx context.Context, records []*player.Record) error {
	rows, err := snapshotRows(records)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin player snapshot upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for start := 0; start < len(rows); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(rows))
		query, args, err := buildSnapshotUpsertQuery(rows[start:end])
		if err != nil {
			return fmt.Errorf("build upsert player snapshots query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return classifySnapshotErr(err, "upsert player snapshots")
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit player snapshot upsert: %w", err)
	}
	return nil
}

func buildSnapshotLoadQuery(limit int) (string, []any, error) {
	return qb.Select(playerSnapshotSelectColumns...).From(playerSnapshotTable).
		Where(qb.IsNull("deleted_at")).
		OrderBy("updated_at DESC", "player_id").
		Limit(limit).
		ToSQL()
}

func buildSnapshotUpsertQuery(rows []playerSnapshotTableModel) (string, []any, error) {
	b := qb.InsertInto(playerSnapshotTable).
		Columns("player_id", "username", "payload").
		OnConflictUpdate([]string{"player_id"},
			"username = EXCLUDED.username",
			"payload = "+playerSnapshotTable+".payload || EXCLUDED.payload",
			"updated_at = NOW()",
			"deleted_at = NULL",
		)
	for _, row := range rows {
		b.Values(row.PlayerID, row.Username, string(row.Payload))
	}
	return b.ToSQL()
}

func snapshotRows(records []*player.Record) ([]playerSnapshotTableModel, error) {
	seen := make(map[int64]int, len(records))
	out := make([]playerSnapshotTableModel, 0, len(records))
	for _, rec := range records {
		if rec == nil || rec.ID <= 0 || rec.Provisional() {
			continue
		}
		p := rec.Patch()
		if p.Username == nil && len(rec.Fields()) == 0 {
			continue
		}
		payload, err := sonic.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode player snapshot %d: %w", rec.ID, err)
		}
		row := playerSnapshotTableModel{PlayerID: rec.ID, Payload: payload}
		if p.Username != nil {
			row.Username = *p.Username
		}
		// ON CONFLICT cannot touch the same row twice in one statement.
		if idx, ok := seen[rec.ID]; ok {
			out[idx] = row
			continue
		}
		seen[rec.ID] = len(out)
		out = append(out, row)
	}
	return out, nil
}

func decodeSnapshotPayload(row playerSnapshotTableModel) (player.Patch, error) {
	var p player.Patch
	if err := sonic.Unmarshal(row.Payload, &p); err != nil {
		return player.Patch{}, fmt.Errorf("decode player snapshot %d: %w", row.PlayerID, err)
	}
	id := row.PlayerID
	p.ID = &id
	return p, nil
}

func classifySnapshotErr(err error, op string) error {
	var pqErr *pq.Error
	if crerr.As(err, &pqErr) && pqErr.Code == "42P01" {
		return crerr.WithSecondaryError(ErrSnapshotSchemaMissing, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
