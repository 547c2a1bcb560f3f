package querybuilder

import "testing"

func TestSelectBuilder(t *testing.T) {
	query, args, err := Select("player_id", "payload").
		From("player_snapshots").
		Where(IsNull("deleted_at")).
		OrderBy("updated_at DESC", "player_id").
		Limit(10).
		ToSQL()
	if err != nil {
		t.Fatalf("build select query: %v", err)
	}

	wantQuery := "SELECT player_id, payload FROM player_snapshots WHERE deleted_at IS NULL ORDER BY updated_at DESC, player_id LIMIT 10"
	if query != wantQuery {
		t.Fatalf("unexpected query:\nwant: %s\ngot:  %s", wantQuery, query)
	}
	if len(args) != 0 {
		t.Fatalf("unexpected args: %+v", args)
	}
}

func TestInsertBuilder_Upsert(t *testing.T) {
	b := InsertInto("player_snapshots").
		Columns("player_id", "username").
		Values(int64(1), "alice").
		Values(int64(2), "bob").
		OnConflictUpdate([]string{"player_id"}, "username = EXCLUDED.username")

	query, args, err := b.ToSQL()
	if err != nil {
		t.Fatalf("build insert query: %v", err)
	}

	wantQuery := "INSERT INTO player_snapshots (player_id, username) VALUES ($1, $2), ($3, $4) ON CONFLICT (player_id) DO UPDATE SET username = EXCLUDED.username"
	if query != wantQuery {
		t.Fatalf("unexpected query:\nwant: %s\ngot:  %s", wantQuery, query)
	}
	if len(args) != 4 || args[0] != int64(1) || args[3] != "bob" {
		t.Fatalf("unexpected args: %+v", args)
	}
}

func TestInsertBuilder_Errors(t *testing.T) {
	if _, _, err := Select("player_id").ToSQL(); err == nil {
		t.Fatalf("expected error without table")
	}
	if _, _, err := InsertInto("player_snapshots").Columns("player_id").ToSQL(); err == nil {
		t.Fatalf("expected error without values")
	}
	if _, _, err := InsertInto("player_snapshots").Columns("player_id", "username").Values(int64(1)).ToSQL(); err == nil {
		t.Fatalf("expected error for short row")
	}

	query, _, err := InsertInto("player_snapshots").
		Columns("player_id").
		Values(int64(1)).
		OnConflictUpdate([]string{"player_id"}).
		ToSQL()
	if err != nil {
		t.Fatalf("build insert query: %v", err)
	}
	if query != "INSERT INTO player_snapshots (player_id) VALUES ($1) ON CONFLICT (player_id) DO NOTHING" {
		t.Fatalf("unexpected query: %s", query)
	}
}
