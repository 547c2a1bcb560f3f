package postgres

import (
	"time"
)

type playerSnapshotTableModel struct {
	PlayerID  int64      `db:"player_id"`
	Username  string     `db:"username"`
	Payload   []byte     `db:"payload"`
	UpdatedAt time.Time  `db:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at"`
}

const playerSnapshotTable = "player_snapshots"

var playerSnapshotSelectColumns = []string{
	"player_id",
	"username",
	"payload",
	"updated_at",
	"deleted_at",
}
