// Package snapshots persists the local copy of the remote index.
package snapshots

import (
	"context"
	"fmt"
	"time"

	"github.com/portaldiscoverer/discoverer/common/types"
	"github.com/portaldiscoverer/discoverer/sql"
)

// Add upserts every entry of delta.
func Add(db sql.Executor, delta types.Delta, now time.Time) error {
	for id, ref := range delta {
		if _, err := db.Exec(`
			insert into index_entries (id, ref, updated) values (?1, ?2, ?3)
			on conflict (id) do
			update set ref = ?2, updated = ?3 where ref != ?2;`,
			func(stmt *sql.Statement) {
				stmt.BindText(1, string(id))
				stmt.BindText(2, string(ref))
				stmt.BindInt64(3, now.UnixMilli())
			}, nil); err != nil {
			return fmt.Errorf("insert index entry %s: %w", id, err)
		}
	}
	return nil
}

// Get returns the stored fingerprint for id.
func Get(db sql.Executor, id types.EntityID) (types.Fingerprint, error) {
	var ref types.Fingerprint
	rows, err := db.Exec("select ref from index_entries where id = ?1;",
		func(stmt *sql.Statement) {
			stmt.BindText(1, string(id))
		}, func(stmt *sql.Statement) bool {
			ref = types.Fingerprint(stmt.ColumnText(0))
			return true
		})
	if err != nil {
		return "", fmt.Errorf("get index entry %s: %w", id, err)
	}
	if rows == 0 {
		return "", fmt.Errorf("index entry %s: %w", id, sql.ErrNotFound)
	}
	return ref, nil
}

// Load returns the whole persisted index.
func Load(db sql.Executor) (types.Delta, error) {
	delta := types.Delta{}
	if _, err := db.Exec("select id, ref from index_entries;", nil, func(stmt *sql.Statement) bool {
		delta[types.EntityID(stmt.ColumnText(0))] = types.Fingerprint(stmt.ColumnText(1))
		return true
	}); err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	return delta, nil
}

// Count returns the number of persisted entries.
func Count(db sql.Executor) (int, error) {
	var n int
	if _, err := db.Exec("select count(*) from index_entries;", nil, func(stmt *sql.Statement) bool {
		n = stmt.ColumnInt(0)
		return true
	}); err != nil {
		return 0, fmt.Errorf("count index entries: %w", err)
	}
	return n, nil
}

// Persister saves index deltas in a single transaction each.
// It implements index.Persister.
type Persister struct {
	db  *sql.Database
	now func() time.Time
}

func NewPersister(db *sql.Database) *Persister {
	return &Persister{db: db, now: time.Now}
}

func (p *Persister) Persist(delta types.Delta) error {
	return p.db.WithTx(context.Background(), func(tx *sql.Tx) error {
		return Add(tx, delta, p.now())
	})
}
