// Package portals stores the authoritative portal records of the index server.
package portals

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/portaldiscoverer/discoverer/common/types"
	"github.com/portaldiscoverer/discoverer/sql"
)

// Outcome of an upsert.
type Outcome uint8

const (
	Unchanged Outcome = iota
	Created
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	}
	return "unchanged"
}

// Portal is a stored record with its attribution.
type Portal struct {
	types.CanonicalRecord
	Reporter string
	Created  time.Time
	Updated  time.Time
}

// Revision is a replaced version of a portal.
type Revision struct {
	Coordinate types.Coordinate
	Name       string
	Ref        types.Fingerprint
	Reporter   string
	Replaced   time.Time
}

const fields = "id, lat_e6, lng_e6, name, region, ref, reporter, created, updated"

func decode(stmt *sql.Statement) Portal {
	return Portal{
		CanonicalRecord: types.CanonicalRecord{
			ID:          types.EntityID(stmt.ColumnText(0)),
			Coordinate:  types.Coordinate{LatE6: int32(stmt.ColumnInt64(1)), LngE6: int32(stmt.ColumnInt64(2))},
			Name:        stmt.ColumnText(3),
			Region:      stmt.ColumnText(4),
			Fingerprint: types.Fingerprint(stmt.ColumnText(5)),
		},
		Reporter: stmt.ColumnText(6),
		Created:  time.UnixMilli(stmt.ColumnInt64(7)),
		Updated:  time.UnixMilli(stmt.ColumnInt64(8)),
	}
}

// Get returns the portal with id or sql.ErrNotFound.
func Get(db sql.Executor, id types.EntityID) (Portal, error) {
	var p Portal
	rows, err := db.Exec("select "+fields+" from portals where id = ?1;",
		func(stmt *sql.Statement) {
			stmt.BindText(1, string(id))
		}, func(stmt *sql.Statement) bool {
			p = decode(stmt)
			return true
		})
	if err != nil {
		return Portal{}, fmt.Errorf("get portal %s: %w", id, err)
	}
	if rows == 0 {
		return Portal{}, fmt.Errorf("portal %s: %w", id, sql.ErrNotFound)
	}
	return p, nil
}

// Upsert stores r. A portal whose reference changed keeps its previous
// version in the history and the reporter is credited with an update;
// a new portal credits the reporter with a discovery.
// It should run inside a transaction.
func Upsert(db sql.Executor, r types.CanonicalRecord, reporter string, now time.Time) (Outcome, error) {
	prev, err := Get(db, r.ID)
	switch {
	case err == nil && prev.Fingerprint == r.Fingerprint:
		return Unchanged, nil
	case err == nil:
		if _, err := db.Exec(`
			insert into portal_history (id, lat_e6, lng_e6, name, ref, reporter, replaced)
			values (?1, ?2, ?3, ?4, ?5, ?6, ?7);`,
			func(stmt *sql.Statement) {
				stmt.BindText(1, string(prev.ID))
				stmt.BindInt64(2, int64(prev.Coordinate.LatE6))
				stmt.BindInt64(3, int64(prev.Coordinate.LngE6))
				stmt.BindText(4, prev.Name)
				stmt.BindText(5, string(prev.Fingerprint))
				stmt.BindText(6, prev.Reporter)
				stmt.BindInt64(7, now.UnixMilli())
			}, nil); err != nil {
			return Unchanged, fmt.Errorf("archive portal %s: %w", r.ID, err)
		}
		if _, err := db.Exec(`
			update portals set lat_e6 = ?2, lng_e6 = ?3, name = ?4, region = ?5, ref = ?6, reporter = ?7, updated = ?8
			where id = ?1;`,
			func(stmt *sql.Statement) {
				bindRecord(stmt, r)
				stmt.BindText(7, reporter)
				stmt.BindInt64(8, now.UnixMilli())
			}, nil); err != nil {
			return Unchanged, fmt.Errorf("update portal %s: %w", r.ID, err)
		}
		return Updated, credit(db, reporter, "updated")
	case errors.Is(err, sql.ErrNotFound):
		if _, err := db.Exec(`
			insert into portals (`+fields+`)
			values (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?8);`,
			func(stmt *sql.Statement) {
				bindRecord(stmt, r)
				stmt.BindText(7, reporter)
				stmt.BindInt64(8, now.UnixMilli())
			}, nil); err != nil {
			return Unchanged, fmt.Errorf("insert portal %s: %w", r.ID, err)
		}
		return Created, credit(db, reporter, "discovered")
	default:
		return Unchanged, err
	}
}

func bindRecord(stmt *sql.Statement, r types.CanonicalRecord) {
	stmt.BindText(1, string(r.ID))
	stmt.BindInt64(2, int64(r.Coordinate.LatE6))
	stmt.BindInt64(3, int64(r.Coordinate.LngE6))
	stmt.BindText(4, r.Name)
	stmt.BindText(5, r.Region)
	stmt.BindText(6, string(r.Fingerprint))
}

// History returns replaced versions of a portal, oldest first.
func History(db sql.Executor, id types.EntityID) ([]Revision, error) {
	var revs []Revision
	if _, err := db.Exec(`
		select lat_e6, lng_e6, name, ref, reporter, replaced from portal_history
		where id = ?1 order by replaced, rowid;`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, string(id))
		}, func(stmt *sql.Statement) bool {
			revs = append(revs, Revision{
				Coordinate: types.Coordinate{LatE6: int32(stmt.ColumnInt64(0)), LngE6: int32(stmt.ColumnInt64(1))},
				Name:       stmt.ColumnText(2),
				Ref:        types.Fingerprint(stmt.ColumnText(3)),
				Reporter:   stmt.ColumnText(4),
				Replaced:   time.UnixMilli(stmt.ColumnInt64(5)),
			})
			return true
		}); err != nil {
		return nil, fmt.Errorf("portal history %s: %w", id, err)
	}
	return revs, nil
}

// Index returns the id to reference mapping of every stored portal.
func Index(db sql.Executor) (types.Delta, error) {
	delta := types.Delta{}
	if _, err := db.Exec("select id, ref from portals;", nil, func(stmt *sql.Statement) bool {
		delta[types.EntityID(stmt.ColumnText(0))] = types.Fingerprint(stmt.ColumnText(1))
		return true
	}); err != nil {
		return nil, fmt.Errorf("portal index: %w", err)
	}
	return delta, nil
}

// IterateAll calls fn for every portal ordered by id until fn returns false.
func IterateAll(db sql.Executor, fn func(Portal) bool) error {
	if _, err := db.Exec("select "+fields+" from portals order by id;", nil, func(stmt *sql.Statement) bool {
		return fn(decode(stmt))
	}); err != nil {
		return fmt.Errorf("iterate portals: %w", err)
	}
	return nil
}

// Count returns the number of stored portals.
func Count(db sql.Executor) (int, error) {
	var n int
	if _, err := db.Exec("select count(*) from portals;", nil, func(stmt *sql.Statement) bool {
		n = stmt.ColumnInt(0)
		return true
	}); err != nil {
		return 0, fmt.Errorf("count portals: %w", err)
	}
	return n, nil
}

// Version identifies a published state of the index.
type Version struct {
	ID      int64
	Size    int
	Created time.Time
}

// ETag is the entity tag of the version, quoted as sent in HTTP headers.
func (v Version) ETag() string {
	return strconv.Quote("v" + strconv.FormatInt(v.ID, 10))
}

// AddVersion records a new published state of the index.
func AddVersion(db sql.Executor, size int, now time.Time) (Version, error) {
	v := Version{Size: size, Created: now}
	if _, err := db.Exec(`
		insert into index_versions (etag, size, created) values ('', ?1, ?2) returning id;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(size))
			stmt.BindInt64(2, now.UnixMilli())
		}, func(stmt *sql.Statement) bool {
			v.ID = stmt.ColumnInt64(0)
			return true
		}); err != nil {
		return Version{}, fmt.Errorf("add index version: %w", err)
	}
	if _, err := db.Exec("update index_versions set etag = ?2 where id = ?1;",
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, v.ID)
			stmt.BindText(2, v.ETag())
		}, nil); err != nil {
		return Version{}, fmt.Errorf("tag index version: %w", err)
	}
	return v, nil
}

// LatestVersion returns the most recent version or sql.ErrNotFound.
func LatestVersion(db sql.Executor) (Version, error) {
	var v Version
	rows, err := db.Exec("select id, size, created from index_versions order by id desc limit 1;",
		nil, func(stmt *sql.Statement) bool {
			v = Version{
				ID:      stmt.ColumnInt64(0),
				Size:    stmt.ColumnInt(1),
				Created: time.UnixMilli(stmt.ColumnInt64(2)),
			}
			return true
		})
	if err != nil {
		return Version{}, fmt.Errorf("latest index version: %w", err)
	}
	if rows == 0 {
		return Version{}, fmt.Errorf("index version: %w", sql.ErrNotFound)
	}
	return v, nil
}
