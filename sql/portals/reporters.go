package portals

import (
	"fmt"

	"github.com/portaldiscoverer/discoverer/sql"
)

// Reporter counts the contributions of a single submitter.
type Reporter struct {
	Name       string `json:"name"`
	Discovered int    `json:"discovered"`
	Updated    int    `json:"updated"`
}

// credit increments column for reporter. Anonymous submissions are not counted.
func credit(db sql.Executor, reporter, column string) error {
	if reporter == "" {
		return nil
	}
	discovered, updated := 0, 0
	switch column {
	case "discovered":
		discovered = 1
	case "updated":
		updated = 1
	default:
		return fmt.Errorf("unknown reporter counter %q", column)
	}
	if _, err := db.Exec(`
		insert into reporters (name, discovered, updated) values (?1, ?2, ?3)
		on conflict (name) do
		update set discovered = discovered + ?2, updated = updated + ?3;`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, reporter)
			stmt.BindInt64(2, int64(discovered))
			stmt.BindInt64(3, int64(updated))
		}, nil); err != nil {
		return fmt.Errorf("credit reporter %s: %w", reporter, err)
	}
	return nil
}

// Leaderboard returns up to limit reporters ordered by discoveries, then updates.
func Leaderboard(db sql.Executor, limit int) ([]Reporter, error) {
	var out []Reporter
	if _, err := db.Exec(`
		select name, discovered, updated from reporters
		order by discovered desc, updated desc, name
		limit ?1;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(limit))
		}, func(stmt *sql.Statement) bool {
			out = append(out, Reporter{
				Name:       stmt.ColumnText(0),
				Discovered: stmt.ColumnInt(1),
				Updated:    stmt.ColumnInt(2),
			})
			return true
		}); err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return out, nil
}
