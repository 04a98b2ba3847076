// Package kvstore keeps small pieces of client state between restarts.
package kvstore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/portaldiscoverer/discoverer/sql"
)

const (
	endpointKey = "endpoint"
	lastSyncKey = "last-sync"
)

func addKeyValue(db sql.Executor, key, value string) error {
	if _, err := db.Exec(`
		insert into kvstore (id, value) values (?1, ?2)
		on conflict (id) do
		update set value = ?2;`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, key)
			stmt.BindText(2, value)
		}, nil); err != nil {
		return fmt.Errorf("failed to insert value: %w", err)
	}
	return nil
}

func getKeyValue(db sql.Executor, key string) (string, error) {
	var value string
	if rows, err := db.Exec("select value from kvstore where id = ?1;", func(stmt *sql.Statement) {
		stmt.BindText(1, key)
	}, func(stmt *sql.Statement) bool {
		value = stmt.ColumnText(0)
		return true
	}); err != nil {
		return "", fmt.Errorf("failed to get value: %w", err)
	} else if rows == 0 {
		return "", fmt.Errorf("failed to get value: %w", sql.ErrNotFound)
	}
	return value, nil
}

func clearKeyValue(db sql.Executor, key string) error {
	if _, err := db.Exec("delete from kvstore where id = ?1;", func(stmt *sql.Statement) {
		stmt.BindText(1, key)
	}, nil); err != nil {
		return fmt.Errorf("failed to delete value: %w", err)
	}
	return nil
}

// SetEndpoint remembers the base URL of the index service.
func SetEndpoint(db sql.Executor, endpoint string) error {
	return addKeyValue(db, endpointKey, endpoint)
}

// GetEndpoint returns the remembered base URL or sql.ErrNotFound.
func GetEndpoint(db sql.Executor) (string, error) {
	return getKeyValue(db, endpointKey)
}

// ClearEndpoint forgets the base URL.
func ClearEndpoint(db sql.Executor) error {
	return clearKeyValue(db, endpointKey)
}

// SetLastSync records the time of the last successful index fetch.
func SetLastSync(db sql.Executor, t time.Time) error {
	return addKeyValue(db, lastSyncKey, strconv.FormatInt(t.UnixMilli(), 10))
}

// GetLastSync returns the time of the last successful index fetch or sql.ErrNotFound.
func GetLastSync(db sql.Executor) (time.Time, error) {
	value, err := getKeyValue(db, lastSyncKey)
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last sync %q: %w", value, err)
	}
	return time.UnixMilli(ms), nil
}
