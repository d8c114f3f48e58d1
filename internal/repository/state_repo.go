package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sort"
	"time"

	"building_monitor/internal/logger"
	"building_monitor/internal/models"
)

// StateSQLite stores the state map in the entity_state table of a per-group
// SQLite database. Save rewrites the table inside one transaction.
type StateSQLite struct {
	db  *sql.DB
	log *logger.Logger
}

func NewStateSQLite(db *sql.DB, log *logger.Logger) *StateSQLite {
	if log == nil {
		log = logger.Nop()
	}
	return &StateSQLite{db: db, log: log}
}

// constants and helpers for clarity and reuse
const (
	deleteStateSQL = `DELETE FROM entity_state`

	insertStateSQL = `
		INSERT INTO entity_state (entity_id, next_event_at)
		VALUES (?, ?)
	`

	selectStateSQL = `
		SELECT entity_id, next_event_at
		FROM entity_state
	`
)

// nullableTimestamp converts an optional time into a driver value.
func nullableTimestamp(t *time.Time) driver.Value {
	if t == nil {
		return nil
	}
	return formatTimestamp(*t)
}

// Save replaces every row with the given map.
func (r *StateSQLite) Save(ctx context.Context, state models.StateMap) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin state transaction: %w", err)
	}
	defer func() {
		// no-op after a successful commit
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, deleteStateSQL); err != nil {
		return fmt.Errorf("clear entity_state: %w", err)
	}

	ids := make([]string, 0, len(state))
	for id := range state {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, insertStateSQL, id, nullableTimestamp(state[models.EntityID(id)])); err != nil {
			return fmt.Errorf("insert state for %q: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit state transaction: %w", err)
	}
	return nil
}

// Load reads all rows. Query failures and unparseable timestamps are reported
// as models.ErrCorruptState with an empty map.
func (r *StateSQLite) Load(ctx context.Context) (models.StateMap, error) {
	rows, err := r.db.QueryContext(ctx, selectStateSQL)
	if err != nil {
		r.log.Warnw("state_query_failed", "err", err)
		return models.StateMap{}, fmt.Errorf("%w: query entity_state: %v", models.ErrCorruptState, err)
	}
	defer rows.Close()

	state := models.StateMap{}
	for rows.Next() {
		var (
			id   string
			next sql.NullString
		)
		if err := rows.Scan(&id, &next); err != nil {
			r.log.Warnw("state_scan_failed", "err", err)
			return models.StateMap{}, fmt.Errorf("%w: scan entity_state: %v", models.ErrCorruptState, err)
		}
		if !next.Valid || next.String == "" {
			state[models.EntityID(id)] = nil
			continue
		}
		t, err := parseTimestamp(next.String)
		if err != nil {
			r.log.Warnw("state_row_corrupt", "entity_id", id, "value", next.String, "err", err)
			return models.StateMap{}, fmt.Errorf("%w: entity %q: %v", models.ErrCorruptState, id, err)
		}
		state[models.EntityID(id)] = &t
	}
	if err := rows.Err(); err != nil {
		return models.StateMap{}, fmt.Errorf("%w: iterate entity_state: %v", models.ErrCorruptState, err)
	}
	return state, nil
}

// Close closes the underlying database.
func (r *StateSQLite) Close() error {
	return r.db.Close()
}
