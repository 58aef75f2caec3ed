package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-things/internal/thing"
)

// SQLiteStore persists property changes and events in SQLite.
//
// Values are stored as JSON text and timestamps as Unix nanoseconds (UTC).
// The tables come from the embedded migrations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store over an open, migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Record implements Sink. Only property changes and events are stored.
func (s *SQLiteStore) Record(ctx context.Context, c thing.Change) error {
	switch c.Kind {
	case thing.ChangeProperty:
		return s.RecordPropertyChange(ctx, c.Thing, c.Name, c.Value, c.OldValue, c.Timestamp)
	case thing.ChangeEvent:
		return s.RecordEvent(ctx, c.Thing, c.Name, c.Value, c.Timestamp)
	default:
		return nil
	}
}

// RecordPropertyChange inserts one property history row.
func (s *SQLiteStore) RecordPropertyChange(ctx context.Context, thingName, property string, value, old any, at time.Time) error {
	if thingName == "" || property == "" {
		return ErrInvalidQuery
	}
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshalling value: %w", err)
	}
	oldJSON, err := json.Marshal(old)
	if err != nil {
		return fmt.Errorf("marshalling old value: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO property_history (thing, property, value, old_value, recorded_at) VALUES (?, ?, ?, ?, ?)",
		thingName,
		property,
		string(valueJSON),
		string(oldJSON),
		timestamp(at),
	)
	if err != nil {
		return fmt.Errorf("inserting property history: %w", err)
	}
	return nil
}

// RecordEvent inserts one event log row.
func (s *SQLiteStore) RecordEvent(ctx context.Context, thingName, event string, data any, at time.Time) error {
	if thingName == "" || event == "" {
		return ErrInvalidQuery
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshalling event data: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO event_log (thing, event, data, emitted_at) VALUES (?, ?, ?, ?)",
		thingName,
		event,
		string(dataJSON),
		timestamp(at),
	)
	if err != nil {
		return fmt.Errorf("inserting event log: %w", err)
	}
	return nil
}

// PropertyHistory returns recent changes of one property, newest first.
// limit defaults to 50 and is capped at 500.
func (s *SQLiteStore) PropertyHistory(ctx context.Context, thingName, property string, limit int) ([]PropertyEntry, error) {
	if thingName == "" || property == "" {
		return nil, ErrInvalidQuery
	}
	limit = clampLimit(limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thing, property, value, old_value, recorded_at
		 FROM property_history
		 WHERE thing = ? AND property = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		thingName,
		property,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying property history: %w", err)
	}
	defer rows.Close()

	entries := make([]PropertyEntry, 0, limit)
	for rows.Next() {
		var e PropertyEntry
		var valueJSON, oldJSON sql.NullString
		var at int64

		if err := rows.Scan(&e.ID, &e.Thing, &e.Property, &valueJSON, &oldJSON, &at); err != nil {
			return nil, fmt.Errorf("scanning property history: %w", err)
		}
		if e.Value, err = decodeJSON(valueJSON); err != nil {
			return nil, err
		}
		if e.OldValue, err = decodeJSON(oldJSON); err != nil {
			return nil, err
		}
		e.RecordedAt = time.Unix(0, at).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating property history: %w", err)
	}
	return entries, nil
}

// EventHistory returns recent emissions of one event, newest first.
func (s *SQLiteStore) EventHistory(ctx context.Context, thingName, event string, limit int) ([]EventEntry, error) {
	if thingName == "" || event == "" {
		return nil, ErrInvalidQuery
	}
	limit = clampLimit(limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thing, event, data, emitted_at
		 FROM event_log
		 WHERE thing = ? AND event = ?
		 ORDER BY emitted_at DESC, id DESC
		 LIMIT ?`,
		thingName,
		event,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying event log: %w", err)
	}
	defer rows.Close()

	entries := make([]EventEntry, 0, limit)
	for rows.Next() {
		var e EventEntry
		var dataJSON sql.NullString
		var at int64

		if err := rows.Scan(&e.ID, &e.Thing, &e.Event, &dataJSON, &at); err != nil {
			return nil, fmt.Errorf("scanning event log: %w", err)
		}
		if e.Data, err = decodeJSON(dataJSON); err != nil {
			return nil, err
		}
		e.EmittedAt = time.Unix(0, at).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event log: %w", err)
	}
	return entries, nil
}

// Prune deletes rows older than olderThan from both tables and returns the
// number of rows removed.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}
	cutoff := time.Now().UTC().Add(-olderThan).UnixNano()

	var total int64
	for _, q := range []string{
		"DELETE FROM property_history WHERE recorded_at < ?",
		"DELETE FROM event_log WHERE emitted_at < ?",
	} {
		result, err := s.db.ExecContext(ctx, q, cutoff)
		if err != nil {
			return total, fmt.Errorf("pruning history: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("checking rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

func timestamp(at time.Time) int64 {
	if at.IsZero() {
		at = time.Now()
	}
	return at.UTC().UnixNano()
}

func decodeJSON(s sql.NullString) (any, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return nil, fmt.Errorf("unmarshalling stored value: %w", err)
	}
	return v, nil
}
