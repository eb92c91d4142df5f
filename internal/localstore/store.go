// Package localstore is the agent's durable client-side cache: keyed
// record collections, a FIFO queue of not-yet-applied mutations, and
// sync metadata. Everything persists before the call returns; there is
// no write-behind.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"kakebo/internal/core"

	_ "modernc.org/sqlite"
)

const (
	CollectionCategories = "categories"
	CollectionExpenses   = "expenses"

	StatusPending = "pending"
	StatusSynced  = "synced"

	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// MetaLastSyncTime is the metadata key holding the last successful
// full-sync timestamp (RFC3339).
const MetaLastSyncTime = "lastSyncTime"

// ErrStorage marks any underlying storage failure. Callers must not
// assume partial writes succeeded once they see it.
var ErrStorage = errors.New("local storage failure")

type (
	// Record is one cached entity. Data holds the server-shaped JSON;
	// SyncStatus is only meaningful for the expenses collection.
	Record struct {
		ID         core.ID
		Data       json.RawMessage
		SyncStatus string
	}

	// PendingOperation is a queued, not-yet-server-confirmed mutation.
	PendingOperation struct {
		ID        int64
		Type      string // create | update | delete
		Entity    string // categories | expenses
		EntityID  core.ID
		Data      json.RawMessage
		Timestamp time.Time
	}
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping local store: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			id INTEGER NOT NULL,
			data TEXT NOT NULL,
			sync_status TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (collection, id)
		)`,
		`CREATE TABLE IF NOT EXISTS pending_operations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			op_type TEXT NOT NULL,
			entity TEXT NOT NULL,
			entity_id INTEGER NOT NULL DEFAULT 0,
			data TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_created ON pending_operations(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_type ON pending_operations(op_type)`,
		`CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return storeErr("create schema", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// --- records ---

func (s *Store) GetAll(ctx context.Context, collection string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data, sync_status FROM records WHERE collection = ? ORDER BY id`, collection)
	if err != nil {
		return nil, storeErr("get all "+collection, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec  Record
			id   int64
			data string
		)
		if err := rows.Scan(&id, &data, &rec.SyncStatus); err != nil {
			return nil, storeErr("scan "+collection, err)
		}
		rec.ID = core.ID(id)
		rec.Data = json.RawMessage(data)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("get all "+collection, err)
	}
	return records, nil
}

// GetByID returns the record and whether it exists; a missing record is
// not an error.
func (s *Store) GetByID(ctx context.Context, collection string, id core.ID) (Record, bool, error) {
	var (
		rec  Record
		data string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT data, sync_status FROM records WHERE collection = ? AND id = ?`,
		collection, int64(id)).Scan(&data, &rec.SyncStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, storeErr("get "+collection, err)
	}
	rec.ID = id
	rec.Data = json.RawMessage(data)
	return rec, true, nil
}

// Put upserts by primary key.
func (s *Store) Put(ctx context.Context, collection string, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (collection, id, data, sync_status) VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, sync_status = excluded.sync_status`,
		collection, int64(rec.ID), string(rec.Data), rec.SyncStatus)
	if err != nil {
		return storeErr("put "+collection, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection string, id core.ID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ? AND id = ?`, collection, int64(id))
	if err != nil {
		return storeErr("delete from "+collection, err)
	}
	return nil
}

func (s *Store) BulkPut(ctx context.Context, collection string, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("bulk put "+collection, err)
	}
	defer tx.Rollback()

	if err := bulkInsert(ctx, tx, collection, records); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr("bulk put "+collection, err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, collection string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, collection)
	if err != nil {
		return storeErr("clear "+collection, err)
	}
	return nil
}

// ReplaceCollection atomically clears the collection and inserts the
// server records. For the expenses collection, records still marked
// pending are snapshotted before the clear and returned; the replace
// itself does not re-apply them.
func (s *Store) ReplaceCollection(ctx context.Context, collection string, records []Record) ([]Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("replace "+collection, err)
	}
	defer tx.Rollback()

	var pending []Record
	if collection == CollectionExpenses {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, data, sync_status FROM records
			WHERE collection = ? AND sync_status = ? ORDER BY id`,
			collection, StatusPending)
		if err != nil {
			return nil, storeErr("snapshot pending expenses", err)
		}
		for rows.Next() {
			var (
				rec  Record
				id   int64
				data string
			)
			if err := rows.Scan(&id, &data, &rec.SyncStatus); err != nil {
				rows.Close()
				return nil, storeErr("snapshot pending expenses", err)
			}
			rec.ID = core.ID(id)
			rec.Data = json.RawMessage(data)
			pending = append(pending, rec)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, storeErr("snapshot pending expenses", err)
		}
		rows.Close()
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ?`, collection); err != nil {
		return nil, storeErr("replace "+collection, err)
	}
	if err := bulkInsert(ctx, tx, collection, records); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("replace "+collection, err)
	}
	return pending, nil
}

func bulkInsert(ctx context.Context, tx *sql.Tx, collection string, records []Record) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (collection, id, data, sync_status) VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, sync_status = excluded.sync_status`)
	if err != nil {
		return storeErr("bulk insert "+collection, err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			collection, int64(rec.ID), string(rec.Data), rec.SyncStatus); err != nil {
			return storeErr("bulk insert "+collection, err)
		}
	}
	return nil
}

// NextTempID hands out negative ids for records created while offline so
// they cannot collide with server-assigned ones. Server state replaces
// them on the next successful pull.
func (s *Store) NextTempID(ctx context.Context) (core.ID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storeErr("next temp id", err)
	}
	defer tx.Rollback()

	var current int64
	var value string
	err = tx.QueryRowContext(ctx,
		`SELECT value FROM metadata WHERE key = 'tempIdSeq'`).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		current = 0
	case err != nil:
		return 0, storeErr("next temp id", err)
	default:
		current, _ = strconv.ParseInt(value, 10, 64)
	}

	next := current - 1
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES ('tempIdSeq', ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		strconv.FormatInt(next, 10)); err != nil {
		return 0, storeErr("next temp id", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, storeErr("next temp id", err)
	}
	return core.ID(next), nil
}

// --- pending operations ---

// EnqueuePendingOperation appends the operation with a store-assigned
// ascending id and wall-clock timestamp. Existing queued entries for the
// same entity are never merged or overwritten.
func (s *Store) EnqueuePendingOperation(ctx context.Context, op PendingOperation) (PendingOperation, error) {
	op.Timestamp = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_operations (op_type, entity, entity_id, data, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		op.Type, op.Entity, int64(op.EntityID), string(op.Data),
		op.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return PendingOperation{}, storeErr("enqueue operation", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return PendingOperation{}, storeErr("enqueue operation", err)
	}
	op.ID = id
	return op, nil
}

func (s *Store) DequeuePendingOperation(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_operations WHERE id = ?`, id)
	if err != nil {
		return storeErr("dequeue operation", err)
	}
	return nil
}

// ListPendingOperations returns the queue in FIFO order.
func (s *Store) ListPendingOperations(ctx context.Context) ([]PendingOperation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, op_type, entity, entity_id, data, created_at
		FROM pending_operations ORDER BY id`)
	if err != nil {
		return nil, storeErr("list operations", err)
	}
	defer rows.Close()

	var ops []PendingOperation
	for rows.Next() {
		var (
			op       PendingOperation
			entityID int64
			data     sql.NullString
			created  string
		)
		if err := rows.Scan(&op.ID, &op.Type, &op.Entity, &entityID, &data, &created); err != nil {
			return nil, storeErr("scan operation", err)
		}
		op.EntityID = core.ID(entityID)
		if data.Valid {
			op.Data = json.RawMessage(data.String)
		}
		op.Timestamp, _ = time.Parse(time.RFC3339Nano, created)
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list operations", err)
	}
	return ops, nil
}

// --- metadata ---

func (s *Store) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("get metadata", err)
	}
	return value, true, nil
}

func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return storeErr("set metadata", err)
	}
	return nil
}
