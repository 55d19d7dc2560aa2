package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fintrack/internal/core"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a document or key does not exist.
var ErrNotFound = errors.New("not found")

const timeLayout = time.RFC3339Nano

// SQLiteRepository is the document store used by the server and the
// key/value store used by the client.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at dbPath and runs pending migrations.
// ":memory:" opens a private in-memory database.
func Open(dbPath string) (*SQLiteRepository, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// One connection: avoids "database is locked" and keeps :memory: a single database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set journal mode: %w", err)
		}
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) stamp() string {
	return r.now().UTC().Format(timeLayout)
}

// Create stores rec for userID. An empty id is replaced by a fresh uuid.
// Creating an id that already exists overwrites it, so a replayed create is
// idempotent.
func (r *SQLiteRepository) Create(ctx context.Context, userID string, rec core.Record) (string, error) {
	id := rec.RecordID()
	if id == "" {
		ident, ok := rec.(core.Identifiable)
		if !ok {
			return "", core.ErrMissingID
		}
		id = uuid.NewString()
		ident.SetRecordID(id)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", rec.EntityKind(), err)
	}

	now := r.stamp()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO documents (user_id, entity, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, entity, id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at,
			deleted_at = NULL`,
		userID, string(rec.EntityKind()), id, string(data), now, now)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", rec.EntityKind(), err)
	}

	slog.DebugContext(ctx, "Document created",
		"user_id", userID,
		"entity", rec.EntityKind(),
		"id", id)

	return id, nil
}

// Update replaces a live document. Returns ErrNotFound when it does not exist.
func (r *SQLiteRepository) Update(ctx context.Context, userID string, rec core.Record) error {
	if rec.RecordID() == "" {
		return core.ErrMissingID
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", rec.EntityKind(), err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE documents SET data = ?, updated_at = ?
		WHERE user_id = ? AND entity = ? AND id = ? AND deleted_at IS NULL`,
		string(data), r.stamp(), userID, string(rec.EntityKind()), rec.RecordID())
	if err != nil {
		return fmt.Errorf("update %s %s: %w", rec.EntityKind(), rec.RecordID(), err)
	}
	return requireAffected(res, rec.EntityKind(), rec.RecordID())
}

// Delete soft-deletes a document. Deleting an already deleted document
// succeeds; an id that never existed returns ErrNotFound.
func (r *SQLiteRepository) Delete(ctx context.Context, userID string, entity core.Entity, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE documents SET deleted_at = COALESCE(deleted_at, ?)
		WHERE user_id = ? AND entity = ? AND id = ?`,
		r.stamp(), userID, string(entity), id)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", entity, id, err)
	}
	return requireAffected(res, entity, id)
}

// Get returns a single live document.
func (r *SQLiteRepository) Get(ctx context.Context, userID string, entity core.Entity, id string) (core.Record, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `
		SELECT data FROM documents
		WHERE user_id = ? AND entity = ? AND id = ? AND deleted_at IS NULL`,
		userID, string(entity), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", entity, id, err)
	}
	return core.DecodeRecord(entity, []byte(data))
}

// List returns the live documents of one entity in creation order.
func (r *SQLiteRepository) List(ctx context.Context, userID string, entity core.Entity) ([]core.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT data FROM documents
		WHERE user_id = ? AND entity = ? AND deleted_at IS NULL
		ORDER BY created_at, id`,
		userID, string(entity))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", entity, err)
	}
	defer rows.Close()

	records := []core.Record{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", entity, err)
		}
		rec, err := core.DecodeRecord(entity, []byte(data))
		if err != nil {
			slog.WarnContext(ctx, "Skipping undecodable document",
				"user_id", userID,
				"entity", entity,
				"error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", entity, err)
	}
	return records, nil
}

// Users returns every user id owning at least one live document of entity.
func (r *SQLiteRepository) Users(ctx context.Context, entity core.Entity) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM documents
		WHERE entity = ? AND deleted_at IS NULL
		ORDER BY user_id`, string(entity))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func requireAffected(res sql.Result, entity core.Entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}
	return nil
}
