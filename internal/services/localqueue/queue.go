// Package localqueue is the durable per-identity buffer of readings that have
// not been confirmed by the cloud store. It is backed by SQLite.
package localqueue

import (
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/LeonardoBeccarini/sensorlink/internal/model"
)

// GuestNamespace holds readings recorded while no identity is associated.
const GuestNamespace = model.GuestIdentity

// ErrStorageFault wraps every failure of the underlying store.
var ErrStorageFault = errors.New("local queue storage fault")

type DB struct {
	sql *sql.DB
	log *slog.Logger
}

// Open opens (or creates) the queue database at path and migrates it.
// ":memory:" gives a private in-memory database.
func Open(path string, log *slog.Logger) (*DB, error) {
	if log == nil {
		log = slog.Default()
	}
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageFault, err)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", ErrStorageFault, err)
	}
	// one connection: serialises writers and keeps :memory: a single database
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrStorageFault, err)
	}
	if err := migrate(db, log); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", ErrStorageFault, err)
	}
	return &DB{sql: db, log: log.With("component", "localqueue")}, nil
}

func buildDSN(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty queue path")
	}
	if path == ":memory:" {
		return "file::memory:?_busy_timeout=5000", nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	params := "_busy_timeout=5000&_journal_mode=WAL&_synchronous=FULL"
	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + params, nil
	}
	return fmt.Sprintf("file:%s?%s", path, params), nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// Namespace returns the queue of one identity.
func (d *DB) Namespace(identity string) *Queue {
	return &Queue{db: d, ns: model.NormalizeIdentity(identity)}
}

// Queue is one identity's view of the buffer. Entries are keyed by the
// reading timestamp.
type Queue struct {
	db *DB
	ns string
}

func (q *Queue) Namespace() string { return q.ns }

// Enqueue stores r, replacing an entry with the same key.
func (q *Queue) Enqueue(r model.Reading) error {
	_, err := q.db.sql.Exec(`
		INSERT INTO pending_readings (namespace, ts_key, ts, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, ts_key) DO UPDATE SET
			payload     = excluded.payload,
			enqueued_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
	`, q.ns, r.Key(), r.Timestamp, model.EncodeEntry(r))
	if err != nil {
		return fmt.Errorf("%w: enqueue %s/%s: %w", ErrStorageFault, q.ns, r.Key(), err)
	}
	return nil
}

type row struct {
	key     string
	payload string
}

// DrainAll snapshots the pending entries in timestamp order. The returned
// sequence decodes lazily, can be ranged over more than once and never
// deletes anything. Undecodable rows are logged and skipped.
func (q *Queue) DrainAll() (iter.Seq2[string, model.Reading], error) {
	rows, err := q.db.sql.Query(
		`SELECT ts_key, payload FROM pending_readings WHERE namespace = ? ORDER BY ts, ts_key`, q.ns)
	if err != nil {
		return nil, fmt.Errorf("%w: drain %s: %w", ErrStorageFault, q.ns, err)
	}
	defer rows.Close()

	var snap []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.key, &r.payload); err != nil {
			return nil, fmt.Errorf("%w: drain %s: %w", ErrStorageFault, q.ns, err)
		}
		snap = append(snap, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: drain %s: %w", ErrStorageFault, q.ns, err)
	}

	return func(yield func(string, model.Reading) bool) {
		for _, r := range snap {
			rd, err := model.DecodeEntry(r.payload)
			if err != nil {
				q.db.log.Warn("skipping undecodable entry", "namespace", q.ns, "key", r.key, "err", err)
				continue
			}
			if !yield(r.key, rd) {
				return
			}
		}
	}, nil
}

// Get returns the current content of key.
func (q *Queue) Get(key string) (model.Reading, bool, error) {
	var payload string
	err := q.db.sql.QueryRow(
		`SELECT payload FROM pending_readings WHERE namespace = ? AND ts_key = ?`, q.ns, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reading{}, false, nil
	}
	if err != nil {
		return model.Reading{}, false, fmt.Errorf("%w: get %s/%s: %w", ErrStorageFault, q.ns, key, err)
	}
	r, err := model.DecodeEntry(payload)
	if err != nil {
		return model.Reading{}, false, err
	}
	return r, true, nil
}

// Remove deletes key. Removing an absent key is not an error.
func (q *Queue) Remove(key string) error {
	if _, err := q.db.sql.Exec(
		`DELETE FROM pending_readings WHERE namespace = ? AND ts_key = ?`, q.ns, key); err != nil {
		return fmt.Errorf("%w: remove %s/%s: %w", ErrStorageFault, q.ns, key, err)
	}
	return nil
}

func (q *Queue) Len() (int, error) {
	var n int
	if err := q.db.sql.QueryRow(
		`SELECT COUNT(*) FROM pending_readings WHERE namespace = ?`, q.ns).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count %s: %w", ErrStorageFault, q.ns, err)
	}
	return n, nil
}

func (q *Queue) IsEmpty() (bool, error) {
	n, err := q.Len()
	return n == 0, err
}
