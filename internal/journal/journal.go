package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/plcwire/uabridge/internal/infrastructure/logging"
)

// Journal configuration constants.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// busyTimeoutMS is the maximum time to wait for a database lock.
	busyTimeoutMS = 5000

	// connectionTimeout is the timeout for verifying database connectivity.
	connectionTimeout = 5 * time.Second

	// entryChanSize is the buffer size for the async write channel.
	// Entries beyond this are dropped (best-effort) to avoid
	// back-pressure on the engine.
	entryChanSize = 256

	// defaultRecentLimit caps Recent queries with no explicit limit.
	defaultRecentLimit = 50

	// maxRecentLimit is the hard cap for Recent queries.
	maxRecentLimit = 500
)

// schema holds the journal table. Applied idempotently at open; the
// journal has exactly one table, so a migration framework would be
// ceremony without benefit.
const schema = `
CREATE TABLE IF NOT EXISTS events (
    id     TEXT PRIMARY KEY,
    ts     TIMESTAMP NOT NULL,
    kind   TEXT NOT NULL,
    tag    TEXT NOT NULL DEFAULT '',
    detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
`

// Entry is one journaled bridge event.
type Entry struct {
	ID     string    `json:"id"`
	TS     time.Time `json:"ts"`
	Kind   string    `json:"kind"`
	Tag    string    `json:"tag,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// Journal persists bridge events (faults, rejections, timeouts,
// availability transitions) to SQLite.
//
// Writes are asynchronous: Record never blocks the caller. Entries are
// funneled through a buffered channel to a single writer goroutine,
// which suits SQLite's serial write model. When the buffer is full,
// entries are dropped with a warning; the journal is diagnostic, not
// authoritative.
type Journal struct {
	db  *sql.DB
	log *logging.Logger

	entries chan Entry

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open creates (if needed) and opens the journal database, applies the
// schema and starts the writer goroutine.
//
// Parameters:
//   - path: SQLite database file; the directory is created if missing
//   - log: logger for write failures and drops
//
// Returns:
//   - *Journal: ready to record
//   - error: if the database cannot be opened or the schema applied
func Open(path string, log *logging.Logger) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL", path, busyTimeoutMS)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening journal database: %w", err)
	}

	// One writer goroutine; a single connection avoids lock contention.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verifying journal database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying journal schema: %w", err)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	j := &Journal{
		db:      db,
		log:     log.With("component", "journal"),
		entries: make(chan Entry, entryChanSize),
		cancel:  runCancel,
	}

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.drain(runCtx)
	}()

	return j, nil
}

// Record enqueues an event for asynchronous persistence (best-effort).
// Safe to call from any goroutine; never blocks.
func (j *Journal) Record(kind, tag, detail string) {
	entry := Entry{
		ID:     uuid.NewString(),
		TS:     time.Now().UTC(),
		Kind:   kind,
		Tag:    tag,
		Detail: detail,
	}

	select {
	case j.entries <- entry:
	default:
		j.log.Warn("journal channel full, dropping entry", "kind", kind, "tag", tag)
	}
}

// drain reads entries from the channel and writes them serially.
// It runs until the context is cancelled, then drains remaining entries.
func (j *Journal) drain(ctx context.Context) {
	for {
		select {
		case entry := <-j.entries:
			j.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-j.entries:
					j.write(entry)
				default:
					return
				}
			}
		}
	}
}

// write persists one entry.
func (j *Journal) write(entry Entry) {
	_, err := j.db.Exec(
		"INSERT INTO events (id, ts, kind, tag, detail) VALUES (?, ?, ?, ?, ?)",
		entry.ID, entry.TS, entry.Kind, entry.Tag, entry.Detail,
	)
	if err != nil {
		j.log.Error("journal write failed", "kind", entry.Kind, "error", err)
	}
}

// Recent returns the newest entries, newest first.
//
// Parameters:
//   - ctx: query context
//   - limit: maximum entries; 0 means the default, capped at maxRecentLimit
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	rows, err := j.db.QueryContext(ctx,
		"SELECT id, ts, kind, tag, detail FROM events ORDER BY ts DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TS, &e.Kind, &e.Tag, &e.Detail); err != nil {
			return nil, fmt.Errorf("scanning journal row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading journal rows: %w", err)
	}

	return entries, nil
}

// HealthCheck verifies the database connection is alive.
func (j *Journal) HealthCheck(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close stops the writer, flushes buffered entries and closes the
// database.
func (j *Journal) Close() error {
	j.cancel()
	j.wg.Wait()
	return j.db.Close()
}
