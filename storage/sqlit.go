package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"monitor/collector"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type SQLite struct {
	db  *sql.DB
	log *zap.Logger
}

// compile-time guard
var _ Store = (*SQLite)(nil)

// NewSQLite opens (or creates) the SQLite file at dbPath and runs the
// migration that creates the `metrics` table if it does not exist.
// The caller must call Close() when the program shuts down.
func NewSQLite(dbPath string, log *zap.Logger) (*SQLite, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// The modernc.org driver is pure-go and works without CGO.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite has a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// Verify the connection quickly.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &SQLite{db: db, log: log}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migration: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	const stmt = `
CREATE TABLE IF NOT EXISTS metrics (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    ts               INTEGER NOT NULL,
    cpu_percent      REAL    NOT NULL,
    memory_total     INTEGER NOT NULL,
    memory_available INTEGER NOT NULL,
    memory_used      INTEGER NOT NULL,
    memory_percent   REAL    NOT NULL,
    disk_usage       TEXT    NOT NULL,
    network_sent     INTEGER NOT NULL DEFAULT 0,
    network_recv     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_metrics_ts ON metrics(ts DESC);
`
	_, err := s.db.Exec(stmt)
	if err != nil {
		return fmt.Errorf("create metrics table: %w", err)
	}
	s.log.Info("SQLite migration applied")
	return nil
}

// Append stores a snapshot with a single INSERT, so a reader sees all of
// it or nothing.
func (s *SQLite) Append(ctx context.Context, snap *Snapshot) (int64, error) {
	if err := Validate(snap); err != nil {
		return 0, err
	}
	disks := snap.DiskUsage
	if disks == nil {
		disks = map[string]collector.DiskUsage{}
	}
	diskJSON, err := json.Marshal(disks)
	if err != nil {
		return 0, fmt.Errorf("encode disk usage: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO metrics (ts, cpu_percent, memory_total, memory_available, memory_used,
                     memory_percent, disk_usage, network_sent, network_recv)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.Timestamp.UnixNano(),
		snap.CPUPercent,
		int64(snap.MemoryTotal),
		int64(snap.MemoryAvailable),
		int64(snap.MemoryUsed),
		snap.MemoryPercent,
		string(diskJSON),
		int64(snap.NetworkSent),
		int64(snap.NetworkRecv),
	)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read snapshot id: %w", err)
	}
	s.log.Debug("snapshot persisted", zap.Int64("id", id), zap.Time("ts", snap.Timestamp), zap.Int("disks", len(disks)))
	return id, nil
}

const selectColumns = `SELECT id, ts, cpu_percent, memory_total, memory_available, memory_used,
       memory_percent, disk_usage, network_sent, network_recv FROM metrics`

// Query returns the matching snapshots, newest first.
func (s *SQLite) Query(ctx context.Context, f Filter) ([]Snapshot, error) {
	q := selectColumns
	var args []any
	if f.Since != nil {
		q += ` WHERE ts >= ?`
		args = append(args, f.Since.UnixNano())
	}
	q += ` ORDER BY ts DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]Snapshot, 0)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// MostRecent returns the newest snapshot, or nil when the table is empty.
func (s *SQLite) MostRecent(ctx context.Context) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` ORDER BY ts DESC, id DESC LIMIT 1`)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Get returns the snapshot stored under id, or nil when there is none.
func (s *SQLite) Get(ctx context.Context, id int64) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(sc scanner) (*Snapshot, error) {
	var (
		snap                        Snapshot
		ts                          int64
		memTotal, memAvail, memUsed int64
		sent, recv                  int64
		diskJSON                    string
	)
	err := sc.Scan(&snap.ID, &ts, &snap.CPUPercent, &memTotal, &memAvail, &memUsed,
		&snap.MemoryPercent, &diskJSON, &sent, &recv)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(diskJSON), &snap.DiskUsage); err != nil {
		return nil, fmt.Errorf("decode disk usage of snapshot %d: %w", snap.ID, err)
	}
	snap.Timestamp = time.Unix(0, ts).UTC()
	snap.MemoryTotal = uint64(memTotal)
	snap.MemoryAvailable = uint64(memAvail)
	snap.MemoryUsed = uint64(memUsed)
	snap.NetworkSent = uint64(sent)
	snap.NetworkRecv = uint64(recv)
	return &snap, nil
}

// Close shuts down the database connection.
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
