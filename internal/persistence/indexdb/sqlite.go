package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/streaming"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/tuning"
)

// SQLiteIndex is a queryable secondary index of committed shifts. Writes are
// queued and applied by one goroutine; the JSONL shift log remains the
// source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropShift  atomic.Uint64
	writeFails atomic.Uint64
}

type reqKind int

const (
	reqShift reqKind = iota + 1
)

type req struct {
	kind  reqKind
	shift streaming.Report
}

type Stats struct {
	QueueDepth     int    `json:"queue_depth"`
	QueueCapacity  int    `json:"queue_capacity"`
	DropShiftTotal uint64 `json:"drop_shift_total"`
	WriteFailTotal uint64 `json:"write_fail_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS config (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS shifts (
			id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			shift_x INTEGER NOT NULL,
			shift_y INTEGER NOT NULL,
			origin_x INTEGER NOT NULL,
			origin_y INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			duration_ms REAL NOT NULL,
			tiles INTEGER NOT NULL,
			generated INTEGER NOT NULL,
			loaded INTEGER NOT NULL,
			cached INTEGER NOT NULL,
			evicted INTEGER NOT NULL,
			load_fallbacks INTEGER NOT NULL,
			cache_misses INTEGER NOT NULL,
			save_errors INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_shifts_started ON shifts(started_at);`,
		`CREATE TABLE IF NOT EXISTS tile_errors (
			shift_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			op TEXT NOT NULL,
			error TEXT NOT NULL,
			PRIMARY KEY (shift_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tile_errors_pos ON tile_errors(x, y);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// ReportShift queues a report for indexing. It never blocks the caller; a
// full queue drops the report and counts it.
func (s *SQLiteIndex) ReportShift(r streaming.Report) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqShift, shift: r}:
	default:
		s.dropShift.Add(1)
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
		DropShiftTotal: s.dropShift.Load(),
		WriteFailTotal: s.writeFails.Load(),
	}
}

// UpsertTuning stores the configuration the server actually runs with.
func (s *SQLiteIndex) UpsertTuning(t tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO config(name,digest,json,updated_at) VALUES(?,?,?,?)`,
		"tuning", hex.EncodeToString(sum[:]), string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertShift, _ := s.db.Prepare(`INSERT OR REPLACE INTO shifts(id,seq,shift_x,shift_y,origin_x,origin_y,started_at,duration_ms,tiles,generated,loaded,cached,evicted,load_fallbacks,cache_misses,save_errors,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertTileErr, _ := s.db.Prepare(`INSERT OR REPLACE INTO tile_errors(shift_id,seq,x,y,op,error) VALUES(?,?,?,?,?,?)`)
	defer func() {
		if insertShift != nil {
			_ = insertShift.Close()
		}
		if insertTileErr != nil {
			_ = insertTileErr.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeFails.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.writeFails.Add(1)
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		// Shifts are rare; commit as soon as the queue drains.
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			s.writeFails.Add(1)
			continue
		}
		switch r.kind {
		case reqShift:
			rep := r.shift
			raw, _ := json.Marshal(rep)
			if insertShift == nil || insertTileErr == nil {
				rollback()
				continue
			}
			if _, err := tx.Stmt(insertShift).Exec(
				rep.ID,
				int64(rep.Seq),
				rep.Shift.X, rep.Shift.Y,
				rep.Origin.X, rep.Origin.Y,
				rep.StartedAt.UTC().Format(time.RFC3339Nano),
				rep.DurationMS,
				rep.Tiles,
				rep.Generated,
				rep.Loaded,
				rep.Cached,
				rep.Evicted,
				rep.LoadFallbacks,
				rep.CacheMisses,
				rep.SaveErrors,
				string(raw),
			); err != nil {
				rollback()
				continue
			}
			opCount++
			for i, te := range rep.TileErrors {
				if _, err := tx.Stmt(insertTileErr).Exec(rep.ID, i, te.Virtual.X, te.Virtual.Y, te.Op, te.Error); err != nil {
					rollback()
					break
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}
