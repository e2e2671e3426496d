package tilestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/region"
)

// SQLiteStore keeps zstd-compressed rasters as rows of a single table.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
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
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS tiles (
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		size INTEGER NOT NULL,
		data BLOB NOT NULL,
		saved_at TEXT NOT NULL,
		PRIMARY KEY (x, y)
	);`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
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

func (s *SQLiteStore) Exists(ctx context.Context, v region.Location) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tiles WHERE x=? AND y=?`, v.X, v.Y).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) Load(ctx context.Context, v region.Location) (region.Raster, error) {
	var (
		size int
		blob []byte
	)
	err := s.db.QueryRowContext(ctx, `SELECT size,data FROM tiles WHERE x=? AND y=?`, v.X, v.Y).Scan(&size, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return region.Raster{}, ErrNotFound
	}
	if err != nil {
		return region.Raster{}, err
	}
	r, err := decodeBlob(blob, size)
	if err != nil {
		return region.Raster{}, fmt.Errorf("tile %v: %w", v, err)
	}
	return r, nil
}

func (s *SQLiteStore) Save(ctx context.Context, v region.Location, r region.Raster) error {
	if err := r.Valid(); err != nil {
		return fmt.Errorf("tile %v: %w", v, err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tiles(x,y,size,data,saved_at) VALUES(?,?,?,?,?)`,
		v.X, v.Y, r.Size, encodeBlob(r), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) Keys(ctx context.Context) ([]region.Location, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT x,y FROM tiles ORDER BY y,x`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []region.Location
	for rows.Next() {
		var v region.Location
		if err := rows.Scan(&v.X, &v.Y); err != nil {
			return nil, err
		}
		keys = append(keys, v)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
