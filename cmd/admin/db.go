package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type shiftRow struct {
	ID            string  `json:"id"`
	Seq           int64   `json:"seq"`
	Shift         [2]int  `json:"shift"`
	Origin        [2]int  `json:"origin"`
	StartedAt     string  `json:"started_at"`
	DurationMS    float64 `json:"duration_ms"`
	Tiles         int     `json:"tiles"`
	Generated     int     `json:"generated"`
	Loaded        int     `json:"loaded"`
	Cached        int     `json:"cached"`
	Evicted       int     `json:"evicted"`
	LoadFallbacks int     `json:"load_fallbacks"`
	CacheMisses   int     `json:"cache_misses"`
	SaveErrors    int     `json:"save_errors"`
}

type tileErrorRow struct {
	ShiftID string `json:"shift_id"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Op      string `json:"op"`
	Error   string `json:"error"`
}

func shiftsCmd(args []string) {
	fs := flag.NewFlagSet("shifts", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "recent"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "shifts.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}
	enc := json.NewEncoder(os.Stdout)

	switch q {
	case "recent":
		rows, err := queryShifts(db, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			_ = enc.Encode(r)
		}
	case "errors":
		rows, err := queryTileErrors(db, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			_ = enc.Encode(r)
		}
	case "summary":
		var s struct {
			Shifts     int64   `json:"shifts"`
			Generated  int64   `json:"generated"`
			Loaded     int64   `json:"loaded"`
			Cached     int64   `json:"cached"`
			Evicted    int64   `json:"evicted"`
			SaveErrors int64   `json:"save_errors"`
			AvgMS      float64 `json:"avg_duration_ms"`
		}
		row := db.QueryRow(`SELECT COUNT(*),COALESCE(SUM(generated),0),COALESCE(SUM(loaded),0),COALESCE(SUM(cached),0),COALESCE(SUM(evicted),0),COALESCE(SUM(save_errors),0),COALESCE(AVG(duration_ms),0) FROM shifts`)
		if err := row.Scan(&s.Shifts, &s.Generated, &s.Loaded, &s.Cached, &s.Evicted, &s.SaveErrors, &s.AvgMS); err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		_ = enc.Encode(s)
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want recent|errors|summary)")
		os.Exit(2)
	}
}

func queryShifts(db *sql.DB, limit int) ([]shiftRow, error) {
	rows, err := db.Query(`SELECT id,seq,shift_x,shift_y,origin_x,origin_y,started_at,duration_ms,tiles,generated,loaded,cached,evicted,load_fallbacks,cache_misses,save_errors FROM shifts ORDER BY started_at DESC, seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []shiftRow
	for rows.Next() {
		var r shiftRow
		if err := rows.Scan(&r.ID, &r.Seq, &r.Shift[0], &r.Shift[1], &r.Origin[0], &r.Origin[1], &r.StartedAt, &r.DurationMS,
			&r.Tiles, &r.Generated, &r.Loaded, &r.Cached, &r.Evicted, &r.LoadFallbacks, &r.CacheMisses, &r.SaveErrors); err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func queryTileErrors(db *sql.DB, limit int) ([]tileErrorRow, error) {
	rows, err := db.Query(`SELECT e.shift_id,e.x,e.y,e.op,e.error FROM tile_errors e JOIN shifts s ON s.id=e.shift_id ORDER BY s.started_at DESC, e.seq ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []tileErrorRow
	for rows.Next() {
		var r tileErrorRow
		if err := rows.Scan(&r.ShiftID, &r.X, &r.Y, &r.Op, &r.Error); err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
