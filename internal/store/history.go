package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/panbanda/sqeffect/pkg/models"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS analysis_events (
  project     TEXT NOT NULL,
  ts_utc      TEXT NOT NULL,
  ts_offset   INTEGER NOT NULL,
  version     TEXT NOT NULL DEFAULT '',
  markers     TEXT NOT NULL DEFAULT '[]',
  recorded_at TEXT NOT NULL,
  PRIMARY KEY (project, ts_utc)
);
CREATE TABLE IF NOT EXISTS aux_metrics (
  project     TEXT NOT NULL,
  ts_utc      TEXT NOT NULL,
  graph       TEXT NOT NULL,
  label       TEXT NOT NULL,
  value       REAL NOT NULL,
  recorded_at TEXT NOT NULL,
  PRIMARY KEY (project, ts_utc, graph, label)
);
`

// tsLayout sorts lexically in time order.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// History is the append-only record of every analysis event and auxiliary
// graph value seen by a collection run. Rows are never updated or deleted.
type History struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
	now  func() time.Time
}

// OpenHistory opens (creating if needed) the history database at path.
func OpenHistory(path string) (*History, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if dir := filepath.Dir(clean); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)", clean)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history %q: %w", clean, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(historySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize history schema %q: %w", clean, err)
	}
	return &History{path: clean, db: db, now: time.Now}, nil
}

// Close closes the database.
func (h *History) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

// Path returns the database file path.
func (h *History) Path() string { return h.path }

// RecordEvents appends events for project and returns how many were new.
// Events already recorded for the same instant are left untouched.
func (h *History) RecordEvents(ctx context.Context, project string, events []models.AnalysisEvent) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin record events: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO analysis_events (project, ts_utc, ts_offset, version, markers, recorded_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(project, ts_utc) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare record events: %w", err)
	}
	defer stmt.Close()

	recordedAt := h.now().UTC().Format(time.RFC3339Nano)
	inserted := 0
	for _, e := range events {
		markers := e.Markers
		if markers == nil {
			markers = []models.EventMarker{}
		}
		raw, err := json.Marshal(markers)
		if err != nil {
			return 0, err
		}
		_, offset := e.Timestamp.Zone()
		res, err := stmt.ExecContext(ctx, project, e.Timestamp.UTC().Format(tsLayout), offset, e.Version, string(raw), recordedAt)
		if err != nil {
			return 0, fmt.Errorf("record event %s %s: %w", project, e.Timestamp.Format(time.RFC3339), err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit record events: %w", err)
	}
	return inserted, nil
}

// Events returns the recorded events of project in ascending order, each in
// its original offset.
func (h *History) Events(ctx context.Context, project string) ([]models.AnalysisEvent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rows, err := h.db.QueryContext(ctx, `
SELECT ts_utc, ts_offset, version, markers FROM analysis_events
WHERE project = ? ORDER BY ts_utc ASC`, project)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	var out []models.AnalysisEvent
	for rows.Next() {
		var (
			tsRaw, version, markersRaw string
			offset                     int
		)
		if err := rows.Scan(&tsRaw, &offset, &version, &markersRaw); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		ts, err := time.Parse(tsLayout, tsRaw)
		if err != nil {
			return nil, fmt.Errorf("parse event timestamp %q: %w", tsRaw, err)
		}
		ev := models.AnalysisEvent{
			Timestamp: ts.In(time.FixedZone("", offset)),
			Version:   version,
		}
		if err := json.Unmarshal([]byte(markersRaw), &ev.Markers); err != nil {
			return nil, fmt.Errorf("decode markers: %w", err)
		}
		if len(ev.Markers) == 0 {
			ev.Markers = nil
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// AuxReading is one value of an auxiliary activity graph.
type AuxReading struct {
	Timestamp time.Time `json:"timestamp"`
	Graph     string    `json:"graph"`
	Label     string    `json:"label"`
	Value     float64   `json:"value"`
}

// RecordAuxMetrics appends the values of graph at ts for project.
func (h *History) RecordAuxMetrics(ctx context.Context, project string, ts time.Time, graph string, values map[string]float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record aux metrics: %w", err)
	}
	defer tx.Rollback()

	recordedAt := h.now().UTC().Format(time.RFC3339Nano)
	for label, v := range values {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO aux_metrics (project, ts_utc, graph, label, value, recorded_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(project, ts_utc, graph, label) DO NOTHING`,
			project, ts.UTC().Format(tsLayout), graph, label, v, recordedAt); err != nil {
			return fmt.Errorf("record aux metric %s/%s: %w", graph, label, err)
		}
	}
	return tx.Commit()
}

// AuxMetrics returns the recorded values of graph for project ordered by time then label.
func (h *History) AuxMetrics(ctx context.Context, project, graph string) ([]AuxReading, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rows, err := h.db.QueryContext(ctx, `
SELECT ts_utc, label, value FROM aux_metrics
WHERE project = ? AND graph = ? ORDER BY ts_utc ASC, label ASC`, project, graph)
	if err != nil {
		return nil, fmt.Errorf("load aux metrics: %w", err)
	}
	defer rows.Close()

	var out []AuxReading
	for rows.Next() {
		var (
			tsRaw string
			r     AuxReading
		)
		if err := rows.Scan(&tsRaw, &r.Label, &r.Value); err != nil {
			return nil, fmt.Errorf("scan aux metric row: %w", err)
		}
		ts, err := time.Parse(tsLayout, tsRaw)
		if err != nil {
			return nil, fmt.Errorf("parse aux metric timestamp %q: %w", tsRaw, err)
		}
		r.Timestamp = ts
		r.Graph = graph
		out = append(out, r)
	}
	return out, rows.Err()
}
