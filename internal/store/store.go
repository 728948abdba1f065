// Package store persists trading state to disk for crash recovery and
// session continuity, and maintains a durable tick/bar log for replay and
// post-session analysis.
//
// Snapshot state (open positions, trades, tier, halt flag) is written as
// JSON using the teacher's atomic write-then-rename idiom, with the
// previous file rotated to a one-generation backup before each save so a
// crash mid-write never destroys the last good snapshot. Tick and bar
// history is appended to a SQLite database, which tolerates far higher
// write volume than repeatedly rewriting a JSON file would.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"orderflow-engine/pkg/types"
)

const (
	snapshotFile = "trading_state.json"
	backupFile   = "trading_state.backup.json"
	stateVersion = 1
)

// Snapshot is the full persisted trading state for one session.
type Snapshot struct {
	Version       int                `json:"_version"`
	SavedAt       time.Time          `json:"_saved_at"`
	Symbol        string             `json:"symbol"`
	DailyPnL      decimal.Decimal    `json:"daily_pnl"`
	IsHalted      bool               `json:"is_halted"`
	HaltReason    string             `json:"halt_reason,omitempty"`
	OpenPositions []types.Position   `json:"open_positions"`
	Trades        []types.Trade      `json:"trades"`
	Tier          types.TierState    `json:"tier"`
}

// SnapshotStore persists Snapshot to a JSON file in a designated directory.
// All operations are mutex-protected to serialize file access.
type SnapshotStore struct {
	dir  string
	path string
	bak  string
	mu   sync.Mutex
}

// OpenSnapshotStore creates a snapshot store backed by the given directory.
func OpenSnapshotStore(dir string) (*SnapshotStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &SnapshotStore{
		dir:  dir,
		path: filepath.Join(dir, snapshotFile),
		bak:  filepath.Join(dir, backupFile),
	}, nil
}

// Save writes snap to disk atomically, first rotating the existing
// snapshot file to a backup so a failed write can still be recovered from.
func (s *SnapshotStore) Save(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap.Version = stateVersion
	snap.SavedAt = time.Now()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := os.Rename(s.path, s.bak); err != nil {
			return fmt.Errorf("rotate backup: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		// Best effort: restore the backup we just rotated away so a mid-write
		// crash doesn't leave the session with no recoverable state at all.
		if _, statErr := os.Stat(s.bak); statErr == nil {
			_ = os.Rename(s.bak, s.path)
		}
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Load restores the snapshot from disk, falling back to the one-generation
// backup if the primary file is missing or corrupt. Returns nil, nil if
// neither exists (fresh session).
func (s *SnapshotStore) Load() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.readFile(s.path)
	if err == nil {
		return snap, nil
	}
	// Primary is missing or corrupt; try the backup before giving up.
	if bakSnap, bakErr := s.readFile(s.bak); bakErr == nil {
		return bakSnap, nil
	}
	if os.IsNotExist(err) {
		return nil, nil
	}
	return nil, err
}

func (s *SnapshotStore) readFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", path, err)
	}
	return &snap, nil
}

// Clear removes both the primary and backup snapshot files, so the next Load
// returns nil (a fresh session).
func (s *SnapshotStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range []string{s.path, s.bak} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

// TickLog is a durable append-only log of ticks and completed footprint
// bars, backed by SQLite so high-frequency writes don't require rewriting
// a whole file per tick the way the JSON snapshot does.
type TickLog struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenTickLog opens (creating if needed) a SQLite-backed tick/bar log at path.
func OpenTickLog(path string) (*TickLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open tick log: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS ticks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			price TEXT NOT NULL,
			volume INTEGER NOT NULL,
			side TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_symbol_ts ON ticks(symbol, timestamp)`,
		`CREATE TABLE IF NOT EXISTS bars (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			open TEXT NOT NULL,
			high TEXT NOT NULL,
			low TEXT NOT NULL,
			close TEXT NOT NULL,
			total_volume INTEGER NOT NULL,
			delta INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bars_symbol_start ON bars(symbol, start_time)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	return &TickLog{db: db}, nil
}

// Close closes the underlying database handle.
func (t *TickLog) Close() error {
	return t.db.Close()
}

// AppendTick records one tick.
func (t *TickLog) AppendTick(tick types.Tick) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := t.db.Exec(
		`INSERT INTO ticks (symbol, timestamp, price, volume, side) VALUES (?, ?, ?, ?, ?)`,
		tick.Symbol, tick.Timestamp.Format(time.RFC3339Nano), tick.Price.String(), tick.Volume, string(tick.Side),
	)
	if err != nil {
		return fmt.Errorf("append tick: %w", err)
	}
	return nil
}

// AppendBar records one completed footprint bar's OHLC and summary stats;
// per-price-level detail is not persisted, since it can be rebuilt from the
// tick log for any bar that needs replay.
func (t *TickLog) AppendBar(bar *types.FootprintBar) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := t.db.Exec(
		`INSERT INTO bars (symbol, start_time, end_time, open, high, low, close, total_volume, delta)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bar.Symbol, bar.StartTime.Format(time.RFC3339Nano), bar.EndTime.Format(time.RFC3339Nano),
		bar.Open.String(), bar.High.String(), bar.Low.String(), bar.Close.String(),
		bar.TotalVolume(), bar.Delta(),
	)
	if err != nil {
		return fmt.Errorf("append bar: %w", err)
	}
	return nil
}

// TickCount returns the number of ticks logged for symbol, for diagnostics.
func (t *TickLog) TickCount(symbol string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var count int64
	err := t.db.QueryRow(`SELECT COUNT(*) FROM ticks WHERE symbol = ?`, symbol).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count ticks: %w", err)
	}
	return count, nil
}
