// Package journal is the durable store for ticks, features, scores, signals
// and positions. It is a single-writer SQLite database in WAL mode; the
// engine's consumer loop owns all writes while read-only surfaces (the
// status command) open their own connections.
//
// Every write validates the symbol against the allowlist and the timestamp
// against wall clock (±300 s); violators are silently dropped, matching the
// hub's boundary validation.
package journal

import (
	"database/sql"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"scalp-engine/pkg/types"
)

const maxTsSkew = 300 * time.Second

// Allowlist is the symbol-validation surface the journal needs; satisfied
// by *universe.Universe.
type Allowlist interface {
	Contains(sym string) bool
}

// Journal wraps the SQLite connection. All writes are serialized on mu.
type Journal struct {
	db      *sqlx.DB
	mu      sync.Mutex
	allowed Allowlist

	// now is swappable for tests.
	now func() time.Time
}

// Open creates (or opens) the journal at path and initializes the schema.
func Open(path string, allowed Allowlist) (*Journal, error) {
	db, err := sqlx.Open("sqlite3", path+"?_busy_timeout=10000")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// One writer connection; readers open their own handles.
	db.SetMaxOpenConns(1)
	j := &Journal{db: db, allowed: allowed, now: time.Now}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// OpenReadOnly opens an independent connection for read-only surfaces.
func OpenReadOnly(path string) (*Journal, error) {
	db, err := sqlx.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=10000")
	if err != nil {
		return nil, fmt.Errorf("open journal read-only: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

func (j *Journal) initSchema() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA synchronous=NORMAL`,
		`CREATE TABLE IF NOT EXISTS ticks(
			ts REAL NOT NULL,
			venue TEXT NOT NULL,
			sym TEXT NOT NULL,
			price REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_ts ON ticks(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_sym ON ticks(sym)`,
		`CREATE TABLE IF NOT EXISTS features(
			ts REAL NOT NULL,
			sym TEXT NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_features_ts ON features(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_features_sym ON features(sym)`,
		`CREATE TABLE IF NOT EXISTS signals(
			ts REAL NOT NULL,
			sym TEXT NOT NULL,
			score REAL NOT NULL,
			entry_price REAL NOT NULL,
			reason TEXT,
			dedup_hash TEXT,
			signal_type TEXT DEFAULT 'entry'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_sym_ts ON signals(sym, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_dedup ON signals(sym, dedup_hash)`,
		`CREATE TABLE IF NOT EXISTS positions(
			sym TEXT NOT NULL,
			entry_ts REAL NOT NULL,
			entry_price REAL NOT NULL,
			status TEXT NOT NULL,
			best_low REAL,
			exit_ts REAL,
			exit_price REAL,
			exit_reason TEXT,
			pnl_pct REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_sym ON positions(sym)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status)`,
		`CREATE TABLE IF NOT EXISTS ranks(
			ts REAL NOT NULL,
			sym TEXT NOT NULL,
			score REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ranks_ts ON ranks(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_ranks_sym ON ranks(sym)`,
		`CREATE TABLE IF NOT EXISTS unified_ticks(
			ts REAL NOT NULL,
			sym TEXT NOT NULL,
			price REAL,
			mark REAL,
			funding REAL,
			oi REAL,
			spread REAL,
			volume REAL,
			bid_total REAL,
			ask_total REAL,
			imbalance REAL,
			UNIQUE(sym, ts)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_unified_ts ON unified_ticks(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_unified_sym ON unified_ticks(sym)`,
	}
	for _, s := range stmts {
		if _, err := j.db.Exec(s); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying connection.
func (j *Journal) Close() error { return j.db.Close() }

func (j *Journal) validSymbol(sym string) bool {
	if sym == "" {
		return false
	}
	if j.allowed == nil {
		return true
	}
	return j.allowed.Contains(sym)
}

func (j *Journal) validTimestamp(ts time.Time) bool {
	if ts.IsZero() {
		return false
	}
	d := j.now().Sub(ts)
	if d < 0 {
		d = -d
	}
	return d < maxTsSkew
}

func unix(ts time.Time) float64 { return float64(ts.UnixNano()) / 1e9 }

func fromUnix(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// StoreTick persists one raw per-venue price print.
func (j *Journal) StoreTick(venue types.Venue, sym string, price float64, ts time.Time) error {
	if !j.validSymbol(sym) || !j.validTimestamp(ts) || price <= 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.Exec(`INSERT INTO ticks(ts, venue, sym, price) VALUES (?,?,?,?)`,
		unix(ts), string(venue), sym, price)
	return err
}

// StoreUnified persists one averaged row per symbol per tick, replacing on
// the (sym, ts) key.
func (j *Journal) StoreUnified(t types.UnifiedTick) error {
	if !j.validSymbol(t.Symbol) || !j.validTimestamp(t.Ts) {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.Exec(`INSERT OR REPLACE INTO unified_ticks
		(ts, sym, price, mark, funding, oi, spread, volume, bid_total, ask_total, imbalance)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		unix(t.Ts), t.Symbol, t.Price, t.Mark, t.Funding, t.OI, t.Spread,
		t.Volume, t.BidTotal, t.AskTotal, t.Imbalance)
	return err
}

// StoreFeatures persists one serialized feature map per scoring pass.
func (j *Journal) StoreFeatures(sym string, data string, ts time.Time) error {
	if !j.validSymbol(sym) || !j.validTimestamp(ts) {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.Exec(`INSERT INTO features(ts, sym, data) VALUES (?,?,?)`, unix(ts), sym, data)
	return err
}

// StoreSignal persists a signal row.
func (j *Journal) StoreSignal(s types.Signal) error {
	if !j.validSymbol(s.Symbol) {
		return nil
	}
	ts := s.Ts
	if ts.IsZero() {
		ts = j.now()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.Exec(`INSERT INTO signals(ts, sym, score, entry_price, reason, dedup_hash, signal_type)
		VALUES (?,?,?,?,?,?,?)`,
		unix(ts), s.Symbol, s.Score, s.EntryPrice, s.Reason, s.DedupHash, string(s.Type))
	return err
}

// StoreRank persists one (ts, sym, score) snapshot.
func (j *Journal) StoreRank(sym string, score float64, ts time.Time) error {
	if !j.validSymbol(sym) {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.Exec(`INSERT INTO ranks(ts, sym, score) VALUES (?,?,?)`, unix(ts), sym, score)
	return err
}

// SeenRecentSignal reports whether the same dedup hash was stored for the
// symbol within the window.
func (j *Journal) SeenRecentSignal(sym, dedupHash string, window time.Duration) (bool, error) {
	cutoff := unix(j.now().Add(-window))
	var one int
	err := j.db.Get(&one,
		`SELECT 1 FROM signals WHERE sym=? AND dedup_hash=? AND ts>? LIMIT 1`,
		sym, dedupHash, cutoff)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SeenRecentSymbolSignal reports whether any signal of the given type exists
// for the symbol within the window. Empty type matches all signals.
func (j *Journal) SeenRecentSymbolSignal(sym string, window time.Duration, sigType types.SignalType) (bool, error) {
	cutoff := unix(j.now().Add(-window))
	var one int
	var err error
	if sigType != "" {
		err = j.db.Get(&one,
			`SELECT 1 FROM signals WHERE sym=? AND signal_type=? AND ts>? LIMIT 1`,
			sym, string(sigType), cutoff)
	} else {
		err = j.db.Get(&one,
			`SELECT 1 FROM signals WHERE sym=? AND ts>? LIMIT 1`, sym, cutoff)
	}
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// LatestSignal returns the newest signal row for the symbol, nil when none
// exists.
func (j *Journal) LatestSignal(sym string) (*types.Signal, error) {
	var row struct {
		Ts         float64 `db:"ts"`
		Sym        string  `db:"sym"`
		Score      float64 `db:"score"`
		EntryPrice float64 `db:"entry_price"`
		Reason     string  `db:"reason"`
		DedupHash  string  `db:"dedup_hash"`
		SignalType string  `db:"signal_type"`
	}
	err := j.db.Get(&row,
		`SELECT ts, sym, score, entry_price, reason, dedup_hash, signal_type
		 FROM signals WHERE sym=? ORDER BY ts DESC, rowid DESC LIMIT 1`, sym)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &types.Signal{
		Ts:         fromUnix(row.Ts),
		Symbol:     row.Sym,
		Score:      row.Score,
		EntryPrice: row.EntryPrice,
		Reason:     row.Reason,
		DedupHash:  row.DedupHash,
		Type:       types.SignalType(row.SignalType),
	}, nil
}

// OpenPosition inserts a new OPEN short with best_low seeded at the entry.
func (j *Journal) OpenPosition(sym string, entryPrice float64, entryTs time.Time) error {
	if !j.validSymbol(sym) {
		return nil
	}
	if entryTs.IsZero() {
		entryTs = j.now()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.Exec(`INSERT INTO positions(sym, entry_ts, entry_price, status, best_low)
		VALUES (?,?,?,?,?)`,
		sym, unix(entryTs), entryPrice, string(types.PositionOpen), entryPrice)
	return err
}

// ClosePosition closes the newest OPEN position for the symbol, computing
// the short-side pnl_pct from the stored entry. The row becomes immutable.
func (j *Journal) ClosePosition(sym string, exitPrice float64, reason string, exitTs time.Time) error {
	if exitTs.IsZero() {
		exitTs = j.now()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	var entryPrice float64
	err := j.db.Get(&entryPrice,
		`SELECT entry_price FROM positions WHERE sym=? AND status=? ORDER BY entry_ts DESC LIMIT 1`,
		sym, string(types.PositionOpen))
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	pnl := types.PnlPctShort(entryPrice, exitPrice)
	_, err = j.db.Exec(`UPDATE positions SET status=?, exit_ts=?, exit_price=?, exit_reason=?, pnl_pct=?
		WHERE sym=? AND status=?`,
		string(types.PositionClosed), unix(exitTs), exitPrice, reason, pnl,
		sym, string(types.PositionOpen))
	return err
}

// UpdateBestLow persists a new best_low for the symbol's OPEN position.
func (j *Journal) UpdateBestLow(sym string, bestLow float64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.Exec(`UPDATE positions SET best_low=? WHERE sym=? AND status=?`,
		bestLow, sym, string(types.PositionOpen))
	return err
}

// GetOpenPosition returns the newest OPEN position for the symbol, or nil.
func (j *Journal) GetOpenPosition(sym string) (*types.Position, error) {
	var row struct {
		EntryTs    float64  `db:"entry_ts"`
		EntryPrice float64  `db:"entry_price"`
		BestLow    *float64 `db:"best_low"`
	}
	err := j.db.Get(&row,
		`SELECT entry_ts, entry_price, best_low FROM positions
		 WHERE sym=? AND status=? ORDER BY entry_ts DESC LIMIT 1`,
		sym, string(types.PositionOpen))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	pos := &types.Position{
		Symbol:     sym,
		EntryTs:    fromUnix(row.EntryTs),
		EntryPrice: row.EntryPrice,
		Status:     types.PositionOpen,
		BestLow:    row.EntryPrice,
	}
	if row.BestLow != nil {
		pos.BestLow = *row.BestLow
	}
	return pos, nil
}

// LatestUnified returns the newest unified row for the symbol, or nil.
func (j *Journal) LatestUnified(sym string) (*types.UnifiedTick, error) {
	var row struct {
		Ts        float64  `db:"ts"`
		Price     *float64 `db:"price"`
		Mark      *float64 `db:"mark"`
		Funding   *float64 `db:"funding"`
		OI        *float64 `db:"oi"`
		Spread    *float64 `db:"spread"`
		Volume    *float64 `db:"volume"`
		BidTotal  *float64 `db:"bid_total"`
		AskTotal  *float64 `db:"ask_total"`
		Imbalance *float64 `db:"imbalance"`
	}
	err := j.db.Get(&row,
		`SELECT ts, price, mark, funding, oi, spread, volume, bid_total, ask_total, imbalance
		 FROM unified_ticks WHERE sym=? ORDER BY ts DESC LIMIT 1`, sym)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &types.UnifiedTick{
		Symbol: sym, Ts: fromUnix(row.Ts),
		Price: row.Price, Mark: row.Mark, Funding: row.Funding, OI: row.OI,
		Spread: row.Spread, Volume: row.Volume,
		BidTotal: row.BidTotal, AskTotal: row.AskTotal, Imbalance: row.Imbalance,
	}, nil
}

// LatestTick returns the newest raw per-venue print for the symbol, or nil.
func (j *Journal) LatestTick(sym string) (venue types.Venue, price float64, ts time.Time, err error) {
	var row struct {
		Ts    float64 `db:"ts"`
		Venue string  `db:"venue"`
		Price float64 `db:"price"`
	}
	err = j.db.Get(&row,
		`SELECT ts, venue, price FROM ticks WHERE sym=? ORDER BY ts DESC LIMIT 1`, sym)
	if err == sql.ErrNoRows {
		return "", 0, time.Time{}, nil
	}
	if err != nil {
		return "", 0, time.Time{}, err
	}
	return types.Venue(row.Venue), row.Price, fromUnix(row.Ts), nil
}

// PruneOld deletes tick, unified, feature and rank rows older than the
// retention window. Signals and positions are kept.
func (j *Journal) PruneOld(days int) error {
	cutoff := unix(j.now().Add(-time.Duration(days) * 24 * time.Hour))
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, table := range []string{"ticks", "unified_ticks", "features", "ranks"} {
		if _, err := j.db.Exec(`DELETE FROM `+table+` WHERE ts < ?`, cutoff); err != nil {
			return fmt.Errorf("prune %s: %w", table, err)
		}
	}
	return nil
}
