package journal

import (
	"time"
)

// TableStat is one table's row count and newest timestamp.
type TableStat struct {
	Table string
	Rows  int64
	// Newest is zero when the table is empty or has no ts column worth
	// reporting.
	Newest time.Time
}

// Stats summarizes every table for the status command.
func (j *Journal) Stats() ([]TableStat, error) {
	tables := []string{"ticks", "unified_ticks", "features", "signals", "ranks", "positions"}
	out := make([]TableStat, 0, len(tables))
	for _, table := range tables {
		var rows int64
		if err := j.db.Get(&rows, `SELECT COUNT(*) FROM `+table); err != nil {
			return nil, err
		}
		stat := TableStat{Table: table, Rows: rows}
		if table != "positions" && rows > 0 {
			var maxTs float64
			if err := j.db.Get(&maxTs, `SELECT MAX(ts) FROM `+table); err == nil && maxTs > 0 {
				stat.Newest = fromUnix(maxTs)
			}
		}
		out = append(out, stat)
	}
	return out, nil
}

// SymbolScore is one row of the top-score ranking.
type SymbolScore struct {
	Symbol   string  `db:"sym"`
	AvgScore float64 `db:"avg_score"`
	Samples  int64   `db:"samples"`
}

// TopScores averages recent rank rows per symbol and returns the top n.
// The scan is bounded to the newest maxRows rows within the lookback.
func (j *Journal) TopScores(lookback time.Duration, maxRows, n int) ([]SymbolScore, error) {
	cutoff := unix(j.now().Add(-lookback))
	var out []SymbolScore
	err := j.db.Select(&out, `
		SELECT sym, AVG(score) AS avg_score, COUNT(*) AS samples
		FROM (SELECT sym, score FROM ranks WHERE ts > ? ORDER BY ts DESC LIMIT ?)
		GROUP BY sym
		ORDER BY avg_score DESC
		LIMIT ?`,
		cutoff, maxRows, n)
	return out, err
}

// OpenPositions lists all currently OPEN rows.
func (j *Journal) OpenPositions() ([]string, error) {
	var syms []string
	err := j.db.Select(&syms,
		`SELECT sym FROM positions WHERE status='OPEN' ORDER BY entry_ts`)
	return syms, err
}
