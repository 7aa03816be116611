// Package universe loads the canonical symbol allowlist and translates
// between canonical and venue-local symbol forms.
//
// The allowlist is a line-oriented text file: one symbol per line, `#`
// comments skipped, `BASE/QUOTE` normalized to `BASEQUOTE`, uppercased,
// deduplicated with insertion order preserved.
package universe

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"scalp-engine/pkg/types"
)

// binanceBlacklistPrefixes are symbol prefixes Binance futures is known to
// reject (stock wrappers and similar); they are subtracted from its universe
// to cut 4xx noise.
var binanceBlacklistPrefixes = []string{"AAPL", "AAPLX", "2Z", "4"}

// Universe is the loaded allowlist. Immutable after Load.
type Universe struct {
	symbols []string
	set     map[string]struct{}
}

// Load reads the allowlist file at path.
func Load(path string) (*Universe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open symbols file: %w", err)
	}
	defer f.Close()

	u := &Universe{set: make(map[string]struct{})}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sym := strings.ToUpper(strings.ReplaceAll(line, "/", ""))
		if _, dup := u.set[sym]; dup {
			continue
		}
		u.set[sym] = struct{}{}
		u.symbols = append(u.symbols, sym)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read symbols file: %w", err)
	}
	return u, nil
}

// FromSymbols builds a universe directly from canonical symbols. Used by the
// BTCUSDT fallback and by tests.
func FromSymbols(symbols ...string) *Universe {
	u := &Universe{set: make(map[string]struct{})}
	for _, s := range symbols {
		sym := strings.ToUpper(strings.ReplaceAll(s, "/", ""))
		if _, dup := u.set[sym]; dup {
			continue
		}
		u.set[sym] = struct{}{}
		u.symbols = append(u.symbols, sym)
	}
	return u
}

// Symbols returns the canonical symbols in file order.
func (u *Universe) Symbols() []string {
	out := make([]string, len(u.symbols))
	copy(out, u.symbols)
	return out
}

// Len reports the universe size.
func (u *Universe) Len() int { return len(u.symbols) }

// Contains reports whether the canonical symbol is allowlisted.
func (u *Universe) Contains(sym string) bool {
	_, ok := u.set[sym]
	return ok
}

// ByVenue returns the venue-local symbol lists. LBank uses lowercased
// base_quote; Binance gets the blacklist prefixes subtracted.
func (u *Universe) ByVenue() map[types.Venue][]string {
	binance := make([]string, 0, len(u.symbols))
	for _, s := range u.symbols {
		if hasBlacklistedPrefix(s) {
			continue
		}
		binance = append(binance, s)
	}
	lbank := make([]string, 0, len(u.symbols))
	for _, s := range u.symbols {
		lbank = append(lbank, CanonToLBank(s))
	}
	return map[types.Venue][]string{
		types.VenueBinance: binance,
		types.VenueBybit:   u.Symbols(),
		types.VenueMEXC:    u.Symbols(),
		types.VenueLBank:   lbank,
	}
}

func hasBlacklistedPrefix(sym string) bool {
	for _, p := range binanceBlacklistPrefixes {
		if strings.HasPrefix(sym, p) {
			return true
		}
	}
	return false
}

// CanonToLBank converts BTCUSDT to btc_usdt.
func CanonToLBank(sym string) string {
	if strings.HasSuffix(sym, "USDT") {
		return strings.ToLower(sym[:len(sym)-4]) + "_usdt"
	}
	return strings.ToLower(sym) + "_usdt"
}

// Canonical converts a venue-local symbol back to canonical form.
func Canonical(venue types.Venue, local string) string {
	if venue == types.VenueLBank {
		s := strings.TrimSuffix(local, "_usdt")
		s = strings.ReplaceAll(s, "_", "")
		return strings.ToUpper(s) + "USDT"
	}
	return strings.ToUpper(strings.ReplaceAll(local, "_", ""))
}
