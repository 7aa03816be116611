// Package types defines the shared data model for the short-scalp engine:
// normalized venue events, the cross-venue unified tick, the derived feature
// vector, and the signal/position records persisted by the journal.
package types

import (
	"time"
)

// Venue identifies one of the supported perpetual-futures exchanges.
type Venue string

const (
	VenueBinance Venue = "binance"
	VenueBybit   Venue = "bybit"
	VenueMEXC    Venue = "mexc"
	VenueLBank   Venue = "lbank"
)

// Side is the taker side of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// PriceLevel is one order book level. Prices and sizes are already parsed;
// adapters never forward string-typed numbers.
type PriceLevel struct {
	Price float64
	Size  float64
}

// BookEvent is a normalized depth snapshot or delta from one venue.
// Symbol is the venue-local form; the hub canonicalizes at its boundary.
type BookEvent struct {
	Venue  Venue
	Symbol string
	Ts     time.Time
	Bids   []PriceLevel
	Asks   []PriceLevel
}

// TradeEvent is a normalized taker print from one venue.
type TradeEvent struct {
	Venue  Venue
	Symbol string
	Ts     time.Time
	Price  float64
	Qty    float64
	Side   Side
}

// MarkEvent is a normalized mark-price (or last-price fallback) update.
type MarkEvent struct {
	Venue  Venue
	Symbol string
	Ts     time.Time
	Price  float64
}

// FundingOI is one row of a venue REST poll. Either field may be absent:
// some venues expose only funding, some only open interest.
type FundingOI struct {
	Symbol       string
	FundingRate  *float64
	OpenInterest *float64
}

// UnifiedTick is one cross-venue-averaged emission for a canonical symbol.
// Optional fields are nil when no fresh venue contributed a value.
type UnifiedTick struct {
	Symbol    string
	Ts        time.Time
	Price     *float64
	Mark      *float64
	Funding   *float64
	OI        *float64
	Spread    *float64
	Volume    *float64
	BidTotal  *float64
	AskTotal  *float64
	Imbalance *float64
	Sweep     *float64
}

// Float returns a pointer to v, for building optional tick fields.
func Float(v float64) *float64 { return &v }

// FeatureVector carries the latest derived scalars for one symbol.
// Scalar fields are clamped to [0,1] by the pipeline except NearResistance,
// which is an unclamped relative distance, and FundingImpulse and
// OIDivergence, which live in [-1,1].
type FeatureVector struct {
	AskDom              float64 `json:"ask_dom"`
	SpreadPct           float64 `json:"spread_pct"`
	GapAbove            float64 `json:"gap_above"`
	SweepRejection      float64 `json:"sweep_rejection"`
	VolatilityBurst     float64 `json:"volatility_burst"`
	ShortMomentum       float64 `json:"short_momentum"`
	FundingImpulse      float64 `json:"funding_impulse"`
	OIDivergence        float64 `json:"oi_divergence"`
	BTCAlignment        float64 `json:"btc_alignment"`
	LiquidityPressure   float64 `json:"liquidity_pressure"`
	OrderflowImbalance  float64 `json:"orderflow_imbalance"`
	NearResistance      float64 `json:"near_resistance"`
	PriceFalling        bool    `json:"price_falling"`
	SpreadNotCollapsing bool    `json:"spread_not_collapsing"`
	BTCNotPumping       bool    `json:"btc_not_pumping"`
	OIRising            bool    `json:"oi_rising"`
	Score               float64 `json:"score"`
}

// SignalType distinguishes entry signals from exit records.
type SignalType string

const (
	SignalEntry SignalType = "entry"
	SignalExit  SignalType = "exit"
)

// Signal is one persisted signal row.
type Signal struct {
	Ts         time.Time
	Symbol     string
	Score      float64
	EntryPrice float64
	Reason     string
	DedupHash  string
	Type       SignalType
}

// PositionStatus is the lifecycle state of a tracked short position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// Exit reasons written to closed positions and exit signal rows.
const (
	ExitHardStop         = "hard_stop"
	ExitTrailingGiveback = "trailing_giveback"
)

// Position is one tracked short. BestLow is the lowest price seen while
// OPEN and is non-increasing; a CLOSED row is never mutated again.
type Position struct {
	Symbol     string
	EntryTs    time.Time
	EntryPrice float64
	Status     PositionStatus
	BestLow    float64
	ExitTs     *time.Time
	ExitPrice  *float64
	ExitReason string
	PnlPct     *float64
}

// PnlPctShort is the unrealized PnL percent of a short opened at entry and
// marked at current. Positive when price has fallen.
func PnlPctShort(entry, current float64) float64 {
	if entry <= 0 {
		return 0
	}
	return (entry - current) / entry * 100
}
