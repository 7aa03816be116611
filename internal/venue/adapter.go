// Package venue implements the exchange adapters. Each adapter owns its
// venue's WebSocket feeds and REST endpoints, normalizes payloads into the
// shared event types, and reports per-stream liveness.
//
// Adapters work in venue-local symbols throughout: constructors take them,
// events carry them, and the REST poller expects them. The hub owns the
// translation back to canonical form.
package venue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scalp-engine/pkg/types"
)

// Callbacks receive normalized events. The hub installs these; any callback
// may be nil.
type Callbacks struct {
	OnBook  func(types.BookEvent)
	OnTrade func(types.TradeEvent)
	OnMark  func(types.MarkEvent)
}

func (c Callbacks) book(e types.BookEvent) {
	if c.OnBook != nil {
		c.OnBook(e)
	}
}

func (c Callbacks) trade(e types.TradeEvent) {
	if c.OnTrade != nil {
		c.OnTrade(e)
	}
}

func (c Callbacks) mark(e types.MarkEvent) {
	if c.OnMark != nil {
		c.OnMark(e)
	}
}

// Adapter is one exchange connection manager.
type Adapter interface {
	// Name identifies the venue.
	Name() types.Venue

	// Run connects the venue's WebSocket feeds and blocks until ctx is
	// cancelled, reconnecting with backoff on failure.
	Run(ctx context.Context) error

	// Symbols returns the venue-local symbols this adapter subscribes to.
	Symbols() []string

	// FetchFundingOI fetches funding rate and/or open interest for one
	// venue-local symbol over REST. Fields the venue does not expose are nil.
	FetchFundingOI(ctx context.Context, sym string) (types.FundingOI, error)

	// StalenessCheck returns the streams silent for longer than maxAge,
	// keyed to how long each has been silent.
	StalenessCheck(maxAge time.Duration) map[string]time.Duration

	// Close tears down all connections.
	Close() error
}

// StatusError is a non-2xx REST response. The hub treats persistent 4xx as
// a signal to skip the symbol on that venue.
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d from %s", e.Status, e.URL)
}

// IsClientError reports whether err is a 4xx StatusError.
func IsClientError(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= 400 && se.Status < 500
	}
	return false
}
