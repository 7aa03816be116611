package feature

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
)

const (
	btcRegimeCap   = 360
	btcKlinesURL   = "https://api.binance.com/api/v3/klines"
	btcPumpScale   = 0.03
	btcPumpCeiling = 0.4
)

// BTCRegime tracks recent BTC spot prices and exposes the pump factor that
// gates short entries. Prices come from 1m klines polled over REST, so a
// restart backfills the full hour immediately.
type BTCRegime struct {
	client *resty.Client
	logger *slog.Logger

	mu     sync.Mutex
	prices *window
	now    func() time.Time
}

func NewBTCRegime(client *resty.Client, logger *slog.Logger) *BTCRegime {
	return &BTCRegime{
		client: client,
		logger: logger.With("component", "btc_regime"),
		prices: newWindow(btcRegimeCap),
		now:    time.Now,
	}
}

// Poll fetches the last 60 one-minute closes and replaces the buffer tail.
func (b *BTCRegime) Poll(ctx context.Context) error {
	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":   "BTCUSDT",
			"interval": "1m",
			"limit":    "60",
		}).
		Get(btcKlinesURL)
	if err != nil {
		return fmt.Errorf("btc klines: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("btc klines: status %d", resp.StatusCode())
	}

	var rows [][]json.RawMessage
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return fmt.Errorf("btc klines decode: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, row := range rows {
		if len(row) < 5 {
			continue
		}
		var openMs int64
		var closeStr string
		if err := json.Unmarshal(row[0], &openMs); err != nil {
			continue
		}
		if err := json.Unmarshal(row[4], &closeStr); err != nil {
			continue
		}
		price, err := strconv.ParseFloat(closeStr, 64)
		if err != nil || price <= 0 {
			continue
		}
		ts := time.UnixMilli(openMs)
		if last, ok := b.prices.last(); ok && !ts.After(last.ts) {
			continue
		}
		b.prices.push(ts, price)
	}
	return nil
}

// Observe ingests one BTC price sample directly. Used when a live BTC tick
// is already flowing through the hub, and by tests.
func (b *BTCRegime) Observe(ts time.Time, price float64) {
	if price <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices.push(ts, price)
}

// Pump is max(r_5m, r_60m)/0.03 clamped to [0,1]: how hard BTC is running
// up. Zero with no data, which treats an empty buffer as calm.
func (b *BTCRegime) Pump() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	r5 := b.prices.returnOver(now.Add(-5 * time.Minute))
	r60 := b.prices.returnOver(now.Add(-60 * time.Minute))
	r := r5
	if r60 > r {
		r = r60
	}
	return clamp(r/btcPumpScale, 0, 1)
}

// NotPumping reports whether shorts are allowed on the BTC side.
func (b *BTCRegime) NotPumping() bool { return b.Pump() < btcPumpCeiling }
