package venue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"scalp-engine/pkg/types"
)

const (
	bybitWSURL    = "wss://stream.bybit.com/v5/public/linear"
	bybitRESTBase = "https://api.bybit.com"

	bybitPingInterval = 20 * time.Second
)

// Bybit streams v5 linear orderbook and public trades over one connection
// and polls open interest over REST. Funding comes from the other venues.
type Bybit struct {
	symbols []string
	session *wsSession
	cb      Callbacks
	rest    *resty.Client
	clock   *streamClock
	logger  *slog.Logger
}

func NewBybit(symbols []string, cb Callbacks, logger *slog.Logger) *Bybit {
	b := &Bybit{
		symbols: symbols,
		cb:      cb,
		rest:    newRESTClient(rate.NewLimiter(rate.Limit(5), 5)),
		clock:   newStreamClock(),
		logger:  logger.With("component", "venue_bybit"),
	}
	b.session = &wsSession{
		name:      "bybit",
		url:       bybitWSURL,
		logger:    b.logger,
		onConnect: b.subscribe,
		onMessage: b.handleMessage,
		ping:      []byte(`{"op":"ping"}`),
		pingEvery: bybitPingInterval,
	}
	return b
}

func (b *Bybit) Name() types.Venue { return types.VenueBybit }

func (b *Bybit) Symbols() []string { return b.symbols }

func (b *Bybit) Run(ctx context.Context) error { return b.session.run(ctx) }

func (b *Bybit) Close() error { return b.session.close() }

func (b *Bybit) StalenessCheck(maxAge time.Duration) map[string]time.Duration {
	return b.clock.stale(maxAge)
}

func (b *Bybit) subscribe(s *wsSession) error {
	args := make([]string, 0, len(b.symbols)*2)
	for _, sym := range b.symbols {
		args = append(args, "orderbook.50."+sym, "publicTrade."+sym)
	}
	return s.writeJSON(map[string]any{"op": "subscribe", "args": args})
}

type bybitBook struct {
	Symbol string     `json:"s"`
	Bids   [][]string `json:"b"`
	Asks   [][]string `json:"a"`
}

type bybitTrade struct {
	TradeTime int64  `json:"T"`
	Symbol    string `json:"s"`
	Side      string `json:"S"`
	Volume    string `json:"v"`
	Price     string `json:"p"`
}

func (b *Bybit) handleMessage(_ *wsSession, data []byte) {
	var frame struct {
		Topic string          `json:"topic"`
		Type  string          `json:"type"`
		Ts    int64           `json:"ts"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &frame); err != nil || frame.Topic == "" {
		return
	}

	switch {
	case strings.HasPrefix(frame.Topic, "orderbook."):
		var book bybitBook
		if err := json.Unmarshal(frame.Data, &book); err != nil {
			b.logger.Debug("book decode failed", "error", err)
			return
		}
		// Deltas can carry one side only; the hub merges totals per event,
		// so snapshots are what matter and deltas refresh liveness.
		if frame.Type != "snapshot" && (len(book.Bids) == 0 || len(book.Asks) == 0) {
			b.clock.mark("depth:" + book.Symbol)
			return
		}
		b.clock.mark("depth:" + book.Symbol)
		b.cb.book(types.BookEvent{
			Venue:  types.VenueBybit,
			Symbol: book.Symbol,
			Ts:     time.UnixMilli(frame.Ts),
			Bids:   parseStringLevels(book.Bids),
			Asks:   parseStringLevels(book.Asks),
		})

	case strings.HasPrefix(frame.Topic, "publicTrade."):
		var trades []bybitTrade
		if err := json.Unmarshal(frame.Data, &trades); err != nil {
			b.logger.Debug("trade decode failed", "error", err)
			return
		}
		for _, t := range trades {
			price, err1 := strconv.ParseFloat(t.Price, 64)
			qty, err2 := strconv.ParseFloat(t.Volume, 64)
			if err1 != nil || err2 != nil {
				continue
			}
			side := types.SideSell
			if t.Side == "Buy" {
				side = types.SideBuy
			}
			b.clock.mark("trade:" + t.Symbol)
			b.cb.trade(types.TradeEvent{
				Venue:  types.VenueBybit,
				Symbol: t.Symbol,
				Ts:     time.UnixMilli(t.TradeTime),
				Price:  price,
				Qty:    qty,
				Side:   side,
			})
		}
	}
}

// FetchFundingOI reads the latest open-interest point for one symbol.
func (b *Bybit) FetchFundingOI(ctx context.Context, sym string) (types.FundingOI, error) {
	out := types.FundingOI{Symbol: sym}

	resp, err := b.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"category":     "linear",
			"symbol":       sym,
			"intervalTime": "5min",
			"limit":        "1",
		}).
		Get(bybitRESTBase + "/v5/market/open-interest")
	if err != nil {
		return out, fmt.Errorf("bybit open interest: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return out, err
	}

	var body struct {
		RetCode int `json:"retCode"`
		Result  struct {
			List []struct {
				OpenInterest string `json:"openInterest"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return out, fmt.Errorf("bybit open interest decode: %w", err)
	}
	if body.RetCode != 0 {
		return out, &StatusError{Status: 400, URL: resp.Request.URL}
	}
	if len(body.Result.List) > 0 {
		if v, err := strconv.ParseFloat(body.Result.List[0].OpenInterest, 64); err == nil {
			out.OpenInterest = types.Float(v)
		}
	}
	return out, nil
}
