package venue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"scalp-engine/pkg/types"
)

const (
	binanceWSBase   = "wss://fstream.binance.com/stream"
	binanceRESTBase = "https://fapi.binance.com"

	// Binance rejects combined-stream URLs past a few dozen topics, so the
	// universe is split across connections.
	binanceMaxSymbolsPerConn = 30

	binancePingInterval = 3 * time.Minute
)

// Binance streams USDT-M futures depth, aggregated trades and mark prices
// over combined streams, and polls funding plus open interest over REST.
type Binance struct {
	symbols  []string
	sessions []*wsSession
	cb       Callbacks
	rest     *resty.Client
	clock    *streamClock
	logger   *slog.Logger
}

func NewBinance(symbols []string, cb Callbacks, logger *slog.Logger) *Binance {
	b := &Binance{
		symbols: symbols,
		cb:      cb,
		rest:    newRESTClient(rate.NewLimiter(rate.Limit(5), 5)),
		clock:   newStreamClock(),
		logger:  logger.With("component", "venue_binance"),
	}

	for start := 0; start < len(symbols); start += binanceMaxSymbolsPerConn {
		end := start + binanceMaxSymbolsPerConn
		if end > len(symbols) {
			end = len(symbols)
		}
		chunk := symbols[start:end]

		topics := make([]string, 0, len(chunk)*3)
		for _, sym := range chunk {
			lower := strings.ToLower(sym)
			topics = append(topics,
				lower+"@depth20@100ms",
				lower+"@aggTrade",
				lower+"@markPrice@1s",
			)
		}

		b.sessions = append(b.sessions, &wsSession{
			name:      fmt.Sprintf("binance[%d:%d]", start, end),
			url:       binanceWSBase + "?streams=" + strings.Join(topics, "/"),
			logger:    b.logger,
			onMessage: b.handleMessage,
			ping:      []byte("ping"),
			pingEvery: binancePingInterval,
		})
	}
	return b
}

func (b *Binance) Name() types.Venue { return types.VenueBinance }

func (b *Binance) Symbols() []string { return b.symbols }

func (b *Binance) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, s := range b.sessions {
		wg.Add(1)
		go func(s *wsSession) {
			defer wg.Done()
			s.run(ctx)
		}(s)
	}
	wg.Wait()
	return ctx.Err()
}

func (b *Binance) Close() error {
	for _, s := range b.sessions {
		s.close()
	}
	return nil
}

func (b *Binance) StalenessCheck(maxAge time.Duration) map[string]time.Duration {
	return b.clock.stale(maxAge)
}

type binanceDepth struct {
	Symbol string     `json:"s"`
	EvTime int64      `json:"E"`
	Bids   [][]string `json:"b"`
	Asks   [][]string `json:"a"`
}

type binanceAggTrade struct {
	Symbol     string `json:"s"`
	Price      string `json:"p"`
	Qty        string `json:"q"`
	TradeTime  int64  `json:"T"`
	BuyerMaker bool   `json:"m"`
}

type binanceMarkPrice struct {
	Symbol string `json:"s"`
	Price  string `json:"p"`
	EvTime int64  `json:"E"`
}

func (b *Binance) handleMessage(_ *wsSession, data []byte) {
	var frame struct {
		Stream string          `json:"stream"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &frame); err != nil || frame.Stream == "" {
		return
	}

	switch {
	case strings.Contains(frame.Stream, "@depth"):
		var d binanceDepth
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			b.logger.Debug("depth decode failed", "error", err)
			return
		}
		b.clock.mark("depth:" + d.Symbol)
		b.cb.book(types.BookEvent{
			Venue:  types.VenueBinance,
			Symbol: d.Symbol,
			Ts:     time.UnixMilli(d.EvTime),
			Bids:   parseStringLevels(d.Bids),
			Asks:   parseStringLevels(d.Asks),
		})

	case strings.Contains(frame.Stream, "@aggTrade"):
		var t binanceAggTrade
		if err := json.Unmarshal(frame.Data, &t); err != nil {
			b.logger.Debug("trade decode failed", "error", err)
			return
		}
		price, err1 := strconv.ParseFloat(t.Price, 64)
		qty, err2 := strconv.ParseFloat(t.Qty, 64)
		if err1 != nil || err2 != nil {
			return
		}
		side := types.SideBuy
		if t.BuyerMaker {
			side = types.SideSell
		}
		b.clock.mark("trade:" + t.Symbol)
		b.cb.trade(types.TradeEvent{
			Venue:  types.VenueBinance,
			Symbol: t.Symbol,
			Ts:     time.UnixMilli(t.TradeTime),
			Price:  price,
			Qty:    qty,
			Side:   side,
		})

	case strings.Contains(frame.Stream, "@markPrice"):
		var m binanceMarkPrice
		if err := json.Unmarshal(frame.Data, &m); err != nil {
			b.logger.Debug("mark decode failed", "error", err)
			return
		}
		price, err := strconv.ParseFloat(m.Price, 64)
		if err != nil || price <= 0 {
			return
		}
		b.clock.mark("mark:" + m.Symbol)
		b.cb.mark(types.MarkEvent{
			Venue:  types.VenueBinance,
			Symbol: m.Symbol,
			Ts:     time.UnixMilli(m.EvTime),
			Price:  price,
		})
	}
}

// FetchFundingOI reads the premium index (funding) and current open
// interest for one symbol.
func (b *Binance) FetchFundingOI(ctx context.Context, sym string) (types.FundingOI, error) {
	out := types.FundingOI{Symbol: sym}

	resp, err := b.rest.R().
		SetContext(ctx).
		SetQueryParam("symbol", sym).
		Get(binanceRESTBase + "/fapi/v1/premiumIndex")
	if err != nil {
		return out, fmt.Errorf("binance premium index: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return out, err
	}
	var premium struct {
		LastFundingRate string `json:"lastFundingRate"`
	}
	if err := json.Unmarshal(resp.Body(), &premium); err != nil {
		return out, fmt.Errorf("binance premium index decode: %w", err)
	}
	if v, err := strconv.ParseFloat(premium.LastFundingRate, 64); err == nil {
		out.FundingRate = types.Float(v)
	}

	resp, err = b.rest.R().
		SetContext(ctx).
		SetQueryParam("symbol", sym).
		Get(binanceRESTBase + "/fapi/v1/openInterest")
	if err != nil {
		return out, fmt.Errorf("binance open interest: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return out, err
	}
	var oi struct {
		OpenInterest string `json:"openInterest"`
	}
	if err := json.Unmarshal(resp.Body(), &oi); err != nil {
		return out, fmt.Errorf("binance open interest decode: %w", err)
	}
	if v, err := strconv.ParseFloat(oi.OpenInterest, 64); err == nil {
		out.OpenInterest = types.Float(v)
	}

	return out, nil
}

// parseStringLevels converts [["price","size"], ...] ladders.
func parseStringLevels(raw [][]string) []types.PriceLevel {
	levels := make([]types.PriceLevel, 0, len(raw))
	for _, lv := range raw {
		if len(lv) < 2 {
			continue
		}
		price, err1 := strconv.ParseFloat(lv[0], 64)
		size, err2 := strconv.ParseFloat(lv[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		levels = append(levels, types.PriceLevel{Price: price, Size: size})
	}
	return levels
}
