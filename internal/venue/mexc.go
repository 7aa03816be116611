package venue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"scalp-engine/pkg/types"
)

const (
	mexcWSURL    = "wss://contract.mexc.com/edge"
	mexcRESTBase = "https://contract.mexc.com"

	mexcPingInterval = 15 * time.Second
)

// MEXC streams contract depth, deals and tickers over one connection and
// polls funding over REST. The wire uses BASE_QUOTE symbols; events carry
// them as received and the hub canonicalizes.
type MEXC struct {
	symbols []string
	session *wsSession
	cb      Callbacks
	rest    *resty.Client
	clock   *streamClock
	logger  *slog.Logger
}

func NewMEXC(symbols []string, cb Callbacks, logger *slog.Logger) *MEXC {
	m := &MEXC{
		symbols: symbols,
		cb:      cb,
		rest:    newRESTClient(rate.NewLimiter(rate.Limit(5), 5)),
		clock:   newStreamClock(),
		logger:  logger.With("component", "venue_mexc"),
	}
	m.session = &wsSession{
		name:      "mexc",
		url:       mexcWSURL,
		logger:    m.logger,
		onConnect: m.subscribe,
		onMessage: m.handleMessage,
		ping:      []byte(`{"method":"ping"}`),
		pingEvery: mexcPingInterval,
	}
	return m
}

func (m *MEXC) Name() types.Venue { return types.VenueMEXC }

func (m *MEXC) Symbols() []string { return m.symbols }

func (m *MEXC) Run(ctx context.Context) error { return m.session.run(ctx) }

func (m *MEXC) Close() error { return m.session.close() }

func (m *MEXC) StalenessCheck(maxAge time.Duration) map[string]time.Duration {
	return m.clock.stale(maxAge)
}

// mexcWireSymbol converts BTCUSDT to BTC_USDT.
func mexcWireSymbol(sym string) string {
	if strings.HasSuffix(sym, "USDT") && !strings.Contains(sym, "_") {
		return sym[:len(sym)-4] + "_USDT"
	}
	return sym
}

func (m *MEXC) subscribe(s *wsSession) error {
	for _, sym := range m.symbols {
		wire := mexcWireSymbol(sym)
		for _, method := range []string{"sub.depth", "sub.deal", "sub.ticker"} {
			msg := map[string]any{
				"method": method,
				"param":  map[string]string{"symbol": wire},
			}
			if err := s.writeJSON(msg); err != nil {
				return err
			}
		}
	}
	return nil
}

type mexcDepth struct {
	Bids [][]float64 `json:"bids"`
	Asks [][]float64 `json:"asks"`
}

type mexcDeal struct {
	Price float64 `json:"p"`
	Qty   float64 `json:"v"`
	// 1 = taker buy, 2 = taker sell.
	Dir       int   `json:"T"`
	TradeTime int64 `json:"t"`
}

type mexcTicker struct {
	LastPrice float64 `json:"lastPrice"`
	Timestamp int64   `json:"timestamp"`
}

func (m *MEXC) handleMessage(_ *wsSession, data []byte) {
	var frame struct {
		Channel string          `json:"channel"`
		Symbol  string          `json:"symbol"`
		Ts      int64           `json:"ts"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &frame); err != nil || frame.Channel == "" {
		return
	}

	switch frame.Channel {
	case "push.depth":
		var d mexcDepth
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			m.logger.Debug("depth decode failed", "error", err)
			return
		}
		m.clock.mark("depth:" + frame.Symbol)
		m.cb.book(types.BookEvent{
			Venue:  types.VenueMEXC,
			Symbol: frame.Symbol,
			Ts:     time.UnixMilli(frame.Ts),
			Bids:   parseFloatLevels(d.Bids),
			Asks:   parseFloatLevels(d.Asks),
		})

	case "push.deal":
		var d mexcDeal
		if err := json.Unmarshal(frame.Data, &d); err != nil {
			m.logger.Debug("deal decode failed", "error", err)
			return
		}
		if d.Price <= 0 {
			return
		}
		side := types.SideBuy
		if d.Dir == 2 {
			side = types.SideSell
		}
		m.clock.mark("trade:" + frame.Symbol)
		m.cb.trade(types.TradeEvent{
			Venue:  types.VenueMEXC,
			Symbol: frame.Symbol,
			Ts:     time.UnixMilli(d.TradeTime),
			Price:  d.Price,
			Qty:    d.Qty,
			Side:   side,
		})

	case "push.ticker":
		var t mexcTicker
		if err := json.Unmarshal(frame.Data, &t); err != nil {
			m.logger.Debug("ticker decode failed", "error", err)
			return
		}
		if t.LastPrice <= 0 {
			return
		}
		ts := frame.Ts
		if t.Timestamp > 0 {
			ts = t.Timestamp
		}
		m.clock.mark("ticker:" + frame.Symbol)
		m.cb.mark(types.MarkEvent{
			Venue:  types.VenueMEXC,
			Symbol: frame.Symbol,
			Ts:     time.UnixMilli(ts),
			Price:  t.LastPrice,
		})
	}
}

// FetchFundingOI reads the current funding rate for one symbol. MEXC's
// public contract API exposes no usable open-interest endpoint here.
func (m *MEXC) FetchFundingOI(ctx context.Context, sym string) (types.FundingOI, error) {
	out := types.FundingOI{Symbol: sym}

	resp, err := m.rest.R().
		SetContext(ctx).
		Get(mexcRESTBase + "/api/v1/contract/funding_rate/" + mexcWireSymbol(sym))
	if err != nil {
		return out, fmt.Errorf("mexc funding rate: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return out, err
	}

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			FundingRate float64 `json:"fundingRate"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return out, fmt.Errorf("mexc funding rate decode: %w", err)
	}
	if !body.Success {
		return out, &StatusError{Status: 400, URL: resp.Request.URL}
	}
	out.FundingRate = types.Float(body.Data.FundingRate)
	return out, nil
}

// parseFloatLevels converts [[price, size, ...], ...] ladders.
func parseFloatLevels(raw [][]float64) []types.PriceLevel {
	levels := make([]types.PriceLevel, 0, len(raw))
	for _, lv := range raw {
		if len(lv) < 2 {
			continue
		}
		levels = append(levels, types.PriceLevel{Price: lv[0], Size: lv[1]})
	}
	return levels
}
