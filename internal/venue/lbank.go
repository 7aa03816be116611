package venue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"scalp-engine/pkg/types"
)

const (
	lbankWSURL    = "wss://www.lbkex.net/ws/V2/"
	lbankRESTBase = "https://api.lbkex.com"
)

// LBank streams depth and trades over one connection and polls funding over
// REST. Wire symbols are lowercase base_quote. LBank pings from the server
// side; the session answers with pongs instead of sending its own.
type LBank struct {
	symbols []string
	session *wsSession
	cb      Callbacks
	rest    *resty.Client
	clock   *streamClock
	logger  *slog.Logger
}

func NewLBank(symbols []string, cb Callbacks, logger *slog.Logger) *LBank {
	l := &LBank{
		symbols: symbols,
		cb:      cb,
		rest:    newRESTClient(rate.NewLimiter(rate.Limit(5), 5)),
		clock:   newStreamClock(),
		logger:  logger.With("component", "venue_lbank"),
	}
	l.session = &wsSession{
		name:      "lbank",
		url:       lbankWSURL,
		logger:    l.logger,
		onConnect: l.subscribe,
		onMessage: l.handleMessage,
	}
	return l
}

func (l *LBank) Name() types.Venue { return types.VenueLBank }

func (l *LBank) Symbols() []string { return l.symbols }

func (l *LBank) Run(ctx context.Context) error { return l.session.run(ctx) }

func (l *LBank) Close() error { return l.session.close() }

func (l *LBank) StalenessCheck(maxAge time.Duration) map[string]time.Duration {
	return l.clock.stale(maxAge)
}

func (l *LBank) subscribe(s *wsSession) error {
	for _, pair := range l.symbols {
		depth := map[string]string{
			"action":    "subscribe",
			"subscribe": "depth",
			"depth":     "20",
			"pair":      pair,
		}
		if err := s.writeJSON(depth); err != nil {
			return err
		}
		trade := map[string]string{
			"action":    "subscribe",
			"subscribe": "trade",
			"pair":      pair,
		}
		if err := s.writeJSON(trade); err != nil {
			return err
		}
	}
	return nil
}

type lbankDepth struct {
	Bids [][]any `json:"bids"`
	Asks [][]any `json:"asks"`
}

type lbankTrade struct {
	Price     json.Number `json:"price"`
	Volume    json.Number `json:"volume"`
	Direction string      `json:"direction"`
}

func (l *LBank) handleMessage(s *wsSession, data []byte) {
	var frame struct {
		Type  string          `json:"type"`
		Pair  string          `json:"pair"`
		TS    string          `json:"TS"`
		Ping  string          `json:"ping"`
		Depth json.RawMessage `json:"depth"`
		Trade json.RawMessage `json:"trade"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return
	}

	if frame.Ping != "" {
		pong, _ := json.Marshal(map[string]string{"action": "pong", "pong": frame.Ping})
		if err := s.write(websocket.TextMessage, pong); err != nil {
			l.logger.Warn("pong failed", "error", err)
		}
		return
	}

	ts := lbankTime(frame.TS)

	switch frame.Type {
	case "depth":
		var d lbankDepth
		if err := json.Unmarshal(frame.Depth, &d); err != nil {
			l.logger.Debug("depth decode failed", "error", err)
			return
		}
		l.clock.mark("depth:" + frame.Pair)
		l.cb.book(types.BookEvent{
			Venue:  types.VenueLBank,
			Symbol: frame.Pair,
			Ts:     ts,
			Bids:   parseAnyLevels(d.Bids),
			Asks:   parseAnyLevels(d.Asks),
		})

	case "trade":
		var t lbankTrade
		if err := json.Unmarshal(frame.Trade, &t); err != nil {
			l.logger.Debug("trade decode failed", "error", err)
			return
		}
		price, err1 := t.Price.Float64()
		qty, err2 := t.Volume.Float64()
		if err1 != nil || err2 != nil || price <= 0 {
			return
		}
		side := types.SideBuy
		if t.Direction == "sell" {
			side = types.SideSell
		}
		l.clock.mark("trade:" + frame.Pair)
		l.cb.trade(types.TradeEvent{
			Venue:  types.VenueLBank,
			Symbol: frame.Pair,
			Ts:     ts,
			Price:  price,
			Qty:    qty,
			Side:   side,
		})
	}
}

// lbankZone is the exchange's wall clock. TS strings carry no offset and
// are always Beijing time, whatever the host's zone is.
var lbankZone = time.FixedZone("UTC+8", 8*60*60)

// lbankTime parses the "2006-01-02T15:04:05.000" Beijing wall-clock
// timestamps; falls back to now on any parse failure.
func lbankTime(raw string) time.Time {
	if raw == "" {
		return time.Now()
	}
	if ts, err := time.ParseInLocation("2006-01-02T15:04:05.000", raw, lbankZone); err == nil {
		return ts
	}
	return time.Now()
}

// FetchFundingOI reads the current funding rate for one pair.
func (l *LBank) FetchFundingOI(ctx context.Context, pair string) (types.FundingOI, error) {
	out := types.FundingOI{Symbol: pair}

	resp, err := l.rest.R().
		SetContext(ctx).
		SetQueryParam("symbol", pair).
		Get(lbankRESTBase + "/v2/supplement/funding_rate.do")
	if err != nil {
		return out, fmt.Errorf("lbank funding rate: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		return out, err
	}

	var body struct {
		Result string `json:"result"`
		Data   struct {
			FundingRate string `json:"fundingRate"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return out, fmt.Errorf("lbank funding rate decode: %w", err)
	}
	if body.Result != "true" {
		return out, &StatusError{Status: 400, URL: resp.Request.URL}
	}
	if v, err := strconv.ParseFloat(body.Data.FundingRate, 64); err == nil {
		out.FundingRate = types.Float(v)
	}
	return out, nil
}

// parseAnyLevels converts ladders whose entries arrive as numbers or
// number-strings depending on the endpoint.
func parseAnyLevels(raw [][]any) []types.PriceLevel {
	levels := make([]types.PriceLevel, 0, len(raw))
	for _, lv := range raw {
		if len(lv) < 2 {
			continue
		}
		price, ok1 := anyFloat(lv[0])
		size, ok2 := anyFloat(lv[1])
		if !ok1 || !ok2 {
			continue
		}
		levels = append(levels, types.PriceLevel{Price: price, Size: size})
	}
	return levels
}

func anyFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
