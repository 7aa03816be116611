package venue

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalp-engine/pkg/types"
)

// recorder captures normalized events for payload-decoding tests.
type recorder struct {
	books  []types.BookEvent
	trades []types.TradeEvent
	marks  []types.MarkEvent
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnBook:  func(e types.BookEvent) { r.books = append(r.books, e) },
		OnTrade: func(e types.TradeEvent) { r.trades = append(r.trades, e) },
		OnMark:  func(e types.MarkEvent) { r.marks = append(r.marks, e) },
	}
}

func TestBinanceDepthMessage(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	b := NewBinance([]string{"PEPEUSDT"}, rec.callbacks(), slog.Default())

	raw := `{"stream":"pepeusdt@depth20@100ms","data":{"e":"depthUpdate","E":1700000000123,"s":"PEPEUSDT","b":[["0.00001230","100000"],["0.00001220","50000"]],"a":[["0.00001240","80000"]]}}`
	b.handleMessage(nil, []byte(raw))

	require.Len(t, rec.books, 1)
	e := rec.books[0]
	assert.Equal(t, types.VenueBinance, e.Venue)
	assert.Equal(t, "PEPEUSDT", e.Symbol)
	assert.Equal(t, time.UnixMilli(1700000000123), e.Ts)
	require.Len(t, e.Bids, 2)
	assert.InDelta(t, 0.0000123, e.Bids[0].Price, 1e-12)
	assert.InDelta(t, 100000, e.Bids[0].Size, 1e-9)
	require.Len(t, e.Asks, 1)
}

func TestBinanceAggTradeSides(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	b := NewBinance([]string{"PEPEUSDT"}, rec.callbacks(), slog.Default())

	// Buyer-is-maker means the taker sold.
	sell := `{"stream":"pepeusdt@aggTrade","data":{"e":"aggTrade","s":"PEPEUSDT","p":"0.0000123","q":"5000","T":1700000000500,"m":true}}`
	buy := `{"stream":"pepeusdt@aggTrade","data":{"e":"aggTrade","s":"PEPEUSDT","p":"0.0000124","q":"1000","T":1700000000600,"m":false}}`
	b.handleMessage(nil, []byte(sell))
	b.handleMessage(nil, []byte(buy))

	require.Len(t, rec.trades, 2)
	assert.Equal(t, types.SideSell, rec.trades[0].Side)
	assert.Equal(t, types.SideBuy, rec.trades[1].Side)
	assert.InDelta(t, 5000, rec.trades[0].Qty, 1e-9)
}

func TestBinanceMarkPriceMessage(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	b := NewBinance([]string{"PEPEUSDT"}, rec.callbacks(), slog.Default())

	raw := `{"stream":"pepeusdt@markPrice@1s","data":{"e":"markPriceUpdate","s":"PEPEUSDT","p":"0.00001235","E":1700000001000}}`
	b.handleMessage(nil, []byte(raw))

	require.Len(t, rec.marks, 1)
	assert.InDelta(t, 0.00001235, rec.marks[0].Price, 1e-12)
}

func TestBinanceConnectionChunking(t *testing.T) {
	t.Parallel()
	symbols := make([]string, 65)
	for i := range symbols {
		symbols[i] = "PEPEUSDT"
	}
	b := NewBinance(symbols, Callbacks{}, slog.Default())
	assert.Len(t, b.sessions, 3, "65 symbols need three connections at 30 per conn")
}

func TestBinanceGarbageIgnored(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	b := NewBinance([]string{"PEPEUSDT"}, rec.callbacks(), slog.Default())

	b.handleMessage(nil, []byte(`not json`))
	b.handleMessage(nil, []byte(`{"result":null,"id":1}`))
	b.handleMessage(nil, []byte(`{"stream":"pepeusdt@aggTrade","data":{"p":"bogus","q":"1"}}`))

	assert.Empty(t, rec.books)
	assert.Empty(t, rec.trades)
}

func TestBybitSnapshotMessage(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	b := NewBybit([]string{"PEPEUSDT"}, rec.callbacks(), slog.Default())

	raw := `{"topic":"orderbook.50.PEPEUSDT","type":"snapshot","ts":1700000000123,"data":{"s":"PEPEUSDT","b":[["0.0000123","100000"]],"a":[["0.0000124","80000"]]}}`
	b.handleMessage(nil, []byte(raw))

	require.Len(t, rec.books, 1)
	assert.Equal(t, types.VenueBybit, rec.books[0].Venue)
	assert.InDelta(t, 0.0000124, rec.books[0].Asks[0].Price, 1e-12)
}

func TestBybitOneSidedDeltaSkipped(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	b := NewBybit([]string{"PEPEUSDT"}, rec.callbacks(), slog.Default())

	raw := `{"topic":"orderbook.50.PEPEUSDT","type":"delta","ts":1700000000123,"data":{"s":"PEPEUSDT","b":[["0.0000123","100000"]],"a":[]}}`
	b.handleMessage(nil, []byte(raw))
	assert.Empty(t, rec.books)
}

func TestBybitTradeBatch(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	b := NewBybit([]string{"PEPEUSDT"}, rec.callbacks(), slog.Default())

	raw := `{"topic":"publicTrade.PEPEUSDT","type":"snapshot","ts":1700000000123,"data":[{"T":1700000000100,"s":"PEPEUSDT","S":"Sell","v":"5000","p":"0.0000123"},{"T":1700000000110,"s":"PEPEUSDT","S":"Buy","v":"1000","p":"0.0000124"}]}`
	b.handleMessage(nil, []byte(raw))

	require.Len(t, rec.trades, 2)
	assert.Equal(t, types.SideSell, rec.trades[0].Side)
	assert.Equal(t, types.SideBuy, rec.trades[1].Side)
}

func TestMEXCDepthMessage(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	m := NewMEXC([]string{"PEPEUSDT"}, rec.callbacks(), slog.Default())

	raw := `{"channel":"push.depth","symbol":"PEPE_USDT","ts":1700000000123,"data":{"bids":[[0.0000123,100000,3]],"asks":[[0.0000124,80000,2]]}}`
	m.handleMessage(nil, []byte(raw))

	require.Len(t, rec.books, 1)
	e := rec.books[0]
	assert.Equal(t, "PEPE_USDT", e.Symbol, "wire symbol passed through")
	assert.InDelta(t, 0.0000123, e.Bids[0].Price, 1e-12)
	assert.InDelta(t, 100000, e.Bids[0].Size, 1e-9)
}

func TestMEXCDealSides(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	m := NewMEXC([]string{"PEPEUSDT"}, rec.callbacks(), slog.Default())

	buy := `{"channel":"push.deal","symbol":"PEPE_USDT","ts":1700000000123,"data":{"p":0.0000123,"v":5000,"T":1,"t":1700000000100}}`
	sell := `{"channel":"push.deal","symbol":"PEPE_USDT","ts":1700000000123,"data":{"p":0.0000122,"v":2000,"T":2,"t":1700000000200}}`
	m.handleMessage(nil, []byte(buy))
	m.handleMessage(nil, []byte(sell))

	require.Len(t, rec.trades, 2)
	assert.Equal(t, types.SideBuy, rec.trades[0].Side)
	assert.Equal(t, types.SideSell, rec.trades[1].Side)
}

func TestMEXCTickerMessage(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	m := NewMEXC([]string{"PEPEUSDT"}, rec.callbacks(), slog.Default())

	raw := `{"channel":"push.ticker","symbol":"PEPE_USDT","ts":1700000000123,"data":{"lastPrice":0.0000125,"timestamp":1700000000120}}`
	m.handleMessage(nil, []byte(raw))

	require.Len(t, rec.marks, 1)
	assert.InDelta(t, 0.0000125, rec.marks[0].Price, 1e-12)
	assert.Equal(t, time.UnixMilli(1700000000120), rec.marks[0].Ts)
}

func TestMEXCWireSymbol(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "PEPE_USDT", mexcWireSymbol("PEPEUSDT"))
	assert.Equal(t, "PEPE_USDT", mexcWireSymbol("PEPE_USDT"))
}

func TestLBankDepthMessage(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	l := NewLBank([]string{"pepe_usdt"}, rec.callbacks(), slog.Default())

	ts := time.Now().In(lbankZone).Format("2006-01-02T15:04:05.000")
	raw := `{"type":"depth","pair":"pepe_usdt","TS":"` + ts + `","depth":{"bids":[["0.0000123","100000"]],"asks":[["0.0000124","80000"]]}}`
	l.handleMessage(nil, []byte(raw))

	require.Len(t, rec.books, 1)
	assert.Equal(t, types.VenueLBank, rec.books[0].Venue)
	assert.Equal(t, "pepe_usdt", rec.books[0].Symbol)
	assert.InDelta(t, 0.0000123, rec.books[0].Bids[0].Price, 1e-12)
}

func TestLBankTradeMessage(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	l := NewLBank([]string{"pepe_usdt"}, rec.callbacks(), slog.Default())

	ts := time.Now().In(lbankZone).Format("2006-01-02T15:04:05.000")
	raw := `{"type":"trade","pair":"pepe_usdt","TS":"` + ts + `","trade":{"price":0.0000123,"volume":5000,"direction":"sell"}}`
	l.handleMessage(nil, []byte(raw))

	require.Len(t, rec.trades, 1)
	assert.Equal(t, types.SideSell, rec.trades[0].Side)
	assert.InDelta(t, 5000, rec.trades[0].Qty, 1e-9)
	assert.WithinDuration(t, time.Now(), rec.trades[0].Ts, 2*time.Second)
}

// A TS string carrying the exchange's current wall clock must parse to the
// current instant on any host, or the hub's clock-skew bound rejects every
// event from the venue.
func TestLBankTimeIsBeijingWallClock(t *testing.T) {
	t.Parallel()
	now := time.Now()
	raw := now.In(lbankZone).Format("2006-01-02T15:04:05.000")

	got := lbankTime(raw)
	skew := now.Sub(got)
	if skew < 0 {
		skew = -skew
	}
	assert.Less(t, skew, 2*time.Second)

	assert.WithinDuration(t, time.Now(), lbankTime(""), 2*time.Second)
	assert.WithinDuration(t, time.Now(), lbankTime("not a timestamp"), 2*time.Second)
}

func TestStatusError(t *testing.T) {
	t.Parallel()
	err := &StatusError{Status: 404, URL: "https://example.com"}
	assert.True(t, IsClientError(err))
	assert.False(t, IsClientError(&StatusError{Status: 503}))
	assert.False(t, IsClientError(assert.AnError))
}

func TestStreamClockStaleness(t *testing.T) {
	t.Parallel()
	c := newStreamClock()
	now := time.Now()
	c.now = func() time.Time { return now }

	c.mark("depth:PEPEUSDT")
	now = now.Add(30 * time.Second)
	assert.Empty(t, c.stale(time.Minute))

	now = now.Add(45 * time.Second)
	stale := c.stale(time.Minute)
	require.Len(t, stale, 1)
	assert.Equal(t, 75*time.Second, stale["depth:PEPEUSDT"])
}
