// Package notify delivers signal and exit alerts to Telegram. With no token
// configured the notifier is a silent no-op, so the engine never needs to
// check whether alerting is enabled.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"scalp-engine/pkg/types"
)

const sendTimeout = 10 * time.Second

// Config mirrors config.TelegramConfig.
type Config struct {
	Token          string
	ChatID         int64
	SignalCooldown time.Duration
	ExitCooldown   time.Duration
}

// Notifier posts HTML messages to one chat with independent per-symbol
// cooldowns for entries and exits.
type Notifier struct {
	cfg    Config
	client *resty.Client
	logger *slog.Logger

	mu         sync.Mutex
	lastSignal map[string]time.Time
	lastExit   map[string]time.Time
	now        func() time.Time
}

func New(cfg Config, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:        cfg,
		client:     resty.New().SetTimeout(sendTimeout).SetRetryCount(2),
		logger:     logger.With("component", "notify"),
		lastSignal: make(map[string]time.Time),
		lastExit:   make(map[string]time.Time),
		now:        time.Now,
	}
}

// Enabled reports whether a token is configured.
func (n *Notifier) Enabled() bool { return n.cfg.Token != "" }

// NotifySignal announces a new short entry. Repeated alerts for the same
// symbol inside the cooldown are dropped.
func (n *Notifier) NotifySignal(ctx context.Context, s types.Signal) {
	if !n.Enabled() {
		return
	}
	if !n.pass(n.lastSignal, s.Symbol, n.cfg.SignalCooldown) {
		return
	}
	msg := fmt.Sprintf(
		"\U0001F534 <b>SHORT %s</b>\nscore: <b>%.0f</b>\nentry: <code>%s</code>\n%s",
		s.Symbol, s.Score, fmtPrice(s.EntryPrice), s.Reason,
	)
	n.send(ctx, msg)
}

// NotifyExit announces a closed position.
func (n *Notifier) NotifyExit(ctx context.Context, sym, reason string, exitPrice, pnlPct float64) {
	if !n.Enabled() {
		return
	}
	if !n.pass(n.lastExit, sym, n.cfg.ExitCooldown) {
		return
	}
	msg := fmt.Sprintf(
		"✅ <b>EXIT %s</b> (%s)\nprice: <code>%s</code>\npnl: <b>%+.2f%%</b>",
		sym, reason, fmtPrice(exitPrice), pnlPct,
	)
	n.send(ctx, msg)
}

func (n *Notifier) pass(table map[string]time.Time, sym string, cooldown time.Duration) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if last, ok := table[sym]; ok && n.now().Sub(last) < cooldown {
		return false
	}
	table[sym] = n.now()
	return true
}

func (n *Notifier) send(ctx context.Context, text string) {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.cfg.Token)
	resp, err := n.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"chat_id":    fmt.Sprintf("%d", n.cfg.ChatID),
			"text":       text,
			"parse_mode": "HTML",
		}).
		Post(url)
	if err != nil {
		n.logger.Warn("telegram send failed", "error", err)
		return
	}
	if !resp.IsSuccess() {
		n.logger.Warn("telegram send rejected", "status", resp.StatusCode())
	}
}

// fmtPrice trims trailing zeros while keeping enough precision for
// sub-cent perpetuals.
func fmtPrice(p float64) string {
	return decimal.NewFromFloat(p).Round(8).String()
}
