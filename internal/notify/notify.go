// Package notify sends trading alerts and end-of-day digests to a Discord
// webhook, mirroring the REST-client idiom used against the CLOB API:
// a resty client with a timeout and retry, wrapped in a thin typed surface.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"orderflow-engine/pkg/types"
)

// Level is the severity/category of an alert, controlling the embed color
// and emoji prefix.
type Level string

const (
	LevelInfo              Level = "info"
	LevelWarning           Level = "warning"
	LevelError             Level = "error"
	LevelSuccess           Level = "success"
	LevelTradeOpen         Level = "trade_open"
	LevelTradeClose        Level = "trade_close"
	LevelSessionHalt       Level = "session_halt"
	LevelConnectionLost    Level = "connection_lost"
	LevelConnectionRestored Level = "connection_restored"
	LevelDailyDigest       Level = "daily_digest"
)

var colors = map[Level]int{
	LevelInfo:               0x3498DB,
	LevelWarning:            0xF39C12,
	LevelError:              0xE74C3C,
	LevelSuccess:            0x2ECC71,
	LevelTradeOpen:          0x9B59B6,
	LevelTradeClose:         0x2ECC71,
	LevelSessionHalt:        0xE74C3C,
	LevelConnectionLost:     0xE74C3C,
	LevelConnectionRestored: 0x2ECC71,
	LevelDailyDigest:        0x3498DB,
}

var emojis = map[Level]string{
	LevelInfo:               "ℹ️",
	LevelWarning:            "⚠️",
	LevelError:              "❌",
	LevelSuccess:            "✅",
	LevelTradeOpen:          "📈",
	LevelTradeClose:         "✅",
	LevelSessionHalt:        "🛑",
	LevelConnectionLost:     "🔴",
	LevelConnectionRestored: "🟢",
	LevelDailyDigest:        "📊",
}

// Config tunes which alert categories actually fire a webhook call.
type Config struct {
	WebhookURL       string
	BotName          string
	AlertOnTrades    bool // noisy; off by default
	AlertOnConnection bool
	AlertOnLimits    bool
	AlertOnErrors    bool
}

// DefaultConfig matches the original's defaults: connection/limit/error
// alerts on, per-trade alerts off to avoid Discord spam.
func DefaultConfig(webhookURL string) Config {
	return Config{
		WebhookURL:        webhookURL,
		BotName:           "orderflow-engine",
		AlertOnTrades:     false,
		AlertOnConnection: true,
		AlertOnLimits:     true,
		AlertOnErrors:     true,
	}
}

// field is one Discord embed field.
type field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Color       int     `json:"color"`
	Timestamp   string  `json:"timestamp"`
	Fields      []field `json:"fields,omitempty"`
}

type webhookPayload struct {
	Username string  `json:"username"`
	Embeds   []embed `json:"embeds"`
}

// Notifier posts alerts to a Discord incoming webhook.
type Notifier struct {
	http    *resty.Client
	cfg     Config
	logger  *slog.Logger
	enabled bool
}

// New creates a Notifier. A blank WebhookURL disables sending (Alert* methods
// return false without a network call), matching the original's graceful degradation when no
// webhook is configured.
func New(cfg Config, logger *slog.Logger) *Notifier {
	httpClient := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Notifier{
		http:    httpClient,
		cfg:     cfg,
		logger:  logger.With("component", "notify"),
		enabled: cfg.WebhookURL != "",
	}
}

func (n *Notifier) send(ctx context.Context, title, message string, level Level, fields []field) bool {
	if !n.enabled {
		n.logger.Debug("notifications disabled, skipping send")
		return false
	}

	e := embed{
		Title:       fmt.Sprintf("%s %s", emojis[level], title),
		Description: message,
		Color:       colors[level],
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Fields:      fields,
	}
	payload := webhookPayload{Username: n.cfg.BotName, Embeds: []embed{e}}

	resp, err := n.http.R().SetContext(ctx).SetBody(payload).Post(n.cfg.WebhookURL)
	if err != nil {
		n.logger.Error("failed to send discord notification", "error", err)
		return false
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		n.logger.Warn("discord rate limited", "retry_after", resp.Header().Get("Retry-After"))
		return false
	}
	if resp.StatusCode() != http.StatusNoContent && resp.StatusCode() != http.StatusOK {
		n.logger.Error("discord webhook error", "status", resp.StatusCode(), "body", resp.String())
		return false
	}
	return true
}

// AlertDailyLossLimit notifies that the session was halted on the daily
// loss limit.
func (n *Notifier) AlertDailyLossLimit(ctx context.Context, pnl decimal.Decimal) bool {
	if !n.cfg.AlertOnLimits {
		return false
	}
	return n.send(ctx, "Session Halted: Daily Loss Limit", fmt.Sprintf("Trading stopped. Daily P&L: **$%s**", pnl.StringFixed(2)), LevelSessionHalt, nil)
}

// AlertDailyProfitTarget notifies that the session hit its daily profit target.
func (n *Notifier) AlertDailyProfitTarget(ctx context.Context, pnl decimal.Decimal) bool {
	if !n.cfg.AlertOnLimits {
		return false
	}
	return n.send(ctx, "Session Complete: Profit Target Hit", fmt.Sprintf("Daily profit target reached! P&L: **$%s**", pnl.StringFixed(2)), LevelSuccess, nil)
}

// AlertConnectionLost notifies that the data feed connection dropped.
func (n *Notifier) AlertConnectionLost(ctx context.Context, details string) bool {
	if !n.cfg.AlertOnConnection {
		return false
	}
	return n.send(ctx, "Data Feed Disconnected", fmt.Sprintf("Connection lost at %s. %s", time.Now().Format("15:04:05 MST"), details), LevelConnectionLost, nil)
}

// AlertConnectionRestored notifies that the data feed connection recovered.
func (n *Notifier) AlertConnectionRestored(ctx context.Context, details string) bool {
	if !n.cfg.AlertOnConnection {
		return false
	}
	return n.send(ctx, "Data Feed Reconnected", fmt.Sprintf("Connection restored at %s. %s", time.Now().Format("15:04:05 MST"), details), LevelConnectionRestored, nil)
}

// AlertSystemError notifies of an unrecoverable system error.
func (n *Notifier) AlertSystemError(ctx context.Context, errMsg, details string) bool {
	if !n.cfg.AlertOnErrors {
		return false
	}
	return n.send(ctx, "System Error", fmt.Sprintf("**Error:** %s\n%s", errMsg, details), LevelError, nil)
}

// AlertTradeOpened notifies that a position was opened, if trade-level
// alerting is enabled.
func (n *Notifier) AlertTradeOpened(ctx context.Context, pos types.Position) bool {
	if !n.cfg.AlertOnTrades {
		return false
	}
	emoji := "📉"
	if pos.Side == types.Long {
		emoji = "📈"
	}
	return n.send(ctx, "Position Opened", fmt.Sprintf("%s **%s** %d %s @ **%s**", emoji, pos.Side, pos.Size, pos.Symbol, pos.EntryPrice.StringFixed(2)), LevelTradeOpen, nil)
}

// AlertTradeClosed notifies that a position was closed, if trade-level
// alerting is enabled.
func (n *Notifier) AlertTradeClosed(ctx context.Context, trade types.Trade) bool {
	if !n.cfg.AlertOnTrades {
		return false
	}
	emoji := "❌"
	sign := "-"
	pnl := trade.PnL
	if pnl.IsNegative() {
		pnl = pnl.Abs()
	} else {
		emoji = "✅"
		sign = "+"
	}
	message := fmt.Sprintf("**%s** %d %s\nEntry: %s → Exit: %s\nP&L: **%s$%s** (%s)",
		trade.Side, trade.Size, trade.Symbol, trade.EntryPrice.StringFixed(2), trade.ExitPrice.StringFixed(2),
		sign, pnl.StringFixed(2), trade.ExitReason)
	return n.send(ctx, "Position Closed", fmt.Sprintf("%s %s", emoji, message), LevelTradeClose, nil)
}

// Digest is the end-of-session summary sent once at the scheduled digest time.
type Digest struct {
	Date               string
	SessionStart       string
	SessionEnd         string
	Status             string
	StartingBalance    decimal.Decimal
	EndingBalance      decimal.Decimal
	DayPnL             decimal.Decimal
	Trades             int
	Wins               int
	Losses             int
	WinRate            float64
	RegimeBreakdown    map[types.Regime]int
	CurrentPosition    string
}

// AlertDailyDigest sends the end-of-session summary.
func (n *Notifier) AlertDailyDigest(ctx context.Context, d Digest) bool {
	regimeText := ""
	for regime, count := range d.RegimeBreakdown {
		regimeText += fmt.Sprintf("• %s: %d bars\n", regime, count)
	}
	if regimeText == "" {
		regimeText = "No regime data"
	}

	fields := []field{
		{Name: "Starting Balance", Value: "$" + d.StartingBalance.StringFixed(2), Inline: true},
		{Name: "Ending Balance", Value: "$" + d.EndingBalance.StringFixed(2), Inline: true},
		{Name: "Day P&L", Value: "$" + d.DayPnL.StringFixed(2), Inline: true},
		{Name: "Trades", Value: fmt.Sprintf("%d", d.Trades), Inline: true},
		{Name: "Wins/Losses", Value: fmt.Sprintf("%d/%d", d.Wins, d.Losses), Inline: true},
		{Name: "Win Rate", Value: fmt.Sprintf("%.1f%%", d.WinRate), Inline: true},
		{Name: "Regime Breakdown", Value: regimeText, Inline: false},
		{Name: "Current Position", Value: d.CurrentPosition, Inline: true},
	}

	message := fmt.Sprintf("**Session:** %s - %s\n**Status:** %s", d.SessionStart, d.SessionEnd, d.Status)
	return n.send(ctx, fmt.Sprintf("Daily Trading Summary - %s", d.Date), message, LevelDailyDigest, fields)
}
