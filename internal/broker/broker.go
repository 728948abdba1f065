// Package broker adapts bracket orders from internal/execution onto a real
// futures broker's REST API. A Paper implementation is provided for
// symmetry and tests; live trading uses Live, which rate-limits order
// submission with the same continuously-refilling token-bucket design the
// teacher uses for the CLOB API.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"orderflow-engine/pkg/types"
)

// Broker routes bracket orders and closes to a live or simulated backend.
type Broker interface {
	PlaceBracketOrder(ctx context.Context, order *types.BracketOrder) error
	ClosePosition(ctx context.Context, position *types.Position, exitPrice string) error
}

// TokenBucket is a continuously-refilling rate limiter, identical in shape
// to the teacher's exchange.TokenBucket.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64
	lastTime time.Time
}

// NewTokenBucket creates a rate limiter with the given capacity and refill rate.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{tokens: capacity, capacity: capacity, rate: ratePerSecond, lastTime: time.Now()}
}

// Wait blocks until a token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}

		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Paper is a no-op Broker used when SessionMode is paper: fills are
// already simulated inside internal/execution, so this just logs.
type Paper struct {
	logger *slog.Logger
}

// NewPaper creates a logging-only paper broker.
func NewPaper(logger *slog.Logger) *Paper {
	return &Paper{logger: logger.With("component", "broker_paper")}
}

// PlaceBracketOrder logs the order; no network call is made.
func (p *Paper) PlaceBracketOrder(ctx context.Context, order *types.BracketOrder) error {
	p.logger.Info("paper order placed", "bracket_id", order.BracketID, "symbol", order.Symbol, "side", order.Side, "size", order.Size)
	return nil
}

// ClosePosition logs the close; no network call is made.
func (p *Paper) ClosePosition(ctx context.Context, position *types.Position, exitPrice string) error {
	p.logger.Info("paper position closed", "position_id", position.PositionID, "exit_price", exitPrice)
	return nil
}

// Live routes bracket orders to a real futures broker's REST API.
type Live struct {
	http   *resty.Client
	limit  *TokenBucket
	logger *slog.Logger
}

// NewLive creates a Live broker client against baseURL, authenticated with
// apiKey as a bearer token.
func NewLive(baseURL, apiKey string, logger *slog.Logger) *Live {
	httpClient := resty.New().
		SetBaseURL(baseURL).
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
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json")

	return &Live{
		http:   httpClient,
		limit:  NewTokenBucket(50, 10),
		logger: logger.With("component", "broker_live"),
	}
}

type orderRequest struct {
	BracketID   string `json:"bracket_id"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Size        int    `json:"size"`
	EntryPrice  string `json:"entry_price"`
	StopPrice   string `json:"stop_price"`
	TargetPrice string `json:"target_price"`
}

// PlaceBracketOrder submits a bracket (entry+stop+target) order to the broker.
func (b *Live) PlaceBracketOrder(ctx context.Context, order *types.BracketOrder) error {
	if err := b.limit.Wait(ctx); err != nil {
		return err
	}

	req := orderRequest{
		BracketID:   order.BracketID,
		Symbol:      order.Symbol,
		Side:        string(order.Side),
		Size:        order.Size,
		EntryPrice:  order.EntryPrice.String(),
		StopPrice:   order.StopPrice.String(),
		TargetPrice: order.TargetPrice.String(),
	}

	resp, err := b.http.R().SetContext(ctx).SetBody(req).Post("/orders/bracket")
	if err != nil {
		return fmt.Errorf("place bracket order: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("place bracket order: status %d: %s", resp.StatusCode(), resp.String())
	}

	b.logger.Info("bracket order placed", "bracket_id", order.BracketID)
	return nil
}

// ClosePosition submits a market-close instruction for an open position.
func (b *Live) ClosePosition(ctx context.Context, position *types.Position, exitPrice string) error {
	if err := b.limit.Wait(ctx); err != nil {
		return err
	}

	resp, err := b.http.R().SetContext(ctx).
		SetBody(map[string]string{"position_id": position.PositionID, "exit_price": exitPrice}).
		Post("/positions/close")
	if err != nil {
		return fmt.Errorf("close position: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("close position: status %d: %s", resp.StatusCode(), resp.String())
	}

	b.logger.Info("position closed", "position_id", position.PositionID)
	return nil
}
