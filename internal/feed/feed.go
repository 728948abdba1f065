// Package feed adapts market data sources into a single stream of
// types.Tick for the aggregator. Two implementations are provided: Live,
// a WebSocket feed with auto-reconnect, and Historical, a paced replay of
// recorded ticks for backtesting.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"orderflow-engine/pkg/types"
)

// Feed is anything that can produce a stream of ticks for one symbol.
type Feed interface {
	// Run connects and streams until ctx is cancelled or the feed is exhausted.
	Run(ctx context.Context) error
	// Ticks returns the channel ticks are delivered on.
	Ticks() <-chan types.Tick
	Close() error
}

const (
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
	pingInterval     = 50 * time.Second
	tickBufferSize   = 1024
)

// wireTick is the on-the-wire shape of a trade print from the data vendor.
type wireTick struct {
	Symbol    string          `json:"symbol"`
	Timestamp string          `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
	Volume    int64           `json:"volume"`
	Side      string          `json:"side"` // "BID" or "ASK"
}

// Live is a WebSocket feed for one symbol. It auto-reconnects with
// exponential backoff (1s up to 30s) and re-subscribes on reconnect,
// matching the teacher's market/user WebSocket client.
type Live struct {
	url    string
	symbol string
	logger *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	ticks chan types.Tick
}

// NewLive creates a live WebSocket feed for symbol against wsURL.
func NewLive(wsURL, symbol string, logger *slog.Logger) *Live {
	return &Live{
		url:    wsURL,
		symbol: symbol,
		logger: logger.With("component", "feed_live", "symbol", symbol),
		ticks:  make(chan types.Tick, tickBufferSize),
	}
}

// Ticks returns the channel ticks are delivered on.
func (f *Live) Ticks() <-chan types.Tick { return f.ticks }

// Run connects and maintains the WebSocket connection with auto-reconnect.
// Blocks until ctx is cancelled.
func (f *Live) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("feed disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

func (f *Live) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := f.writeJSON(map[string]any{"op": "subscribe", "symbol": f.symbol}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	f.logger.Info("feed connected")

	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go f.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		f.dispatch(msg)
	}
}

func (f *Live) dispatch(data []byte) {
	var wt wireTick
	if err := json.Unmarshal(data, &wt); err != nil {
		f.logger.Debug("ignoring unparseable message", "error", err)
		return
	}

	ts, err := time.Parse(time.RFC3339Nano, wt.Timestamp)
	if err != nil {
		f.logger.Warn("ignoring tick with bad timestamp", "raw", wt.Timestamp)
		return
	}

	side := types.Ask
	if wt.Side == string(types.Bid) {
		side = types.Bid
	}

	tick := types.Tick{Timestamp: ts, Symbol: wt.Symbol, Price: wt.Price, Volume: wt.Volume, Side: side}
	select {
	case f.ticks <- tick:
	default:
		f.logger.Warn("tick channel full, dropping tick")
	}
}

func (f *Live) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeMessage(websocket.PingMessage, nil); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *Live) writeJSON(v any) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("feed not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}

func (f *Live) writeMessage(msgType int, data []byte) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("feed not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteMessage(msgType, data)
}

// Close gracefully closes the connection.
func (f *Live) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

// Historical replays a fixed slice of ticks, optionally pacing delivery to
// the recorded inter-tick gaps for realistic backtest timing.
type Historical struct {
	ticks []types.Tick
	pace  bool
	out   chan types.Tick
	done  chan struct{}
}

// NewHistorical creates a replay feed over ticks. If pace is true, Run
// sleeps between ticks for the recorded gap between their timestamps
// (capped at 1 second, so a multi-hour gap in the data doesn't stall a
// backtest); if false, ticks are delivered as fast as the channel drains.
func NewHistorical(ticks []types.Tick, pace bool) *Historical {
	// Unbuffered, so Run's final send completes only once the consumer has
	// taken the last tick, which is what Done promises.
	return &Historical{ticks: ticks, pace: pace, out: make(chan types.Tick), done: make(chan struct{})}
}

// Ticks returns the channel ticks are delivered on.
func (h *Historical) Ticks() <-chan types.Tick { return h.out }

// Done is closed once Run has delivered every recorded tick (or ctx was
// cancelled first), letting a caller know the replay is finished and it is
// safe to stop the engine without racing the tick channel.
func (h *Historical) Done() <-chan struct{} { return h.done }

// Run streams the recorded ticks in order, then closes the channel.
func (h *Historical) Run(ctx context.Context) error {
	defer close(h.done)
	defer close(h.out)

	for i, tick := range h.ticks {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if h.pace && i > 0 {
			gap := tick.Timestamp.Sub(h.ticks[i-1].Timestamp)
			if gap > time.Second {
				gap = time.Second
			}
			if gap > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(gap):
				}
			}
		}

		select {
		case h.out <- tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close is a no-op for a historical feed; it has no connection to release.
func (h *Historical) Close() error { return nil }
