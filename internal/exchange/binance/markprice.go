package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantessence/discretionary-engine/internal/exchange"
)

const (
	// writeWait is the time allowed to write a control message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed between messages before the connection is
	// considered dead. Binance pings roughly every 3 minutes.
	pongWait = 5 * time.Minute

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second

	// maxReconnectAttempts bounds consecutive connections that delivered no
	// tick before the stream is reported as permanently down. A healthy
	// connection clears the streak, so a long-running stream survives any
	// number of spaced-out transient drops.
	maxReconnectAttempts = 8
)

// reconnectBackoff tracks consecutive barren connections. A connection that
// delivered at least one tick resets both the attempt budget and the delay.
type reconnectBackoff struct {
	attempts int
	delay    time.Duration
}

func newReconnectBackoff() *reconnectBackoff {
	return &reconnectBackoff{delay: reconnectDelay}
}

// next records one dropped connection and returns how long to wait before
// redialing; ok is false once consecutive barren drops exhaust the budget.
func (b *reconnectBackoff) next(delivered bool) (wait time.Duration, ok bool) {
	if delivered {
		b.attempts = 0
		b.delay = reconnectDelay
	}
	b.attempts++
	if b.attempts > maxReconnectAttempts {
		return 0, false
	}
	wait = b.delay
	b.delay *= 2
	if b.delay > maxReconnectDelay {
		b.delay = maxReconnectDelay
	}
	return wait, true
}

// markPriceEvent mirrors the fstream markPriceUpdate payload.
type markPriceEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	MarkPrice string `json:"p"`
}

// StreamMarkPrice connects to <wsHost>/ws/<symbol>@markPrice and forwards
// every tick onto out. It reconnects with exponential backoff on transient
// failures and returns a non-nil error only when the connection is
// permanently lost; on context cancellation it returns nil.
func (c *Client) StreamMarkPrice(ctx context.Context, symbol string, out chan<- exchange.PricePoint) error {
	url := fmt.Sprintf("%s/ws/%s@markPrice", c.wsHost, strings.ToLower(symbol))
	log := c.logger.With(slog.String("stream", "mark_price"), slog.String("symbol", symbol))

	backoff := newReconnectBackoff()
	for {
		delivered, err := c.streamOnce(ctx, url, out)
		if ctx.Err() != nil {
			return nil
		}
		wait, ok := backoff.next(delivered)
		if !ok {
			return fmt.Errorf("binance: mark price stream %s: giving up after %d consecutive dead connections: %w", symbol, backoff.attempts, err)
		}
		log.Warn("mark price stream dropped, reconnecting",
			slog.Int("attempt", backoff.attempts),
			slog.Duration("delay", wait),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// streamOnce runs a single connection lifetime: dial, read until failure. It
// reports whether any tick was delivered so the caller can tell a healthy
// connection that later dropped from one that never produced data.
func (c *Client) streamOnce(ctx context.Context, url string, out chan<- exchange.PricePoint) (delivered bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	// Binance sends pings; answer them and treat silence as a dead peer.
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	// Unblock the blocking read when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return delivered, ctx.Err()
			}
			return delivered, fmt.Errorf("read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var ev markPriceEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			// Unparseable frames are dropped, not fatal.
			continue
		}
		if ev.EventType != "markPriceUpdate" || ev.MarkPrice == "" {
			continue
		}
		price, err := strconv.ParseFloat(ev.MarkPrice, 64)
		if err != nil {
			continue
		}

		point := exchange.PricePoint{
			Time:  time.UnixMilli(ev.EventTime),
			Price: price,
		}
		select {
		case out <- point:
			delivered = true
		case <-ctx.Done():
			return delivered, ctx.Err()
		}
	}
}
