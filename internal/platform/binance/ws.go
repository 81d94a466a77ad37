// Package binance is a WebSocket client for the Binance public trade stream,
// used as the fast reference feed.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"ghostarb/internal/domain"
)

const (
	handshakeTimeout = 15 * time.Second

	// readWait bounds silence on the stream; Binance sends pings well within
	// this window on an otherwise quiet symbol.
	readWait = 90 * time.Second

	writeWait = 10 * time.Second

	maxReconnectDelay = 60 * time.Second

	// A connection that held this long counts as healthy: the next drop
	// starts backoff from the base delay again.
	stableConnection = 30 * time.Second
)

// TradeHandler receives each executed trade's price and exchange timestamp.
type TradeHandler func(price float64, ts time.Time)

// WSClient streams trades for one symbol and hands them to a TradeHandler.
// It reconnects with exponential backoff until the context is cancelled.
type WSClient struct {
	baseURL        string
	symbol         string
	reconnectDelay time.Duration
	handler        TradeHandler
	onReconnect    func()
	logger         *slog.Logger
}

// NewWSClient creates a client for baseURL (e.g. "wss://stream.binance.com:9443/ws")
// and a lowercase symbol like "btcusdt".
func NewWSClient(baseURL, symbol string, reconnectDelay time.Duration, handler TradeHandler, logger *slog.Logger) *WSClient {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	return &WSClient{
		baseURL:        baseURL,
		symbol:         strings.ToLower(symbol),
		reconnectDelay: reconnectDelay,
		handler:        handler,
		logger:         logger.With(slog.String("component", "binance_ws")),
	}
}

// OnReconnect registers a callback invoked before each reconnect attempt.
func (w *WSClient) OnReconnect(fn func()) {
	w.onReconnect = fn
}

// Run connects and consumes the trade stream until ctx is cancelled. Each
// dropped connection is retried with exponential backoff.
func (w *WSClient) Run(ctx context.Context) error {
	var delay time.Duration
	for {
		started := time.Now()
		err := w.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		delay = backoffAfter(delay, w.reconnectDelay, time.Since(started))

		w.logger.Warn("stream dropped, reconnecting",
			slog.Any("error", err),
			slog.Duration("delay", delay))
		if w.onReconnect != nil {
			w.onReconnect()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// backoffAfter returns the wait before the next dial. The first drop and any
// drop after a stable connection wait the base delay; repeated quick failures
// double the wait up to the cap.
func backoffAfter(previous, base, uptime time.Duration) time.Duration {
	if previous == 0 || uptime >= stableConnection {
		return base
	}
	next := previous * 2
	if next > maxReconnectDelay {
		next = maxReconnectDelay
	}
	return next
}

// consume runs a single connection until it fails.
func (w *WSClient) consume(ctx context.Context) error {
	url := fmt.Sprintf("%s/%s@trade", strings.TrimRight(w.baseURL, "/"), w.symbol)

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("binance: connect %s: %w", url, err)
	}
	defer conn.Close()

	w.logger.Info("stream connected", slog.String("symbol", w.symbol))

	// Binance pings the client; answer with pongs and treat any ping as
	// proof of life.
	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(readWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	// Close the socket when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("binance: read: %w", domain.ErrWSDisconnect)
		}
		conn.SetReadDeadline(time.Now().Add(readWait))

		var ev TradeEvent
		if err := json.Unmarshal(data, &ev); err != nil || ev.EventType != "trade" {
			continue
		}
		price, err := ev.PriceFloat()
		if err != nil || price <= 0 {
			continue
		}
		w.handler(price, ev.Time())
	}
}
