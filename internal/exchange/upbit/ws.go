package upbit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/JihoJu/one-bailey/internal/domain"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	handshakeTimeout = 15 * time.Second
)

// TickerHandler receives each normalized market event from the stream. It is
// an alias so the client satisfies the feed's stream contract directly.
type TickerHandler = func(domain.MarketEvent)

// WSClient streams live ticker data from the Upbit websocket endpoint. The
// subscription is a ticket frame followed by a typed request for the market
// codes; the server pushes ticker frames until the connection drops.
type WSClient struct {
	wsURL        string
	pingInterval time.Duration
	logger       *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	handlerMu sync.RWMutex
	onTicker  TickerHandler

	done chan struct{}
}

// NewWSClient creates a client for the given endpoint
// (wss://api.upbit.com/websocket/v1).
func NewWSClient(wsURL string, pingInterval time.Duration, logger *slog.Logger) *WSClient {
	return &WSClient{
		wsURL:        wsURL,
		pingInterval: pingInterval,
		logger:       logger.With(slog.String("component", "upbit_ws")),
		done:         make(chan struct{}),
	}
}

// OnTicker registers the handler invoked for each ticker frame.
func (w *WSClient) OnTicker(h TickerHandler) {
	w.handlerMu.Lock()
	w.onTicker = h
	w.handlerMu.Unlock()
}

// Connect dials the endpoint and starts the read and ping loops.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("upbit/ws: client closed")
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("upbit/ws: connect: %w", err)
	}
	w.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop(conn)
	go w.pingLoop(conn)
	return nil
}

// Subscribe requests ticker frames for the given market codes.
func (w *WSClient) Subscribe(symbols []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("upbit/ws: not connected")
	}

	frame := []any{
		map[string]string{"ticket": uuid.NewString()},
		map[string]any{"type": "ticker", "codes": symbols},
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("upbit/ws: marshal subscription: %w", err)
	}

	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := w.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("upbit/ws: subscribe: %w", err)
	}
	w.logger.Info("ticker subscribed", slog.Int("symbols", len(symbols)))
	return nil
}

// Done is closed when the connection's read loop exits, signalling the
// owner to reconnect.
func (w *WSClient) Done() <-chan struct{} { return w.done }

// Close tears down the connection.
func (w *WSClient) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if w.conn != nil {
		w.conn.Close()
	}
}

func (w *WSClient) readLoop(conn *websocket.Conn) {
	defer close(w.done)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			closed := w.closed
			w.mu.Unlock()
			if !closed {
				w.logger.Warn("read failed", slog.String("error", err.Error()))
			}
			return
		}

		var msg tickerMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != "ticker" {
			continue
		}

		w.handlerMu.RLock()
		h := w.onTicker
		w.handlerMu.RUnlock()
		if h != nil {
			h(domain.MarketEvent{
				Symbol:    msg.Code,
				Timestamp: time.UnixMilli(msg.TradeTimestamp).UTC(),
				Price:     msg.TradePrice,
				Volume:    msg.TradeVolume,
				Kind:      domain.EventTick,
			})
		}
	}
}

func (w *WSClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(w.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			// Serialized with Subscribe; the connection allows one writer.
			w.mu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			w.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
