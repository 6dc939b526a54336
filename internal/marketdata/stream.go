package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/bastion/backend/pkg/logger"
)

const (
	reconnectDelay    = 5 * time.Second
	maxReconnectDelay = 5 * time.Minute

	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

// Stream subscribes to the quotes websocket and feeds the price cache
// ⭐ SSOT: 웹소켓 시세 구독 관리는 이 클라이언트에서만
type Stream struct {
	url    string
	cache  *PriceCache
	logger *logger.Logger

	conn   *websocket.Conn
	connMu sync.RWMutex

	symbols   map[string]bool
	symbolsMu sync.RWMutex

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewStream(url string, cache *PriceCache, log *logger.Logger) *Stream {
	return &Stream{
		url:     url,
		cache:   cache,
		logger:  log,
		symbols: make(map[string]bool),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// streamMessage is the wire format of one tick
type streamMessage struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Volume    int64   `json:"volume"`
	Timestamp int64   `json:"ts"` // unix millis
}

// subscribeRequest is sent to (un)subscribe symbols
type subscribeRequest struct {
	Action  string   `json:"action"` // "subscribe" | "unsubscribe"
	Symbols []string `json:"symbols"`
}

// Start connects and begins the read/ping loops
func (s *Stream) Start(ctx context.Context) error {
	s.logger.WithField("url", s.url).Info("Starting quote stream")

	if err := s.connect(ctx); err != nil {
		return fmt.Errorf("initial connection failed: %w", err)
	}

	go s.readLoop(ctx)
	go s.pingLoop()

	return nil
}

// Stop closes the connection and waits for the read loop to exit
func (s *Stream) Stop() {
	s.logger.Info("Stopping quote stream")

	close(s.stopCh)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.connMu.Unlock()

	<-s.doneCh
}

// Subscribe adds symbols to the live subscription
func (s *Stream) Subscribe(symbols ...string) error {
	s.symbolsMu.Lock()
	for _, sym := range symbols {
		s.symbols[sym] = true
	}
	s.symbolsMu.Unlock()

	return s.send(subscribeRequest{Action: "subscribe", Symbols: symbols})
}

// Unsubscribe drops symbols from the live subscription
func (s *Stream) Unsubscribe(symbols ...string) error {
	s.symbolsMu.Lock()
	for _, sym := range symbols {
		delete(s.symbols, sym)
	}
	s.symbolsMu.Unlock()

	return s.send(subscribeRequest{Action: "unsubscribe", Symbols: symbols})
}

func (s *Stream) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	s.conn = conn
	return nil
}

func (s *Stream) send(v interface{}) error {
	s.connMu.RLock()
	defer s.connMu.RUnlock()

	if s.conn == nil {
		return fmt.Errorf("stream not connected")
	}

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// readLoop consumes ticks, reconnecting with backoff on failure
func (s *Stream) readLoop(ctx context.Context) {
	defer close(s.doneCh)

	delay := reconnectDelay

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		s.connMu.RLock()
		conn := s.conn
		s.connMu.RUnlock()

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
			}

			s.logger.WithError(err).Warn("Quote stream read failed, reconnecting")

			select {
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			if delay *= 2; delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}

			if err := s.connect(ctx); err != nil {
				s.logger.WithError(err).Warn("Quote stream reconnect failed")
				continue
			}
			delay = reconnectDelay
			s.resubscribe()
			continue
		}

		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.WithError(err).Debug("Skipping malformed stream message")
			continue
		}

		s.cache.Update(&PriceTick{
			Symbol:    msg.Symbol,
			Price:     msg.Price,
			Volume:    msg.Volume,
			Timestamp: time.UnixMilli(msg.Timestamp),
			Source:    "stream",
		})
	}
}

// resubscribe replays the symbol set after a reconnect
func (s *Stream) resubscribe() {
	s.symbolsMu.RLock()
	symbols := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		symbols = append(symbols, sym)
	}
	s.symbolsMu.RUnlock()

	if len(symbols) == 0 {
		return
	}
	if err := s.send(subscribeRequest{Action: "subscribe", Symbols: symbols}); err != nil {
		s.logger.WithError(err).Warn("Resubscribe after reconnect failed")
	}
}

// pingLoop keeps the connection alive
func (s *Stream) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.connMu.RLock()
			conn := s.conn
			s.connMu.RUnlock()

			if conn == nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.WithError(err).Debug("Ping failed")
			}
		}
	}
}
