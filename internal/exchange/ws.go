package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"binance-spot-bot/internal/domain"
)

// DefaultStreamURL is the public Binance spot market-data stream host.
const DefaultStreamURL = "wss://stream.binance.com:9443/ws"

// KlineEvent is one kline update from the stream. Final is true when the
// candle has closed; intermediate updates carry the forming candle.
type KlineEvent struct {
	Symbol string
	Kline  domain.Kline
	Final  bool
}

// StreamConfig configures KlineStream behavior.
type StreamConfig struct {
	// URL is the stream host; defaults to DefaultStreamURL.
	URL string
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the reconnect backoff.
	MaxReconnectDelay time.Duration
	// ReadTimeout is the per-message read deadline. Binance sends a ping
	// every 3 minutes; the deadline must exceed that.
	ReadTimeout time.Duration
	// WriteTimeout bounds control-frame writes.
	WriteTimeout time.Duration
}

// DefaultStreamConfig returns the default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		URL:               DefaultStreamURL,
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       4 * time.Minute,
		WriteTimeout:      10 * time.Second,
	}
}

// KlineStream consumes a single symbol's kline stream over WebSocket,
// reconnecting with exponential backoff on read failures.
type KlineStream struct {
	symbol   string
	interval string
	config   StreamConfig

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	events chan KlineEvent
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewKlineStream connects to the kline stream for symbol/interval and
// starts the read loop. Events are delivered on Events until Close.
func NewKlineStream(ctx context.Context, symbol, interval string, config *StreamConfig) (*KlineStream, error) {
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
		if cfg.URL == "" {
			cfg.URL = DefaultStreamURL
		}
	}

	s := &KlineStream{
		symbol:   strings.ToUpper(symbol),
		interval: interval,
		config:   cfg,
		events:   make(chan KlineEvent, 1024),
		done:     make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.readLoop()

	return s, nil
}

// Events returns the event channel. Closed by Close.
func (s *KlineStream) Events() <-chan KlineEvent {
	return s.events
}

func (s *KlineStream) streamURL() string {
	return fmt.Sprintf("%s/%s@kline_%s", s.config.URL, strings.ToLower(s.symbol), s.interval)
}

func (s *KlineStream) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	conn.SetPingHandler(func(appData string) error {
		s.connMu.Lock()
		defer s.connMu.Unlock()
		if s.conn == nil {
			return nil
		}
		s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
		return s.conn.WriteMessage(websocket.PongMessage, []byte(appData))
	})

	s.conn = conn
	return nil
}

// Close terminates the stream and closes the event channel.
func (s *KlineStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	close(s.events)
	return nil
}

func (s *KlineStream) readLoop() {
	defer s.wg.Done()

	reconnectDelay := s.config.ReconnectDelay

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			if !s.reconnect(&reconnectDelay) {
				return
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.Close()
				s.conn = nil
			}
			s.connMu.Unlock()
			continue
		}

		reconnectDelay = s.config.ReconnectDelay
		s.handleMessage(message)
	}
}

// reconnect waits the backoff delay and dials again, growing the delay
// on failure. Returns false when the stream is shutting down.
func (s *KlineStream) reconnect(delay *time.Duration) bool {
	select {
	case <-s.done:
		return false
	case <-time.After(*delay):
	}

	*delay *= 2
	if *delay > s.config.MaxReconnectDelay {
		*delay = s.config.MaxReconnectDelay
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.connect(ctx)
	return true
}

type wsKlineMessage struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime  int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		Final     bool   `json:"x"`
	} `json:"k"`
}

func (s *KlineStream) handleMessage(message []byte) {
	var msg wsKlineMessage
	if err := json.Unmarshal(message, &msg); err != nil || msg.EventType != "kline" {
		return
	}

	k := domain.Kline{
		OpenTimeMs:  msg.Kline.OpenTime,
		CloseTimeMs: msg.Kline.CloseTime,
	}
	fields := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{msg.Kline.Open, &k.Open},
		{msg.Kline.High, &k.High},
		{msg.Kline.Low, &k.Low},
		{msg.Kline.Close, &k.Close},
		{msg.Kline.Volume, &k.Volume},
	}
	for _, f := range fields {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return
		}
		*f.dst = v
	}

	select {
	case s.events <- KlineEvent{Symbol: msg.Symbol, Kline: k, Final: msg.Kline.Final}:
	case <-s.done:
	}
}
