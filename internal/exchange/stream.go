package exchange

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StreamConfig - параметры переподключения потока котировок
type StreamConfig struct {
	// Начальная задержка перед переподключением
	InitialDelay time.Duration
	// Максимальная задержка (после exponential backoff)
	MaxDelay time.Duration
	// Максимальное количество попыток (0 = бесконечно)
	MaxRetries int
	// Таймаут подключения
	ConnectTimeout time.Duration
	// Интервал ping для проверки соединения
	PingInterval time.Duration
	// Таймаут ожидания записи ping
	PongTimeout time.Duration
}

// DefaultStreamConfig возвращает конфигурацию по умолчанию: 2s, 4s, 8s, 16s
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		InitialDelay:   2 * time.Second,
		MaxDelay:       16 * time.Second,
		MaxRetries:     10,
		ConnectTimeout: 10 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
	}
}

// StreamState - состояние WebSocket соединения
type StreamState int32

const (
	StreamDisconnected StreamState = iota
	StreamConnecting
	StreamConnected
	StreamReconnecting
	StreamClosed
)

func (s StreamState) String() string {
	switch s {
	case StreamDisconnected:
		return "disconnected"
	case StreamConnecting:
		return "connecting"
	case StreamConnected:
		return "connected"
	case StreamReconnecting:
		return "reconnecting"
	case StreamClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TickerStream держит WebSocket-подписку на тикеры Upbit.
//
// Поток котировок дополняет REST-опрос: окно волатильности получает цены
// с задержкой в миллисекунды вместо интервала опроса. При разрыве поток
// переподключается с exponential backoff и заново подписывается на рынки;
// после исчерпания попыток ядро продолжает жить на REST-опросе.
type TickerStream struct {
	url     string
	markets []string
	config  StreamConfig

	conn   *websocket.Conn
	connMu sync.RWMutex

	// atomic StreamState
	state int32
	// atomic счётчик попыток переподключения
	retryCount int32

	onTicker func(*Ticker)
	logger   *zap.Logger

	closeChan chan struct{}
}

// NewTickerStream создаёт поток котировок для заданных рынков.
// wsURL == "" означает боевой адрес Upbit.
func NewTickerStream(wsURL string, markets []string, config StreamConfig, onTicker func(*Ticker), logger *zap.Logger) *TickerStream {
	if wsURL == "" {
		wsURL = upbitWSURL
	}
	return &TickerStream{
		url:       wsURL,
		markets:   markets,
		config:    config,
		onTicker:  onTicker,
		logger:    logger.Named("ticker-stream"),
		closeChan: make(chan struct{}),
	}
}

// State возвращает текущее состояние соединения
func (s *TickerStream) State() StreamState {
	return StreamState(atomic.LoadInt32(&s.state))
}

// IsConnected проверяет, установлено ли соединение
func (s *TickerStream) IsConnected() bool {
	return s.State() == StreamConnected
}

// RetryCount возвращает текущее количество попыток переподключения
func (s *TickerStream) RetryCount() int {
	return int(atomic.LoadInt32(&s.retryCount))
}

// Connect устанавливает соединение и подписывается на тикеры
func (s *TickerStream) Connect() error {
	select {
	case <-s.closeChan:
		return fmt.Errorf("stream is closed")
	default:
	}

	atomic.StoreInt32(&s.state, int32(StreamConnecting))

	if err := s.dial(); err != nil {
		atomic.StoreInt32(&s.state, int32(StreamDisconnected))
		return err
	}

	atomic.StoreInt32(&s.state, int32(StreamConnected))
	atomic.StoreInt32(&s.retryCount, 0)

	go s.readPump()
	go s.pingPump()

	s.logger.Info("connected", zap.Strings("markets", s.markets))
	return nil
}

// dial подключается и отправляет кадр подписки Upbit:
// [{ticket},{type:ticker,codes},{format:DEFAULT}]
func (s *TickerStream) dial() error {
	dialer := websocket.Dialer{
		HandshakeTimeout: s.config.ConnectTimeout,
	}

	conn, resp, err := dialer.Dial(s.url, nil)
	if err != nil {
		return fmt.Errorf("dial error: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	subscribe := []interface{}{
		map[string]string{"ticket": uuid.NewString()},
		map[string]interface{}{"type": "ticker", "codes": s.markets},
		map[string]string{"format": "DEFAULT"},
	}
	if err := conn.WriteJSON(subscribe); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe error: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	return nil
}

// readPump читает кадры котировок.
// Upbit шлёт данные бинарными кадрами с JSON внутри.
func (s *TickerStream) readPump() {
	for {
		select {
		case <-s.closeChan:
			return
		default:
		}

		s.connMu.RLock()
		conn := s.conn
		s.connMu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			s.handleDisconnect(err)
			return
		}

		s.handleMessage(message)
	}
}

// handleMessage разбирает один кадр тикера и передаёт его подписчику
func (s *TickerStream) handleMessage(message []byte) {
	var frame struct {
		Type             string          `json:"type"`
		Code             string          `json:"code"`
		TradePrice       decimal.Decimal `json:"trade_price"`
		HighPrice        decimal.Decimal `json:"high_price"`
		LowPrice         decimal.Decimal `json:"low_price"`
		PrevClosingPrice decimal.Decimal `json:"prev_closing_price"`
		SignedChangeRate decimal.Decimal `json:"signed_change_rate"`
		AccTradeVolume   decimal.Decimal `json:"acc_trade_volume_24h"`
		Timestamp        int64           `json:"timestamp"`
	}

	if err := json.Unmarshal(message, &frame); err != nil {
		return
	}
	if frame.Type != "ticker" || frame.Code == "" {
		return
	}

	if s.onTicker != nil {
		s.onTicker(&Ticker{
			Market:     frame.Code,
			TradePrice: frame.TradePrice,
			HighPrice:  frame.HighPrice,
			LowPrice:   frame.LowPrice,
			PrevClose:  frame.PrevClosingPrice,
			ChangeRate: frame.SignedChangeRate,
			Volume24h:  frame.AccTradeVolume,
			Timestamp:  time.UnixMilli(frame.Timestamp),
		})
	}
}

// pingPump проверяет живость соединения
func (s *TickerStream) pingPump() {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closeChan:
			return
		case <-ticker.C:
			s.connMu.RLock()
			conn := s.conn
			s.connMu.RUnlock()

			if conn == nil || s.State() != StreamConnected {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(s.config.PongTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Warn("ping error", zap.Error(err))
				s.handleDisconnect(err)
				return
			}
		}
	}
}

// handleDisconnect обрабатывает разрыв соединения
func (s *TickerStream) handleDisconnect(err error) {
	select {
	case <-s.closeChan:
		return
	default:
	}

	// Избегаем повторной обработки из readPump и pingPump
	state := s.State()
	if state == StreamReconnecting || state == StreamClosed {
		return
	}

	atomic.StoreInt32(&s.state, int32(StreamReconnecting))

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	if err != nil {
		s.logger.Warn("disconnected", zap.Error(err))
	}

	go s.reconnectLoop()
}

// reconnectLoop выполняет переподключение с exponential backoff
func (s *TickerStream) reconnectLoop() {
	delay := s.config.InitialDelay

	for {
		select {
		case <-s.closeChan:
			return
		default:
		}

		retryCount := atomic.AddInt32(&s.retryCount, 1)

		if s.config.MaxRetries > 0 && int(retryCount) > s.config.MaxRetries {
			s.logger.Error("max reconnect attempts reached",
				zap.Int("max_retries", s.config.MaxRetries))
			atomic.StoreInt32(&s.state, int32(StreamDisconnected))
			return
		}

		s.logger.Info("reconnecting",
			zap.Duration("delay", delay),
			zap.Int32("attempt", retryCount))

		select {
		case <-s.closeChan:
			return
		case <-time.After(delay):
		}

		if err := s.dial(); err != nil {
			s.logger.Warn("reconnect failed", zap.Error(err))

			delay = delay * 2
			if delay > s.config.MaxDelay {
				delay = s.config.MaxDelay
			}
			continue
		}

		atomic.StoreInt32(&s.state, int32(StreamConnected))
		atomic.StoreInt32(&s.retryCount, 0)

		go s.readPump()
		go s.pingPump()

		s.logger.Info("reconnected")
		return
	}
}

// Close закрывает соединение и останавливает переподключение
func (s *TickerStream) Close() error {
	select {
	case <-s.closeChan:
		return nil
	default:
		close(s.closeChan)
	}

	atomic.StoreInt32(&s.state, int32(StreamClosed))

	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}

	return nil
}
