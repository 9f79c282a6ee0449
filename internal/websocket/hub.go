package websocket

import (
	"bytes"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/bot"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/exchange"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Пул JSON буферов: Broadcast вызывается на каждый тик цены,
// без пула аллокация на каждое сообщение
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Hub управляет всеми активными WebSocket соединениями
//
// Назначение:
// Центральный менеджер для broadcast сообщений всем подключенным клиентам.
// Обеспечивает real-time обновления панели без необходимости polling.
//
// Функции:
// - Регистрация новых WebSocket клиентов
// - Отмена регистрации отключенных клиентов
// - Broadcast сообщений всем активным клиентам
// - Отсечение медленных клиентов (полный буфер отправки)
// - Потокобезопасная работа с клиентами (sync.RWMutex)
//
// Типы сообщений:
// - orderUpdate: переход статуса ордера
// - positionUpdate: изменение позиции
// - statsUpdate: обновление дневной статистики
// - ticker: текущая цена рынка
// - notification: новое уведомление
//
// Broadcast не блокирует: при переполненном канале сообщение
// отбрасывается и счетчик dropped растет. Поток обновлений живет
// своей жизнью, торговый конвейер от него не зависит.
//
// Использование:
// 1. Создать hub: hub := NewHub(logger)
// 2. Запустить в горутине: go hub.Run()
// 3. Отправлять сообщения: hub.BroadcastOrderUpdate(order)
// 4. Остановить: hub.Stop()
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Broadcast канал для отправки сообщений всем клиентам
	broadcast chan []byte

	// Регистрация нового клиента
	register chan *Client

	// Отмена регистрации клиента
	unregister chan *Client

	// Сигнал остановки главного цикла
	quit chan struct{}

	// Счетчик отброшенных сообщений (переполнение канала)
	dropped atomic.Int64

	logger *zap.Logger

	// Mutex для потокобезопасного доступа к clients
	mu sync.RWMutex
}

// NewHub создает новый Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		logger:     logger.Named("ws"),
	}
}

// Run запускает главный цикл Hub
//
// Должен запускаться в отдельной горутине: go hub.Run()
// Обрабатывает регистрацию, отмену регистрации и broadcast.
// Завершается после Stop, закрывая каналы всех клиентов.
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", zap.Int("total", total))

		case message := <-h.broadcast:
			// Копируем список клиентов под коротким RLock, отправляем
			// без блокировки: register/unregister не ждут рассылку
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					// Клиент не успевает читать, снимаем с рассылки
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				total := len(h.clients)
				h.mu.Unlock()
				h.logger.Warn("removed slow clients",
					zap.Int("removed", len(toRemove)),
					zap.Int("total", total))
			}
		}
	}
}

// Stop останавливает главный цикл и отключает всех клиентов.
// Вызывается один раз при завершении процесса.
func (h *Hub) Stop() {
	close(h.quit)
}

// Broadcast сериализует сообщение и отправляет всем клиентам.
// Не блокирует: при переполненном канале сообщение отбрасывается.
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		h.logger.Error("marshal broadcast message", zap.Error(err))
		jsonBufferPool.Put(buf)
		return
	}

	// Убираем trailing newline от Encode
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	// Копия обязательна: буфер вернется в пул
	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	h.BroadcastRaw(msgCopy)
}

// BroadcastRaw отправляет уже сериализованное сообщение.
// Вызывающий не должен изменять data после передачи.
func (h *Hub) BroadcastRaw(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		h.dropped.Add(1)
	}
}

// ============ Типизированные рассылки торгового конвейера ============

// BroadcastOrderUpdate отправляет переход статуса ордера
func (h *Hub) BroadcastOrderUpdate(order *models.Order) {
	h.Broadcast(NewOrderUpdateMessage(order))
}

// BroadcastPositionUpdate отправляет изменение позиции
func (h *Hub) BroadcastPositionUpdate(position *models.Position) {
	h.Broadcast(NewPositionUpdateMessage(position))
}

// BroadcastStatsUpdate отправляет обновление дневной статистики
func (h *Hub) BroadcastStatsUpdate(stats *models.DailyStats) {
	h.Broadcast(NewStatsUpdateMessage(stats))
}

// BroadcastTicker отправляет текущую цену рынка
func (h *Hub) BroadcastTicker(ticker *exchange.Ticker) {
	h.Broadcast(NewTickerMessage(ticker))
}

// BroadcastNotification отправляет новое уведомление
func (h *Hub) BroadcastNotification(notification *models.Notification) {
	h.Broadcast(NewNotificationMessage(notification))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages возвращает количество отброшенных сообщений
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}

// Hub закрывает потребность движка в рассылке живых обновлений
var _ bot.Broadcaster = (*Hub)(nil)
