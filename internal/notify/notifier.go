package notify

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/bot"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/repository"
)

// Размер очереди уведомлений по умолчанию. Всплеск больше буфера
// роняет хвост, торговый конвейер не ждет доставку
const defaultQueueSize = 256

// Broadcaster рассылает уведомление подключенным WebSocket клиентам
type Broadcaster interface {
	BroadcastNotification(n *models.Notification)
}

// Dispatcher доставляет уведомления операторам
//
// Назначение:
// Единая точка fire-and-forget доставки уведомлений движка:
// история в БД, Discord webhook, live-рассылка в WebSocket hub.
// Сбой любого канала логируется и проглатывается, конвейер
// исполнения ордеров о доставке не знает.
//
// Архитектура:
// Notify кладет уведомление в буферизованный канал без блокировки,
// при переполнении сообщение отбрасывается с метрикой. Горутина
// диспетчера разбирает очередь и развозит по каналам доставки.
//
// Использование:
// 1. Создать: dispatcher := notify.NewDispatcher(repo, discord, hub, logger)
// 2. Запустить: dispatcher.Start()
// 3. Отдать движку как bot.Notifier
// 4. Остановить: dispatcher.Stop() (добирает хвост очереди)
type Dispatcher struct {
	repo        *repository.NotificationRepository
	discord     *DiscordClient
	broadcaster Broadcaster
	logger      *zap.Logger

	queue   chan *models.Notification
	quit    chan struct{}
	done    chan struct{}
	dropped atomic.Int64
}

// NewDispatcher создает диспетчер уведомлений.
// Любой из каналов доставки может быть nil и будет пропущен.
// bufferSize <= 0 включает размер очереди по умолчанию.
func NewDispatcher(
	repo *repository.NotificationRepository,
	discord *DiscordClient,
	broadcaster Broadcaster,
	bufferSize int,
	logger *zap.Logger,
) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = defaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		repo:        repo,
		discord:     discord,
		broadcaster: broadcaster,
		logger:      logger.Named("notify"),
		queue:       make(chan *models.Notification, bufferSize),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start запускает горутину доставки
func (d *Dispatcher) Start() {
	go d.run()
}

// Stop останавливает диспетчер, добирая накопившиеся уведомления.
// Вызывается один раз при завершении процесса.
func (d *Dispatcher) Stop() {
	close(d.quit)
	<-d.done
}

// Notify ставит уведомление в очередь доставки. Не блокирует:
// при переполненной очереди уведомление отбрасывается.
func (d *Dispatcher) Notify(n *models.Notification) {
	if n == nil {
		return
	}
	select {
	case d.queue <- n:
	default:
		d.dropped.Add(1)
		bot.RecordBufferOverflow("notification")
		d.logger.Warn("notification queue full, dropping",
			zap.String("type", n.Type))
	}
}

// Dropped возвращает количество отброшенных уведомлений
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

func (d *Dispatcher) run() {
	for {
		select {
		case n := <-d.queue:
			d.deliver(n)

		case <-d.quit:
			// Добираем хвост очереди перед выходом
			for {
				select {
				case n := <-d.queue:
					d.deliver(n)
				default:
					d.logger.Info("dispatcher stopped",
						zap.Int64("dropped", d.dropped.Load()))
					close(d.done)
					return
				}
			}
		}
	}
}

// deliver развозит уведомление по каналам. БД первой: Create
// проставляет ID и CreatedAt, остальные каналы их используют
func (d *Dispatcher) deliver(n *models.Notification) {
	if d.repo != nil {
		if err := d.repo.Create(n); err != nil {
			d.logger.Error("save notification",
				zap.String("type", n.Type),
				zap.Error(err))
		}
	}

	if d.discord != nil {
		if err := d.discord.Send(n); err != nil {
			d.logger.Warn("discord webhook",
				zap.String("type", n.Type),
				zap.Error(err))
		}
	}

	if d.broadcaster != nil {
		d.broadcaster.BroadcastNotification(n)
	}
}

// Dispatcher закрывает потребность движка в доставке уведомлений
var _ bot.Notifier = (*Dispatcher)(nil)
