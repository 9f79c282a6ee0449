package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/api"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/bot"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/config"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/exchange"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/notify"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/repository"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/service"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/signal"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/websocket"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/pkg/utils"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		Development: cfg.Logging.Development,
	})
	defer logger.Sync()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("database connection failed",
			zap.String("dsn", cfg.Database.DSNWithoutPassword()),
			zap.Error(err))
	}
	defer db.Close()

	logger.Info("database connected",
		zap.String("dsn", cfg.Database.DSNWithoutPassword()))

	// Репозитории
	repos := &bot.Repositories{
		Orders:        repository.NewOrderRepository(db),
		Positions:     repository.NewPositionRepository(db),
		Stats:         repository.NewStatsRepository(db),
		RiskEvents:    repository.NewRiskEventRepository(db),
		RiskParams:    repository.NewRiskParamsRepository(db),
		Signals:       repository.NewSignalRepository(db),
		Notifications: repository.NewNotificationRepository(db),
	}

	// Шлюз биржи: доступ к приватному API проверяется до старта торговли
	gateway := exchange.NewUpbit(cfg.Upbit.AccessKey, cfg.Upbit.SecretKey,
		cfg.Upbit.BaseURL, cfg.Upbit.Timeout, logger.Logger)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	balances, err := gateway.GetBalances(bootCtx)
	bootCancel()
	if err != nil {
		logger.Fatal("upbit API check failed", zap.Error(err))
	}
	logger.Info("upbit API reachable", zap.Int("currencies", len(balances)))

	// WebSocket hub для live-обновлений панели
	hub := websocket.NewHub(logger.Logger)
	go hub.Run()

	// Диспетчер уведомлений: история в БД, Discord, WebSocket
	dispatcher := notify.NewDispatcher(
		repos.Notifications,
		notify.NewDiscordClient(cfg.Notify.DiscordWebhookURL),
		hub,
		cfg.Notify.BufferSize,
		logger.Logger,
	)
	dispatcher.Start()

	// Источник сигналов; без него движок торгует только по ручным запросам
	var source signal.Source
	if cfg.Signal.Enabled {
		source = signal.NewClient(cfg.Signal.BaseURL, cfg.Signal.APIKey,
			cfg.Signal.Model, cfg.Signal.Timeout, logger.Logger)
	}

	// Торговый движок
	engine := bot.NewEngine(cfg, db, gateway, source, repos, dispatcher, hub, logger.Logger)

	engineCtx, engineCancel := context.WithCancel(context.Background())
	defer engineCancel()

	if err := engine.Start(engineCtx); err != nil {
		logger.Fatal("engine start failed", zap.Error(err))
	}

	// Сервисный слой и HTTP API
	deps := &api.Dependencies{
		OrderService:        service.NewOrderService(repos.Orders, engine, logger.Logger),
		PositionService:     service.NewPositionService(repos.Positions, engine),
		StatsService:        service.NewStatsService(repos.Stats),
		RiskService:         service.NewRiskService(repos.RiskParams, repos.RiskEvents, repos.Stats, logger.Logger),
		SignalService:       service.NewSignalService(repos.Signals),
		NotificationService: service.NewNotificationService(repos.Notifications, logger.Logger),

		DB:        db,
		Engine:    engine,
		Hub:       hub,
		TokenHash: cfg.Security.APITokenHash,
		Logger:    logger.Logger,
	}

	router := api.SetupRoutes(deps)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		logger.Info("http server listening",
			zap.String("addr", server.Addr),
			zap.Bool("auth", cfg.AuthEnabled()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	ossignal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Порядок остановки: сначала API перестает принимать запросы, затем
	// движок дожидается текущих проходов, затем доставка уведомлений
	// добирает очередь, последним гаснет hub
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", zap.Error(err))
	}

	engine.Stop()
	engineCancel()
	dispatcher.Stop()
	hub.Stop()

	logger.Info("server exited")
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
