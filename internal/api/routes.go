package api

import (
	"database/sql"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/api/handlers"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/api/middleware"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/service"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/websocket"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	OrderService        *service.OrderService
	PositionService     *service.PositionService
	StatsService        *service.StatsService
	RiskService         *service.RiskService
	SignalService       *service.SignalService
	NotificationService *service.NotificationService

	// Инфраструктура вне сервисного слоя
	DB     *sql.DB
	Engine handlers.EngineStatus
	Hub    *websocket.Hub

	// bcrypt-хэш операторского токена; пустая строка отключает auth
	TokenHash string
	Logger    *zap.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Назначение:
// Центральное место для определения всех API endpoints.
// Регистрирует handlers для каждого маршрута.
// Применяет middleware к группам маршрутов.
// Организует версионирование API (v1).
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /orders/
//	│   ├── GET / - журнал ордеров
//	│   ├── GET /summary - сводка по статусам
//	│   ├── GET /{id} - один ордер
//	│   ├── POST / - ручная сделка (auth)
//	│   └── POST /{id}/cancel - запрос отмены (auth)
//	├── /positions/
//	│   ├── GET / - все позиции
//	│   └── GET /{market} - позиция рынка
//	├── /stats/
//	│   ├── GET /today - текущий день
//	│   ├── GET /history - история по дням
//	│   └── GET /performance - сводка за период
//	├── /risk/
//	│   ├── GET /params - параметры риска
//	│   ├── PUT /params - изменение параметров (auth)
//	│   ├── GET /status - состояние торговли
//	│   ├── POST /halt - остановка торговли (auth)
//	│   ├── POST /resume - возобновление (auth)
//	│   └── GET /events - журнал риск-событий
//	├── /signals/
//	│   ├── GET / - журнал сигналов
//	│   ├── GET /latest - последний сигнал рынка
//	│   └── GET /{id} - один сигнал
//	└── /notifications/
//	    ├── GET / - последние уведомления
//	    └── DELETE / - очистка журнала (auth)
//
// /healthz - проверка живости (БД + движок)
// /metrics - метрики Prometheus
// /ws - WebSocket для real-time обновлений
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. Metrics (для всех маршрутов)
// 4. CORS (для всех маршрутов)
// 5. Auth (только для изменяющих состояние маршрутов)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	logger := zap.NewNop()
	if deps != nil && deps.Logger != nil {
		logger = deps.Logger
	}

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logging(logger))
	router.Use(middleware.Metrics)
	router.Use(middleware.CORS)

	// Создание handlers с внедрением зависимостей
	var orderHandler *handlers.OrderHandler
	if deps != nil && deps.OrderService != nil {
		orderHandler = handlers.NewOrderHandler(deps.OrderService)
	}

	var positionHandler *handlers.PositionHandler
	if deps != nil && deps.PositionService != nil {
		positionHandler = handlers.NewPositionHandler(deps.PositionService)
	}

	var statsHandler *handlers.StatsHandler
	if deps != nil && deps.StatsService != nil {
		statsHandler = handlers.NewStatsHandler(deps.StatsService)
	}

	var riskHandler *handlers.RiskHandler
	if deps != nil && deps.RiskService != nil {
		riskHandler = handlers.NewRiskHandler(deps.RiskService)
	}

	var signalHandler *handlers.SignalHandler
	if deps != nil && deps.SignalService != nil {
		signalHandler = handlers.NewSignalHandler(deps.SignalService)
	}

	var notificationHandler *handlers.NotificationHandler
	if deps != nil && deps.NotificationService != nil {
		notificationHandler = handlers.NewNotificationHandler(deps.NotificationService)
	}

	// Читающие маршруты доступны без токена: панель наблюдения
	// работает и при включенном auth
	api := router.PathPrefix("/api/v1").Subrouter()

	// Изменяющие состояние маршруты требуют Bearer токен
	var tokenHash string
	if deps != nil {
		tokenHash = deps.TokenHash
	}
	protected := router.PathPrefix("/api/v1").Subrouter()
	protected.Use(middleware.Auth(tokenHash))

	// Order routes
	if orderHandler != nil {
		api.HandleFunc("/orders", orderHandler.GetOrders).Methods("GET")
		api.HandleFunc("/orders/summary", orderHandler.GetSummary).Methods("GET")
		api.HandleFunc("/orders/{id:[0-9]+}", orderHandler.GetOrder).Methods("GET")
		protected.HandleFunc("/orders", orderHandler.CreateOrder).Methods("POST")
		protected.HandleFunc("/orders/{id:[0-9]+}/cancel", orderHandler.CancelOrder).Methods("POST")
	}

	// Position routes
	if positionHandler != nil {
		api.HandleFunc("/positions", positionHandler.GetPositions).Methods("GET")
		api.HandleFunc("/positions/{market}", positionHandler.GetPosition).Methods("GET")
	}

	// Stats routes
	if statsHandler != nil {
		api.HandleFunc("/stats/today", statsHandler.GetToday).Methods("GET")
		api.HandleFunc("/stats/history", statsHandler.GetHistory).Methods("GET")
		api.HandleFunc("/stats/performance", statsHandler.GetPerformance).Methods("GET")
	}

	// Risk routes
	if riskHandler != nil {
		api.HandleFunc("/risk/params", riskHandler.GetParams).Methods("GET")
		api.HandleFunc("/risk/status", riskHandler.GetStatus).Methods("GET")
		api.HandleFunc("/risk/events", riskHandler.GetEvents).Methods("GET")
		protected.HandleFunc("/risk/params", riskHandler.UpdateParams).Methods("PUT")
		protected.HandleFunc("/risk/halt", riskHandler.Halt).Methods("POST")
		protected.HandleFunc("/risk/resume", riskHandler.Resume).Methods("POST")
	}

	// Signal routes
	if signalHandler != nil {
		api.HandleFunc("/signals", signalHandler.GetSignals).Methods("GET")
		api.HandleFunc("/signals/latest", signalHandler.GetLatest).Methods("GET")
		api.HandleFunc("/signals/{id:[0-9]+}", signalHandler.GetSignal).Methods("GET")
	}

	// Notification routes
	if notificationHandler != nil {
		api.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods("GET")
		protected.HandleFunc("/notifications", notificationHandler.Cleanup).Methods("DELETE")
	}

	// WebSocket route
	if deps != nil && deps.Hub != nil {
		router.HandleFunc("/ws", deps.Hub.ServeWS)
	}

	// Health check endpoint
	var healthHandler *handlers.HealthHandler
	if deps != nil {
		healthHandler = handlers.NewHealthHandler(deps.DB, deps.Engine)
	} else {
		healthHandler = handlers.NewHealthHandler(nil, nil)
	}
	router.HandleFunc("/healthz", healthHandler.Health).Methods("GET")

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}
