package utils

import (
	"os"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger.go - структурированное логирование на базе zap
//
// Назначение:
// Единая точка инициализации логгера для всех компонентов сервиса.
//
// Возможности:
// - Форматы: json (продакшен), text (локальная разработка)
// - Уровни: debug, info, warn, error, fatal
// - Вывод в stderr либо в файл (с fallback на stderr)
// - Глобальный логгер + конструкторы доменных полей

// LogConfig определяет настройки логирования.
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json, text
	Output      string // путь к файлу; пусто - stderr
	Development bool   // режим разработки: stacktrace с уровня warn
}

// Logger оборачивает zap.Logger, добавляя sugar-интерфейс
// и доменные конструкторы дочерних логгеров.
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// InitLogger создаёт логгер по конфигурации.
// Никогда не возвращает nil: при некорректных настройках
// применяются значения по умолчанию и вывод в stderr.
func InitLogger(config LogConfig) *Logger {
	level := parseLevel(config.Level)

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(config.Format) {
	case "text", "console":
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	default:
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	sink := zapcore.AddSync(os.Stderr)
	if config.Output != "" {
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			sink = zapcore.AddSync(file)
		}
		// при ошибке открытия файла остаёмся на stderr
	}

	core := zapcore.NewCore(encoder, sink, level)

	opts := []zap.Option{zap.AddCaller()}
	if config.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.WarnLevel))
	} else {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	zl := zap.New(core, opts...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// parseLevel преобразует строковый уровень в zapcore.Level.
// Неизвестные значения трактуются как info.
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// With возвращает дочерний логгер с добавленными полями.
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := l.Logger.With(fields...)
	return &Logger{Logger: child, sugar: child.Sugar()}
}

// WithComponent возвращает логгер компонента (executor, sweep, engine...).
func (l *Logger) WithComponent(name string) *Logger {
	return l.With(Component(name))
}

// WithMarket возвращает логгер с привязкой к рынку.
func (l *Logger) WithMarket(market string) *Logger {
	return l.With(Market(market))
}

// WithOrderID возвращает логгер с привязкой к ордеру.
func (l *Logger) WithOrderID(orderID int64) *Logger {
	return l.With(OrderID(orderID))
}

// WithSignalID возвращает логгер с привязкой к сигналу.
func (l *Logger) WithSignalID(signalID int64) *Logger {
	return l.With(SignalID(signalID))
}

// Sugar возвращает sugar-интерфейс для printf-style логирования.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// ============================================================
// Глобальный логгер
// ============================================================

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// InitGlobalLogger инициализирует глобальный логгер по конфигурации.
func InitGlobalLogger(config LogConfig) *Logger {
	logger := InitLogger(config)
	SetGlobalLogger(logger)
	return logger
}

// SetGlobalLogger устанавливает глобальный логгер.
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger возвращает глобальный логгер,
// лениво создавая логгер по умолчанию при первом обращении.
func GetGlobalLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// L - короткий алиас GetGlobalLogger.
func L() *Logger {
	return GetGlobalLogger()
}

// Debug логирует через глобальный логгер.
func Debug(msg string, fields ...zap.Field) { GetGlobalLogger().Debug(msg, fields...) }

// Info логирует через глобальный логгер.
func Info(msg string, fields ...zap.Field) { GetGlobalLogger().Info(msg, fields...) }

// Warn логирует через глобальный логгер.
func Warn(msg string, fields ...zap.Field) { GetGlobalLogger().Warn(msg, fields...) }

// Error логирует через глобальный логгер.
func Error(msg string, fields ...zap.Field) { GetGlobalLogger().Error(msg, fields...) }

// Debugf - printf-style debug через глобальный логгер.
func Debugf(template string, args ...interface{}) { GetGlobalLogger().sugar.Debugf(template, args...) }

// Infof - printf-style info через глобальный логгер.
func Infof(template string, args ...interface{}) { GetGlobalLogger().sugar.Infof(template, args...) }

// Warnf - printf-style warn через глобальный логгер.
func Warnf(template string, args ...interface{}) { GetGlobalLogger().sugar.Warnf(template, args...) }

// Errorf - printf-style error через глобальный логгер.
func Errorf(template string, args ...interface{}) { GetGlobalLogger().sugar.Errorf(template, args...) }

// ============================================================
// Конструкторы доменных полей
// ============================================================

// Market - поле рынка (KRW-BTC).
func Market(market string) zap.Field { return zap.String("market", market) }

// OrderID - поле внутреннего идентификатора ордера.
func OrderID(id int64) zap.Field { return zap.Int64("order_id", id) }

// ExchangeOrderID - поле идентификатора ордера на бирже.
func ExchangeOrderID(id string) zap.Field { return zap.String("exchange_order_id", id) }

// SignalID - поле идентификатора сигнала.
func SignalID(id int64) zap.Field { return zap.Int64("signal_id", id) }

// Side - поле стороны сделки (BUY/SELL).
func Side(side string) zap.Field { return zap.String("side", side) }

// Status - поле статуса ордера.
func Status(status string) zap.Field { return zap.String("status", status) }

// Price - поле цены (decimal сериализуется строкой без потери точности).
func Price(p decimal.Decimal) zap.Field { return zap.String("price", p.String()) }

// Amount - поле объёма/суммы.
func Amount(a decimal.Decimal) zap.Field { return zap.String("amount", a.String()) }

// PNL - поле прибыли/убытка.
func PNL(pnl decimal.Decimal) zap.Field { return zap.String("pnl", pnl.String()) }

// Volatility - поле волатильности в процентах.
func Volatility(pct float64) zap.Field { return zap.Float64("volatility_pct", pct) }

// Latency - поле задержки в миллисекундах.
func Latency(ms float64) zap.Field { return zap.Float64("latency_ms", ms) }

// Attempt - поле номера попытки.
func Attempt(n int) zap.Field { return zap.Int("attempt", n) }

// RequestID - поле идентификатора HTTP-запроса.
func RequestID(id string) zap.Field { return zap.String("request_id", id) }

// Component - поле имени компонента.
func Component(name string) zap.Field { return zap.String("component", name) }

// Переэкспорт базовых конструкторов zap, чтобы вызывающему коду
// не требовался прямой импорт zap ради полей.
var (
	String  = zap.String
	Int     = zap.Int
	Int64   = zap.Int64
	Float64 = zap.Float64
	Bool    = zap.Bool
	Err     = zap.Error
	Any     = zap.Any
	Dur     = zap.Duration
	Time    = zap.Time
)

// fieldsToInterface разворачивает zap-поля в плоский список ключ-значение
// для передачи в sugar-интерфейс. Значение берётся из типизированного
// слота поля (String/Integer/Interface).
func fieldsToInterface(fields []zap.Field) []interface{} {
	result := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		var value interface{}
		switch {
		case f.Interface != nil:
			value = f.Interface
		case f.String != "":
			value = f.String
		default:
			value = f.Integer
		}
		result = append(result, f.Key, value)
	}
	return result
}
