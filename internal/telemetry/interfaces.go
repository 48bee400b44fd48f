package telemetry

import (
	"log"

	"metaverse/server/logging"
)

// Logger exposes the logging capabilities required by server components.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts functions into the Logger interface.
type LoggerFunc func(format string, args ...any)

// Printf implements Logger for LoggerFunc.
func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger adapts a standard library logger to the Logger interface.
func WrapLogger(logger *log.Logger) Logger {
	return &loggerAdapter{logger: logger}
}

// DiscardLogger drops everything.
func DiscardLogger() Logger {
	return LoggerFunc(func(string, ...any) {})
}

type loggerAdapter struct {
	logger *log.Logger
}

func (l *loggerAdapter) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}

// StandardLogger exposes the wrapped logger for components that need a *log.Logger.
func (l *loggerAdapter) StandardLogger() *log.Logger {
	if l == nil {
		return nil
	}
	return l.logger
}

// Metrics exposes the telemetry methods required by server components.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

// Metric keys reported by the room authority and transport.
const (
	MetricRoomsActive     = "rooms_active"
	MetricRoomsCreated    = "rooms_created_total"
	MetricRoomsDisposed   = "rooms_disposed_total"
	MetricJoins           = "room_joins_total"
	MetricJoinFailures    = "room_join_failures_total"
	MetricJoinsRejected   = "room_joins_rejected_total"
	MetricLeaves          = "room_leaves_total"
	MetricEvictions       = "room_evictions_total"
	MetricMovesApplied    = "room_moves_applied_total"
	MetricMovesRejected   = "room_moves_rejected_total"
	MetricMovesThrottled  = "room_moves_throttled_total"
	MetricBroadcasts      = "room_broadcasts_total"
	MetricHandlerPanics   = "room_handler_panics_total"
	MetricFramesSent      = "ws_frames_sent_total"
	MetricBytesSent       = "ws_bytes_sent_total"
	MetricSlowConsumers   = "ws_slow_consumers_total"
	MetricMalformedFrames = "ws_malformed_frames_total"
)

// WrapMetrics adapts the logging router metrics into the Metrics interface.
func WrapMetrics(metrics *logging.Metrics) Metrics {
	return &metricsAdapter{metrics: metrics}
}

// NopMetrics discards every update.
func NopMetrics() Metrics {
	return &metricsAdapter{}
}

type metricsAdapter struct {
	metrics *logging.Metrics
}

func (m *metricsAdapter) Add(key string, delta uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryAdd(key, delta)
}

func (m *metricsAdapter) Store(key string, value uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryStore(key, value)
}
