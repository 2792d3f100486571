package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxLabelLen = 64

// sanitizeLabel keeps label values short and free of spaces
func sanitizeLabel(s string) string {
	if s == "" {
		return "unknown"
	}
	s = strings.ReplaceAll(s, " ", "_")
	if len(s) > maxLabelLen {
		s = s[:maxLabelLen]
	}
	return s
}

// Metrics holds the trader's Prometheus instruments.
type Metrics struct {
	registry *prometheus.Registry

	trades       *prometheus.CounterVec
	tradeFails   prometheus.Counter
	sessions     *prometheus.CounterVec
	cycles       prometheus.Counter
	cycleErrors  prometheus.Counter
	transfers    *prometheus.CounterVec
	villagers    prometheus.Gauge
	running      prometheus.Gauge
	sessionTimes prometheus.Histogram
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradebot",
			Name:      "trades_total",
			Help:      "Executed villager trades by output item",
		}, []string{"item"}),
		tradeFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tradebot",
			Name:      "trade_failures_total",
			Help:      "Trades rejected by the game",
		}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradebot",
			Name:      "sessions_total",
			Help:      "Villager sessions by outcome",
		}, []string{"outcome"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tradebot",
			Name:      "scan_cycles_total",
			Help:      "Completed scan cycles",
		}),
		cycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tradebot",
			Name:      "scan_cycle_errors_total",
			Help:      "Scan cycles that failed and backed off",
		}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradebot",
			Name:      "container_items_total",
			Help:      "Items moved to or from containers",
		}, []string{"action", "item"}),
		villagers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tradebot",
			Name:      "villagers_visible",
			Help:      "Villagers found by the last scan",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tradebot",
			Name:      "running",
			Help:      "1 while the scan cycle is enabled",
		}),
		sessionTimes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tradebot",
			Name:      "session_duration_seconds",
			Help:      "Duration of villager sessions",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80},
		}),
	}

	m.registry.MustRegister(m.trades, m.tradeFails, m.sessions, m.cycles, m.cycleErrors,
		m.transfers, m.villagers, m.running, m.sessionTimes)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordTrade(item string) {
	m.trades.WithLabelValues(sanitizeLabel(item)).Inc()
}

func (m *Metrics) RecordTradeFailure() {
	m.tradeFails.Inc()
}

func (m *Metrics) RecordSession(outcome string, d time.Duration) {
	m.sessions.WithLabelValues(sanitizeLabel(outcome)).Inc()
	m.sessionTimes.Observe(d.Seconds())
}

func (m *Metrics) RecordCycle() {
	m.cycles.Inc()
}

func (m *Metrics) RecordCycleError() {
	m.cycleErrors.Inc()
}

func (m *Metrics) RecordTransfer(action, item string, count int) {
	m.transfers.WithLabelValues(sanitizeLabel(action), sanitizeLabel(item)).Add(float64(count))
}

func (m *Metrics) SetVillagers(n int) {
	m.villagers.Set(float64(n))
}

func (m *Metrics) SetRunning(running bool) {
	if running {
		m.running.Set(1)
	} else {
		m.running.Set(0)
	}
}

// TrackDroppedEvents exports the notifier bus's drop count. Call it once.
func (m *Metrics) TrackDroppedEvents(dropped func() int) {
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "tradebot",
		Name:      "events_dropped_total",
		Help:      "Notifier events discarded because the bus buffer was full",
	}, func() float64 { return float64(dropped()) }))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics, and /health when health is non-nil, on addr until
// ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, health http.Handler, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	if health != nil {
		mux.Handle("/health", health)
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("Failed to shut down metrics server cleanly", "error", err)
		}
	}()

	logger.Info("Metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
