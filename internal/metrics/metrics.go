package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics of the analyst.
type Metrics struct {
	Registry *prometheus.Registry

	CyclesTotal   *prometheus.CounterVec // labels: outcome
	CycleDuration prometheus.Histogram
	LastCycleTS   prometheus.Gauge

	OracleFallbacks   *prometheus.CounterVec // labels: kind
	OracleLatency     prometheus.Histogram
	OracleProbability prometheus.Gauge

	Rejections  *prometheus.CounterVec // labels: reason
	Approvals   *prometheus.CounterVec // labels: action
	TradesToday prometheus.Gauge

	PersistErrors *prometheus.CounterVec // labels: sink

	// Circuit breakers (oracle, redis)
	BreakerState *prometheus.GaugeVec   // 0=closed, 1=open, 2=half-open
	BreakerTrips *prometheus.CounterVec // labels: name

	BufferedPublishes prometheus.Counter
	StreamClients     prometheus.Gauge
	ScheduleOpen      prometheus.Gauge // 0=closed, 1=open
}

// NewMetrics registers and returns all metrics on a fresh registry that also
// carries the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxanalyst_cycles_total",
			Help: "Analysis cycles by outcome",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fxanalyst_cycle_duration_seconds",
			Help:    "Wall time of one analysis cycle",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		LastCycleTS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fxanalyst_last_cycle_timestamp_seconds",
			Help: "Unix time of the last finished cycle",
		}),

		OracleFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxanalyst_oracle_fallbacks_total",
			Help: "Oracle calls that fell back to the neutral probability, by failure kind",
		}, []string{"kind"}),
		OracleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fxanalyst_oracle_latency_seconds",
			Help:    "Oracle call latency including retries",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		OracleProbability: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fxanalyst_oracle_probability",
			Help: "Last probability used by the signal evaluator",
		}),

		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxanalyst_rejections_total",
			Help: "Candidate trades rejected by a risk gate",
		}, []string{"reason"}),
		Approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxanalyst_approvals_total",
			Help: "Approved trade decisions",
		}, []string{"action"}),
		TradesToday: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fxanalyst_trades_today",
			Help: "Approved decisions counted for the current day",
		}),

		PersistErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxanalyst_persist_errors_total",
			Help: "Failed writes by sink or store",
		}, []string{"sink"}),

		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fxanalyst_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fxanalyst_circuit_breaker_trips_total",
			Help: "Times a circuit breaker tripped open",
		}, []string{"name"}),

		BufferedPublishes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fxanalyst_redis_buffered_publishes_total",
			Help: "Decision records buffered while the Redis breaker was open",
		}),
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fxanalyst_stream_clients",
			Help: "Connected WebSocket stream clients",
		}),
		ScheduleOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fxanalyst_schedule_open",
			Help: "Usage schedule state (0=closed, 1=open)",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.CyclesTotal,
		m.CycleDuration,
		m.LastCycleTS,
		m.OracleFallbacks,
		m.OracleLatency,
		m.OracleProbability,
		m.Rejections,
		m.Approvals,
		m.TradesToday,
		m.PersistErrors,
		m.BreakerState,
		m.BreakerTrips,
		m.BufferedPublishes,
		m.StreamClients,
		m.ScheduleOpen,
	)

	return m
}

// ObserveBreaker records a breaker transition. States are the integer values
// of breaker.State.
func (m *Metrics) ObserveBreaker(name string, to int) {
	m.BreakerState.WithLabelValues(name).Set(float64(to))
	if to == 1 {
		m.BreakerTrips.WithLabelValues(name).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, m *Metrics, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
