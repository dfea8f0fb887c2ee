// Package app assembles the analyst service and its stores from a loaded
// configuration. Both binaries build on it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"fxanalyst/config"
	"fxanalyst/internal/analyst"
	"fxanalyst/internal/breaker"
	"fxanalyst/internal/features"
	"fxanalyst/internal/gateway"
	"fxanalyst/internal/marketdata"
	"fxanalyst/internal/markethours"
	"fxanalyst/internal/metrics"
	"fxanalyst/internal/notification"
	"fxanalyst/internal/oracle"
	"fxanalyst/internal/risk"
	"fxanalyst/internal/signal"
	"fxanalyst/internal/store/file"
	redisstore "fxanalyst/internal/store/redis"
	"fxanalyst/internal/store/sqlite"
)

// Options select the optional surfaces.
type Options struct {
	// Stream attaches the WebSocket hub as a sink (directly, or through the
	// Redis relay when Redis is enabled).
	Stream bool
	// Notify enables the notification sink.
	Notify bool
}

// App holds the wired components.
type App struct {
	Config   *config.Config
	Location *time.Location
	Calendar *markethours.Calendar

	Service *analyst.Service
	Source  marketdata.Source
	Metrics *metrics.Metrics
	Health  *metrics.HealthStatus

	DB        *sqlite.DB
	Redis     *redisstore.Client
	Publisher *redisstore.Publisher
	Hub       *gateway.Hub

	closers []func() error
}

// Build wires every component. Redis being unreachable is not an error: the
// breaker opens and publishes are buffered until it recovers.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{
		Config:  cfg,
		Metrics: metrics.NewMetrics(),
		Health:  metrics.NewHealthStatus(),
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a.Location = loc
	if a.Calendar, err = cfg.Schedule.Calendar(loc); err != nil {
		return nil, err
	}

	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}

	counterStore, err := a.counterStore()
	if err != nil {
		a.Close()
		return nil, err
	}
	counter := risk.NewCounter(counterStore, loc)
	counter.OnPersistError = func(op string, err error) {
		a.Metrics.PersistErrors.WithLabelValues("counter_" + op).Inc()
	}

	a.Source = a.source()
	sinks := a.sinks(ctx, opts)

	a.Service = analyst.New(analyst.Config{
		Symbol:         cfg.General.Symbol,
		Higher:         cfg.Timeframes.Higher,
		Mid:            cfg.Timeframes.Mid,
		Lower:          cfg.Timeframes.Lower,
		History:        cfg.History.Candles,
		SessionFilter:  cfg.Session.Filter,
		PricePrecision: cfg.General.PricePrecision,
	}, analyst.Deps{
		Source:    a.Source,
		Builder:   features.NewBuilder(cfg.Indicator),
		Oracle:    a.oracle(),
		Evaluator: signal.NewEvaluator(cfg.Signal),
		Validator: risk.NewValidator(cfg.Risk, counter, cfg.Timeframes.Lower.Minutes()),
		Sinks:     sinks,
		Metrics:   a.Metrics,
		Health:    a.Health,
	})
	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	cfg := a.Config
	if cfg.Storage.SQLite.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLite.Path), 0o755); err != nil {
			return err
		}
		db, err := sqlite.Open(cfg.Storage.SQLite.Path)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		a.DB = db
		a.closers = append(a.closers, db.Close)
		a.Health.SetSQLiteEnabled(true)
		a.Health.CheckSQLite(ctx, db.SQL())
	}

	if cfg.Redis.Enabled {
		br := breaker.New("redis", cfg.Redis.MaxFailures, cfg.Redis.Cooldown)
		br.OnStateChange = func(name string, from, to breaker.State) {
			a.Metrics.ObserveBreaker(name, int(to))
		}
		rc, err := redisstore.Connect(ctx, cfg.Redis, br)
		if err != nil {
			log.Printf("[app] redis unavailable at startup, continuing behind breaker: %v", err)
			rc = redisstore.NewClient(cfg.Redis, br)
		}
		a.Redis = rc
		a.closers = append(a.closers, rc.Close)
		a.Health.SetRedisEnabled(true)
		a.Health.CheckRedis(ctx, rc.Raw())

		a.Publisher = redisstore.NewPublisher(rc, cfg.Redis.LatestTTL, cfg.Redis.MaxBuffer)
		a.Publisher.OnBuffer = func() { a.Metrics.BufferedPublishes.Inc() }
	}
	return nil
}

func (a *App) counterStore() (risk.Store, error) {
	cfg := a.Config
	switch cfg.Storage.Counter {
	case "redis":
		if a.Redis == nil {
			return nil, errors.New("redis counter requires redis")
		}
		return redisstore.NewCounterStore(a.Redis, cfg.General.Symbol), nil
	default:
		return file.NewCounterStore(cfg.Storage.CounterFile), nil
	}
}

func (a *App) source() marketdata.Source {
	cfg := a.Config
	if cfg.MarketData.Source == "sqlite" {
		return &marketdata.SQLiteSource{DB: a.DB, Base: cfg.Timeframes.Lower}
	}
	var src marketdata.Source = marketdata.NewSynthetic(cfg.MarketData.Synthetic)
	if cfg.MarketData.Persist && a.DB != nil {
		src = &marketdata.Recorder{
			Source:  src,
			DB:      a.DB,
			OnError: func(error) { a.Metrics.PersistErrors.WithLabelValues("candles").Inc() },
		}
	}
	return src
}

func (a *App) oracle() oracle.Oracle {
	cfg := a.Config
	a.Health.SetOracleState(breaker.StateClosed.String())
	if cfg.Oracle.Mode != "http" {
		return oracle.Rule{}
	}
	br := breaker.New("oracle", cfg.Oracle.MaxFailures, cfg.Oracle.Cooldown)
	br.OnStateChange = func(name string, from, to breaker.State) {
		a.Metrics.ObserveBreaker(name, int(to))
		a.Health.SetOracleState(to.String())
	}
	return oracle.NewHTTPClient(cfg.Oracle.Config, br)
}

func (a *App) sinks(ctx context.Context, opts Options) []analyst.Sink {
	cfg := a.Config
	sinks := []analyst.Sink{
		analyst.FileSink{W: file.NewRecordWriter(cfg.Storage.SignalsDir, a.Location)},
	}
	if a.DB != nil {
		sinks = append(sinks, analyst.JournalSink{DB: a.DB})
	}
	if a.Publisher != nil {
		sinks = append(sinks, analyst.PublishSink{P: a.Publisher})
	}
	if opts.Stream {
		a.Hub = gateway.NewHub(cfg.HTTP.ReplayBuffer)
		a.Hub.OnClients = func(n int) { a.Metrics.StreamClients.Set(float64(n)) }
		if a.Publisher != nil {
			go gateway.NewRelay(a.Hub).Run(ctx, a.Publisher.Subscribe(ctx))
		} else {
			sinks = append(sinks, analyst.StreamSink{B: a.Hub})
		}
	}
	if opts.Notify {
		if n := notification.New(cfg.Notify); n != nil {
			sinks = append(sinks, analyst.NotifySink{N: n})
		}
	}
	return sinks
}

// StartLiveness probes the stores every interval until ctx ends.
func (a *App) StartLiveness(ctx context.Context, interval time.Duration) {
	var rdb *goredis.Client
	var sqlDB *sql.DB
	if a.Redis != nil {
		rdb = a.Redis.Raw()
	}
	if a.DB != nil {
		sqlDB = a.DB.SQL()
	}
	a.Health.StartLivenessChecker(ctx, rdb, sqlDB, interval)
}

// TrackSchedule mirrors whether the schedule is open into health and
// metrics every interval until ctx ends.
func (a *App) TrackSchedule(ctx context.Context, interval time.Duration) {
	update := func() {
		open := a.Calendar.IsOpen(time.Now())
		a.Health.SetScheduleOpen(open)
		if open {
			a.Metrics.ScheduleOpen.Set(1)
		} else {
			a.Metrics.ScheduleOpen.Set(0)
		}
	}
	update()
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				update()
			}
		}
	}()
}

// Close releases the stores and disconnects stream clients.
func (a *App) Close() error {
	if a.Hub != nil {
		a.Hub.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
