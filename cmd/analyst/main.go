// Command analyst runs the scheduled decision service with its HTTP API,
// live stream and metrics endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fxanalyst/config"
	"fxanalyst/internal/api"
	"fxanalyst/internal/app"
	"fxanalyst/internal/logger"
	"fxanalyst/internal/metrics"
	"fxanalyst/internal/scheduler"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	configPath := flag.String("config", os.Getenv("FX_CONFIG"), "path to the YAML config file")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatalf("[analyst] %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[analyst] %v", err)
	}
	logger.Setup("fxanalyst", cfg.Log, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("analyst stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	a, err := app.Build(ctx, cfg, app.Options{Stream: true, Notify: true})
	if err != nil {
		return err
	}
	defer a.Close()

	a.StartLiveness(ctx, 15*time.Second)
	a.TrackSchedule(ctx, time.Minute)

	metricsSrv := metrics.NewServer(cfg.HTTP.MetricsAddr, a.Metrics, a.Health)
	metricsSrv.Start()

	apiSrv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: api.NewRouter(api.Deps{
			Service:    a.Service,
			Journal:    a.DB,
			Health:     a.Health,
			Stream:     a.Hub,
			TOTPSecret: cfg.HTTP.TOTPSecret,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("[analyst] api listening on %s", cfg.HTTP.Addr)
		if err := apiSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[analyst] api server error: %v", err)
		}
	}()

	slog.Info("analyst started",
		"symbol", cfg.General.Symbol,
		"timeframes", []string{cfg.Timeframes.Higher.String(), cfg.Timeframes.Mid.String(), cfg.Timeframes.Lower.String()},
		"interval_minutes", cfg.Schedule.IntervalMinutes,
		"oracle", cfg.Oracle.Mode,
		"source", cfg.MarketData.Source,
		"schedule", a.Calendar.StatusString(time.Now()),
	)

	sched := scheduler.New(cfg.Schedule, a.Calendar, a.Service.Tick)
	runErr := sched.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[analyst] api shutdown: %v", err)
	}
	metricsSrv.Stop(shutdownCtx)
	slog.Info("analyst shut down")
	return runErr
}
