// Command evaluate runs a single decision cycle and prints the record as
// JSON. The cycle goes through the configured sinks and trade counter
// exactly like a scheduled one.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"fxanalyst/config"
	"fxanalyst/internal/app"
	"fxanalyst/internal/logger"
	"fxanalyst/internal/marketdata"
)

func main() {
	configPath := flag.String("config", os.Getenv("FX_CONFIG"), "path to the YAML config file")
	atFlag := flag.String("at", "", "evaluate as of this RFC3339 time (default now)")
	seed := flag.Bool("seed-db", false, "store the fetched candles in SQLite before evaluating")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatalf("[evaluate] %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[evaluate] %v", err)
	}
	logger.Setup("fxanalyst-evaluate", cfg.Log, os.Stderr)

	at := time.Now()
	if *atFlag != "" {
		if at, err = time.Parse(time.RFC3339, *atFlag); err != nil {
			log.Fatalf("[evaluate] -at: %v", err)
		}
	}

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, app.Options{})
	if err != nil {
		log.Fatalf("[evaluate] %v", err)
	}
	defer a.Close()

	if *seed {
		if err := seedDB(ctx, a, at); err != nil {
			log.Fatalf("[evaluate] seed: %v", err)
		}
	}

	rec := a.Service.Analyze(ctx, at)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		log.Fatalf("[evaluate] %v", err)
	}
}

func seedDB(ctx context.Context, a *app.App, at time.Time) error {
	if a.DB == nil {
		return fmt.Errorf("storage.sqlite is disabled")
	}
	cfg := a.Service.Config()
	set, err := marketdata.Fetch(ctx, a.Source, marketdata.Request{
		Symbol: cfg.Symbol,
		Higher: cfg.Higher,
		Mid:    cfg.Mid,
		Lower:  cfg.Lower,
		Limit:  cfg.History,
		Until:  at,
	})
	if err != nil {
		return err
	}
	if err := marketdata.Persist(ctx, a.DB, set); err != nil {
		return err
	}
	log.Printf("[evaluate] stored %d/%d/%d candles", set.Higher.Len(), set.Mid.Len(), set.Lower.Len())
	return nil
}
