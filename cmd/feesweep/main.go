package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/dropmarket/params"
	"github.com/uhyunpark/dropmarket/pkg/app/sim"
	"github.com/uhyunpark/dropmarket/pkg/results"
	"github.com/uhyunpark/dropmarket/pkg/util"
)

// feesweep runs every configured fee rate for Sweep.Runs seeds, stores one
// row per run in the results database and writes a per-fee CSV summary.
func main() {
	cfg, err := params.LoadFromEnv("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := util.NewFromConfig(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	rows, err := sweep(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalw("sweep_failed", "err", err, "completed", len(rows))
	}
	sugar.Infow("sweep_finished",
		"runs", len(rows), "fee_rates", len(cfg.Sweep.FeeRates),
		"duration", time.Since(started).String())

	summary := results.Summarize(rows)
	if path := cfg.Storage.ResultsPath; path != "" {
		if summary, err = store(path, rows); err != nil {
			sugar.Fatalw("results_failed", "path", path, "err", err)
		}
		sugar.Infow("runs_recorded", "path", path, "runs", len(rows))
	}

	for _, s := range summary {
		sugar.Infow("fee_summary",
			"fee_rate", s.FeeRate, "runs", s.Runs,
			"sales_mean", s.Sales.Mean, "sales_stdev", s.Sales.Stdev,
			"price_mean", s.Price.Mean, "fees_mean", s.Fees.Mean)
	}

	if path := cfg.Sweep.CSVPath; path != "" {
		if err := writeCSV(path, summary); err != nil {
			sugar.Fatalw("csv_failed", "path", path, "err", err)
		}
		sugar.Infow("csv_written", "path", path, "fee_rates", len(summary))
	}
}

type job struct {
	fee  float64
	seed int64
}

func sweep(ctx context.Context, cfg params.Config, logger *zap.SugaredLogger) ([]results.Row, error) {
	var jobs []job
	for _, fee := range cfg.Sweep.FeeRates {
		for i := 0; i < cfg.Sweep.Runs; i++ {
			jobs = append(jobs, job{fee: fee, seed: cfg.Simulation.Seed + int64(i)})
		}
	}

	var (
		mu   sync.Mutex
		rows = make([]results.Row, 0, len(jobs))
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Sweep.Workers, 1))

	for _, j := range jobs {
		g.Go(func() error {
			c := cfg
			c.Market.FeeRate = j.fee
			c.Simulation.Seed = j.seed

			runner, err := sim.Setup(c, nil)
			if err != nil {
				return fmt.Errorf("setup fee %v seed %d: %w", j.fee, j.seed, err)
			}
			at := time.Now()
			res, err := runner.Run(ctx, c.Simulation.NumSteps)
			if err != nil {
				return fmt.Errorf("run fee %v seed %d: %w", j.fee, j.seed, err)
			}

			row := results.NewRow(fmt.Sprintf("fee-%.4f-seed-%d", j.fee, j.seed), res, at)
			logger.Infow("sweep_run_finished",
				"fee_rate", j.fee, "seed", j.seed,
				"sales", row.Sales, "fees", row.Fees, "duration_ms", row.DurationMS)

			mu.Lock()
			rows = append(rows, row)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	sort.Slice(rows, func(a, b int) bool {
		if rows[a].FeeRate != rows[b].FeeRate {
			return rows[a].FeeRate < rows[b].FeeRate
		}
		return rows[a].Seed < rows[b].Seed
	})
	return rows, err
}

// store records rows and returns the summary over everything in the
// database, including earlier sweeps
func store(path string, rows []results.Row) ([]results.FeeSummary, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	db, err := results.Open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	if err := db.InsertRuns(rows); err != nil {
		return nil, err
	}
	return db.SummaryByFee()
}

func writeCSV(path string, summary []results.FeeSummary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := results.WriteCSV(f, summary); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
