package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/uhyunpark/dropmarket/params"
	"github.com/uhyunpark/dropmarket/pkg/app/core/metrics"
	"github.com/uhyunpark/dropmarket/pkg/app/sim"
	"github.com/uhyunpark/dropmarket/pkg/results"
	"github.com/uhyunpark/dropmarket/pkg/storage"
	"github.com/uhyunpark/dropmarket/pkg/util"
)

func main() {
	// .env in the working directory, then environment, then SCENARIO_FILE
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

	sugar.Infow("config_loaded",
		"fee_rate", cfg.Market.FeeRate,
		"agents", cfg.Simulation.NumAgents,
		"steps", cfg.Simulation.NumSteps,
		"seed", cfg.Simulation.Seed,
		"items", len(cfg.Items))

	runner, err := sim.Setup(cfg, sugar)
	if err != nil {
		sugar.Fatalw("setup_failed", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	res, err := runner.Run(ctx, cfg.Simulation.NumSteps)
	if err != nil && !res.Cancelled {
		sugar.Fatalw("run_failed", "err", err)
	}
	if err := runner.Market().CheckInvariants(); err != nil {
		sugar.Fatalw("invariant_violated", "err", err)
	}

	runID := fmt.Sprintf("fee-%.4f-seed-%d-%d", res.FeeRate, res.Seed, started.Unix())
	sugar.Infow("run_summary",
		"run_id", runID,
		"steps", res.Steps,
		"sales", res.Summary.Sales,
		"units", res.Summary.Units,
		"gross", res.Summary.Gross,
		"fees", res.Summary.Fees,
		"weighted_mean_price", res.Summary.WeightedMean,
		"drops", res.Drops,
		"self_trade_skips", res.Market.SelfTradeSkips,
		"orders_placed", res.Market.OrdersPlaced,
		"rejected", res.Actions.Rejected,
		"opened", res.Actions.Opened,
		"agents", res.Agents)

	for _, r := range metrics.ItemReports(runner.Market().SalesHistory(), cfg.Market.StepsPerDay) {
		sugar.Infow("item_report",
			"item", r.Item,
			"sales", r.Sales,
			"trading_days", r.TradingDays,
			"last_day", r.Last.Day,
			"last_close", r.Last.Close,
			"last_vwap", r.Last.VWAP,
			"week_volume", r.WeekVolume,
			"month_volume", r.MonthVolume)
	}

	if path := cfg.Storage.ArchivePath; path != "" {
		if err := archive(path, runID, res, runner, started); err != nil {
			sugar.Errorw("archive_failed", "path", path, "err", err)
		} else {
			sugar.Infow("run_archived", "path", path, "run_id", runID)
		}
	}

	if path := cfg.Storage.ResultsPath; path != "" {
		if err := record(path, results.NewRow(runID, res, started)); err != nil {
			sugar.Errorw("results_failed", "path", path, "err", err)
		} else {
			sugar.Infow("run_recorded", "path", path, "run_id", runID)
		}
	}
}

func archive(path, runID string, res sim.Result, runner *sim.Runner, at time.Time) error {
	a, err := storage.Open(path)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.SaveMarket(runID, runner.Market()); err != nil {
		return err
	}
	return a.SaveRun(storage.RunMeta{
		ID:        runID,
		Seed:      res.Seed,
		FeeRate:   res.FeeRate,
		Steps:     res.Steps,
		Agents:    len(runner.Agents()),
		Sales:     res.Summary.Sales,
		Units:     res.Summary.Units,
		Fees:      res.Summary.Fees,
		CreatedAt: at.UTC(),
	})
}

func record(path string, row results.Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	db, err := results.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.InsertRun(row)
}
