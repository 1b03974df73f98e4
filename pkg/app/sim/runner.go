package sim

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/dropmarket/pkg/app/core/market"
	"github.com/uhyunpark/dropmarket/pkg/app/core/metrics"
	"github.com/uhyunpark/dropmarket/pkg/util"
)

// Result summarises one run
type Result struct {
	Steps    uint64          `json:"steps"`
	Seed     int64           `json:"seed"`
	FeeRate  float64         `json:"fee_rate"`
	Summary  metrics.Summary `json:"summary"`
	Market   market.Stats    `json:"market"`
	Actions  ActionStats     `json:"actions"`
	Drops    int64           `json:"drops"`
	Agents   map[string]int  `json:"agents"`
	Duration time.Duration   `json:"duration"`
	// Cancelled is set when the context stopped the run early
	Cancelled bool `json:"cancelled"`
}

// Runner steps the market: each step it runs the drop tick and lets one
// randomly picked agent act.
type Runner struct {
	m      *market.Market
	agents []Agent
	drops  *DropGenerator
	rng    *rand.Rand
	seed   int64

	clock  util.Clock
	logger *zap.SugaredLogger
	ctx    *Context
}

type RunnerOption func(*Runner)

// WithClock replaces the wall clock used for Result.Duration
func WithClock(c util.Clock) RunnerOption {
	return func(r *Runner) { r.clock = c }
}

// WithRunnerLogger sets the progress logger
func WithRunnerLogger(l *zap.SugaredLogger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithSeed records the seed the rng was built from in the result
func WithSeed(seed int64) RunnerOption {
	return func(r *Runner) { r.seed = seed }
}

// NewRunner wires a runner. Every agent must already be registered with m.
func NewRunner(m *market.Market, agents []Agent, drops *DropGenerator, rng *rand.Rand, opts ...RunnerOption) (*Runner, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("runner needs at least one agent")
	}
	for _, a := range agents {
		if _, err := m.Wallet(a.ID); err != nil {
			return nil, fmt.Errorf("agent %d: %w", a.ID, err)
		}
	}
	r := &Runner{
		m:      m,
		agents: agents,
		drops:  drops,
		rng:    rng,
		clock:  util.RealClock{},
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.ctx = &Context{Market: m, Rand: rng, logger: r.logger, stats: &ActionStats{}}
	return r, nil
}

// Market returns the simulated market
func (r *Runner) Market() *market.Market { return r.m }

// Agents returns the agent arena
func (r *Runner) Agents() []Agent { return r.agents }

// Run executes steps starting at the market's current step. It stops early,
// returning the partial result and ctx.Err(), when ctx is cancelled.
func (r *Runner) Run(ctx context.Context, steps uint64) (Result, error) {
	start := r.clock.Now()
	first := r.m.CurrentStep()
	spd := r.m.Params().StepsPerDay

	r.logger.Infow("sim_started",
		"agents", len(r.agents), "steps", steps, "start_step", first,
		"fee_rate", r.m.Params().FeeRate.String())

	var runErr error
	done := uint64(0)
	for ; done < steps; done++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		step := first + done
		if err := r.m.SetStep(step); err != nil {
			return Result{}, err
		}
		if r.drops != nil {
			if _, err := r.drops.Tick(step); err != nil {
				return Result{}, err
			}
		}

		a := r.agents[r.rng.Intn(len(r.agents))]
		r.ctx.Agent = a.ID
		r.ctx.stats.Actions++
		a.Policy.Act(r.ctx)

		if step > first && step%spd == 0 {
			st := r.m.Stats()
			r.logger.Infow("sim_progress",
				"day", r.m.Params().Day(step), "step", step,
				"sales", st.Sales, "fees", st.FeesCollected, "self_trade_skips", st.SelfTradeSkips)
		}
	}

	res := r.result(done)
	res.Duration = r.clock.Since(start)
	res.Cancelled = runErr != nil

	r.logger.Infow("sim_finished",
		"steps", done, "sales", res.Summary.Sales, "units", res.Summary.Units,
		"fees", res.Summary.Fees, "weighted_mean_price", res.Summary.WeightedMean,
		"duration", res.Duration.String(), "cancelled", res.Cancelled)
	return res, runErr
}

func (r *Runner) result(steps uint64) Result {
	kinds := make(map[string]int)
	for k, n := range CountKinds(r.agents) {
		kinds[k.String()] = n
	}
	var drops int64
	if r.drops != nil {
		drops = r.drops.TotalDrops()
	}
	return Result{
		Steps:   steps,
		Seed:    r.seed,
		FeeRate: r.m.Params().FeeRate.InexactFloat64(),
		Summary: metrics.Summarize(metrics.AllSales(r.m.SalesHistory())),
		Market:  r.m.Stats(),
		Actions: r.ctx.Stats(),
		Drops:   drops,
		Agents:  kinds,
	}
}
