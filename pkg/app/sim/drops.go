package sim

import (
	"fmt"
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"github.com/uhyunpark/dropmarket/pkg/app/core/market"
)

// DefaultDropItem is dropped when the pool is empty
const DefaultDropItem = "Default Item"

// DropConfig controls the weekly drop
type DropConfig struct {
	// BaseChance is the fraction of eligible agents rewarded each day, in [0, 1]
	BaseChance float64
	// MaxPerWeek is the number of drops per account per week
	MaxPerWeek int
	// ResetDay is the weekday (0 = Monday) on which everyone becomes eligible again
	ResetDay int
	// TradeLockOn applies the market trade lock to dropped items
	TradeLockOn bool
}

// PoolItem is an item that can drop, with its relative weight
type PoolItem struct {
	Name   string
	Weight float64
}

// DropGenerator rewards agents with items once per simulated day. Each agent
// can win once per week; eligibility resets on ResetDay.
type DropGenerator struct {
	m      *market.Market
	rng    *rand.Rand
	cfg    DropConfig
	logger *zap.SugaredLogger

	agents   []market.AgentID // sorted
	accounts map[market.AgentID]int
	eligible map[market.AgentID]bool

	items      []string
	cumWeights []float64

	totalDrops int64
}

// NewDropGenerator builds a generator over agents. Pool entries with zero
// weight never drop.
func NewDropGenerator(m *market.Market, agents []Agent, pool []PoolItem, cfg DropConfig, rng *rand.Rand, logger *zap.SugaredLogger) (*DropGenerator, error) {
	if cfg.BaseChance < 0 || cfg.BaseChance > 1 {
		return nil, fmt.Errorf("base drop chance %v outside [0, 1]", cfg.BaseChance)
	}
	if cfg.ResetDay < 0 || cfg.ResetDay > 6 {
		return nil, fmt.Errorf("reset day %d outside 0..6", cfg.ResetDay)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	g := &DropGenerator{
		m:        m,
		rng:      rng,
		cfg:      cfg,
		logger:   logger,
		accounts: make(map[market.AgentID]int, len(agents)),
		eligible: make(map[market.AgentID]bool, len(agents)),
	}
	for _, a := range agents {
		g.agents = append(g.agents, a.ID)
		g.accounts[a.ID] = AccountsOf(a.Policy)
	}
	sort.Slice(g.agents, func(i, j int) bool { return g.agents[i] < g.agents[j] })
	g.resetEligibility()

	var total float64
	for _, it := range pool {
		if it.Weight < 0 {
			return nil, fmt.Errorf("drop weight for %q is negative", it.Name)
		}
		if it.Weight == 0 {
			continue
		}
		total += it.Weight
		g.items = append(g.items, it.Name)
		g.cumWeights = append(g.cumWeights, total)
	}
	if len(g.items) == 0 {
		g.items = []string{DefaultDropItem}
		g.cumWeights = []float64{1}
	}
	return g, nil
}

func (g *DropGenerator) resetEligibility() {
	for _, id := range g.agents {
		g.eligible[id] = true
	}
}

func (g *DropGenerator) isResetDay(step uint64) bool {
	return int(g.m.Params().Day(step)%7) == g.cfg.ResetDay
}

// Eligible returns how many agents can still win this week
func (g *DropGenerator) Eligible() int {
	n := 0
	for _, ok := range g.eligible {
		if ok {
			n++
		}
	}
	return n
}

// TotalDrops returns the units dropped so far
func (g *DropGenerator) TotalDrops() int64 { return g.totalDrops }

// Tick runs the daily drop on day boundaries and does nothing otherwise.
// It returns the units granted.
func (g *DropGenerator) Tick(step uint64) (int64, error) {
	if !g.m.Params().IsDayBoundary(step) {
		return 0, nil
	}
	if g.isResetDay(step) {
		g.resetEligibility()
	}

	winners := g.selectWinners()
	if len(winners) == 0 {
		return 0, nil
	}

	var granted int64
	for _, id := range winners {
		qty := int64(g.cfg.MaxPerWeek * g.accounts[id])
		if qty <= 0 {
			continue
		}
		for item, n := range g.split(qty) {
			if err := g.m.GrantItems(id, item, n, g.cfg.TradeLockOn); err != nil {
				return granted, fmt.Errorf("drop %d %q to agent %d: %w", n, item, id, err)
			}
		}
		granted += qty
	}
	g.totalDrops += granted

	g.logger.Debugw("drops_granted",
		"step", step, "day", g.m.Params().Day(step), "winners", len(winners), "units", granted)
	return granted, nil
}

// selectWinners samples floor(eligible × chance) agents without replacement
// and marks them ineligible for the rest of the week
func (g *DropGenerator) selectWinners() []market.AgentID {
	pool := make([]market.AgentID, 0, len(g.agents))
	for _, id := range g.agents {
		if g.eligible[id] {
			pool = append(pool, id)
		}
	}
	count := min(int(float64(len(pool))*g.cfg.BaseChance), len(pool))
	if count <= 0 {
		return nil
	}

	// partial Fisher-Yates
	for i := 0; i < count; i++ {
		j := i + g.rng.Intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	winners := pool[:count]
	for _, id := range winners {
		g.eligible[id] = false
	}
	return winners
}

// split assigns qty units to items by weight, one independent draw per unit
func (g *DropGenerator) split(qty int64) map[string]int64 {
	if len(g.items) == 1 {
		return map[string]int64{g.items[0]: qty}
	}
	out := make(map[string]int64)
	for i := int64(0); i < qty; i++ {
		out[g.pickItem()]++
	}
	return out
}

func (g *DropGenerator) pickItem() string {
	total := g.cumWeights[len(g.cumWeights)-1]
	r := g.rng.Float64() * total
	i := sort.SearchFloat64s(g.cumWeights, r)
	if i < len(g.cumWeights) && g.cumWeights[i] == r {
		i++
	}
	return g.items[min(i, len(g.items)-1)]
}
