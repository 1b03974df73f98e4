package sim

import (
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"github.com/uhyunpark/dropmarket/params"
	"github.com/uhyunpark/dropmarket/pkg/app/core/market"
)

// Catalog registers the configured drop pool as catalog items
func Catalog(items []params.Item) (*market.Catalog, []PoolItem, error) {
	c := market.NewCatalog()
	pool := make([]PoolItem, 0, len(items))
	for _, it := range items {
		cat := market.Container
		if it.Category != "" {
			parsed, err := market.ParseCategory(it.Category)
			if err != nil {
				return nil, nil, err
			}
			cat = parsed
		}
		rarity := market.BaseGrade
		if it.Rarity != "" {
			parsed, err := market.ParseRarity(it.Rarity)
			if err != nil {
				return nil, nil, err
			}
			rarity = parsed
		}
		item := market.Item{Name: it.Name, Category: cat, Rarity: rarity, Exterior: it.Exterior}
		if err := c.Register(item); err != nil {
			return nil, nil, err
		}
		pool = append(pool, PoolItem{Name: item.MarketHashName(), Weight: it.Weight})
	}
	return c, pool, nil
}

// Setup builds a market, its population and drop generator from cfg and
// returns a runner ready for cfg.Simulation.NumSteps steps. All randomness
// comes from one source seeded with cfg.Simulation.Seed.
func Setup(cfg params.Config, logger *zap.SugaredLogger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	mp, err := market.NewParams(cfg.Market.FeeRate, cfg.Market.StepsPerDay, cfg.Market.TradeLockDays, cfg.Market.BalanceCap*market.OneDollar)
	if err != nil {
		return nil, err
	}
	catalog, pool, err := Catalog(cfg.Items)
	if err != nil {
		return nil, err
	}
	m, err := market.New(mp, market.WithLogger(logger.Named("market")), market.WithCatalog(catalog))
	if err != nil {
		return nil, err
	}

	weights := make(map[Kind]float64, len(cfg.Population.Weights))
	for name, w := range cfg.Population.Weights {
		k, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		weights[k] = w
	}
	pop := PopulationConfig{
		Weights:  weights,
		Balance:  Normal(cfg.Population.Balance),
		FarmSize: Normal(cfg.Population.FarmSize),
	}

	rng := rand.New(rand.NewSource(cfg.Simulation.Seed))
	agents, err := GenerateAgents(cfg.Simulation.NumAgents, pop, rng)
	if err != nil {
		return nil, err
	}
	for _, a := range agents {
		if err := m.AddAgent(a.ID, a.Balance); err != nil {
			return nil, fmt.Errorf("register agent %d: %w", a.ID, err)
		}
	}

	drops, err := NewDropGenerator(m, agents, pool, DropConfig{
		BaseChance:  cfg.Drops.BaseChance,
		MaxPerWeek:  cfg.Drops.MaxPerWeek,
		ResetDay:    cfg.Drops.ResetDay,
		TradeLockOn: cfg.Drops.TradeLockOn,
	}, rng, logger.Named("drops"))
	if err != nil {
		return nil, err
	}

	return NewRunner(m, agents, drops, rng,
		WithRunnerLogger(logger.Named("sim")),
		WithSeed(cfg.Simulation.Seed))
}
