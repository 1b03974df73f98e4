package sim

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/uhyunpark/dropmarket/pkg/app/core/market"
)

// Normal is a normal distribution clipped to [Min, Max]
type Normal struct {
	Mean, StdDev float64
	Min, Max     float64
}

// Sample draws one clipped value
func (n Normal) Sample(rng *rand.Rand) float64 {
	return math.Min(math.Max(rng.NormFloat64()*n.StdDev+n.Mean, n.Min), n.Max)
}

// PopulationConfig describes how agents are generated
type PopulationConfig struct {
	Weights map[Kind]float64
	// Balance is in dollars; opening balances are converted to cents
	Balance Normal
	// FarmSize is the number of accounts a farmer controls, rounded
	FarmSize Normal
}

// DefaultPopulation mirrors the reference scenario
var DefaultPopulation = PopulationConfig{
	Weights:  map[Kind]float64{Novice: 0.4, Trader: 0.2, Investor: 0.3, Farmer: 0.1},
	Balance:  Normal{Mean: 650, StdDev: 300, Min: 0, Max: 2000},
	FarmSize: Normal{Mean: 100, StdDev: 50, Min: 1, Max: 1000},
}

// GenerateAgents creates n agents with ids 0..n-1. Balances and farm sizes are
// drawn for the whole population first, then each agent's kind and traits.
func GenerateAgents(n int, cfg PopulationConfig, rng *rand.Rand) ([]Agent, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative population %d", n)
	}
	var total float64
	cum := make([]float64, len(Kinds))
	for i, k := range Kinds {
		w := cfg.Weights[k]
		if w < 0 {
			return nil, fmt.Errorf("negative weight for %s", k)
		}
		total += w
		cum[i] = total
	}
	if total <= 0 {
		return nil, fmt.Errorf("agent kind weights sum to %v", total)
	}

	balances := make([]int64, n)
	for i := range balances {
		balances[i] = int64(cfg.Balance.Sample(rng) * float64(market.OneDollar))
	}
	farms := make([]int, n)
	for i := range farms {
		farms[i] = int(math.Min(math.Max(math.Round(rng.NormFloat64()*cfg.FarmSize.StdDev+cfg.FarmSize.Mean), cfg.FarmSize.Min), cfg.FarmSize.Max))
	}

	agents := make([]Agent, n)
	for i := range agents {
		r := rng.Float64() * total
		kind := Kinds[len(Kinds)-1]
		for j, c := range cum {
			if r < c {
				kind = Kinds[j]
				break
			}
		}
		traits := Traits{Impulsivity: rng.Float64()}

		var p Policy
		switch kind {
		case Novice:
			p = &NovicePolicy{Traits: traits}
		case Trader:
			traits.RiskTolerance = rng.Float64()
			p = &TraderPolicy{Traits: traits}
		case Investor:
			traits.RiskTolerance = rng.Float64()
			p = &InvestorPolicy{Traits: traits}
		default:
			p = &FarmerPolicy{Traits: traits, Accounts: farms[i]}
		}
		agents[i] = Agent{ID: market.AgentID(i), Balance: balances[i], Policy: p}
	}
	return agents, nil
}

// CountKinds tallies agents by kind
func CountKinds(agents []Agent) map[Kind]int {
	out := make(map[Kind]int)
	for _, a := range agents {
		out[a.Policy.Kind()]++
	}
	return out
}
