package sim

import (
	"github.com/uhyunpark/dropmarket/pkg/app/core/market"
	"github.com/uhyunpark/dropmarket/pkg/app/core/metrics"
)

const (
	// MaxDiscount is the deepest discount an investor bids under the best ask
	MaxDiscount = 0.3
	// ImpulsivityDivisor scales impulsivity down to a per-action probability
	ImpulsivityDivisor = 10
	// BasePriceSales is how many recent sales BasePrice looks at
	BasePriceSales = 50
	// DefaultBasePrice is used for items that never traded and have no bids
	DefaultBasePrice = market.OneDollar
)

// BasePrice estimates a fair price for item: the median of its recent sales,
// else the best bid, else one dollar
func BasePrice(m *market.Market, item string) int64 {
	median, _ := metrics.MedianPrice(m.RecentSales(item, BasePriceSales), BasePriceSales)
	if median > 0 {
		return median
	}
	if bid, ok := m.BestBid(item); ok {
		return bid.Price
	}
	return DefaultBasePrice
}

// isImpulsive draws whether an agent with the given impulsivity acts on impulse
func (c *Context) isImpulsive(impulsivity float64) bool {
	return c.Rand.Float64() < impulsivity/ImpulsivityDivisor
}

// panicSell dumps every sellable unit slightly under the best bid. Items
// without bids are skipped.
func (c *Context) panicSell() {
	items, units := c.sellable()
	for _, item := range items {
		highest, ok := c.bestBid(item)
		if !ok {
			continue
		}
		price := int64(c.uniform(float64(highest)*(1-MaxDiscount), float64(highest)))
		_, _ = c.sell(item, price, units[item])
	}
}
