package sim

import (
	"errors"

	"github.com/uhyunpark/dropmarket/pkg/app/core/market"
)

// buyAttempts bounds retries after a duplicate-bid or funds rejection
const buyAttempts = 3

// Traits shared by every policy
type Traits struct {
	Impulsivity   float64 `json:"impulsivity"`    // [0, 1)
	RiskTolerance float64 `json:"risk_tolerance"` // [0, 1), unused by novices and farmers
}

// NovicePolicy is a casual user with no strategy: it buys containers to open
// them or sells whatever it holds a little under the cheapest listing.
type NovicePolicy struct {
	Traits
}

func (p *NovicePolicy) Kind() Kind { return Novice }

func (p *NovicePolicy) Act(c *Context) {
	if c.Rand.Intn(2) == 0 {
		p.buyContainer(c)
	} else {
		p.sellItems(c)
	}
}

// buyContainer sweeps as many listings of a random item as the agent can
// afford, buys a random amount of that and opens what it got
func (p *NovicePolicy) buyContainer(c *Context) {
	items := c.Market.AvailableItems()
	if len(items) == 0 {
		return
	}
	item := items[c.Rand.Intn(len(items))]
	asks := c.Market.Orders(item, market.Sell)
	if len(asks) == 0 {
		return
	}

	budget := c.available()
	var price, spent, affordable int64
	for _, a := range asks {
		n := (budget - spent) / a.Price
		if n <= 0 {
			break
		}
		n = min(n, a.Remaining)
		price = a.Price
		spent += price * n
		affordable += n
	}
	if affordable == 0 {
		return
	}
	qty := c.between(1, affordable)

	for attempt := 0; attempt < buyAttempts; attempt++ {
		r, err := c.buy(item, price, qty)
		if err == nil {
			if r.Filled > 0 {
				c.consume(item, r.Filled)
			}
			return
		}
		if id, ok := isDuplicateBuy(err); ok {
			c.cancel(id)
			continue
		}
		if errors.Is(err, market.ErrInsufficientFunds) {
			p.sellItems(c)
			continue
		}
		return
	}
}

// sellItems lists a random amount of a random held item just under the best
// ask, or around the base price when nothing is listed
func (p *NovicePolicy) sellItems(c *Context) {
	items, units := c.sellable()
	if len(items) == 0 {
		return
	}
	if c.isImpulsive(p.Impulsivity) {
		c.panicSell()
		return
	}

	item := items[c.Rand.Intn(len(items))]
	qty := c.between(1, units[item])

	var price int64
	if lowest, ok := c.bestAsk(item); ok {
		price = lowest - c.between(market.OneCent, market.OneDollar)
	} else {
		price = int64(float64(BasePrice(c.Market, item)) * c.uniform(0.95, 1.05))
	}
	_, _ = c.sell(item, price, qty)
}

// TraderPolicy looks for items trading near their recent low on an upward
// trend (or with a wide spread), buys them and sells once the best bid covers
// its entry price plus margin and fee.
type TraderPolicy struct {
	Traits
	entries map[string][]int64 // item -> entry prices of open positions
}

const (
	traderLookback  = 250
	traderMinSales  = 5
	traderMinSpread = 0.1 // spread as a fraction of the mean price
)

func (p *TraderPolicy) Kind() Kind { return Trader }

func (p *TraderPolicy) Act(c *Context) {
	if p.entries == nil {
		p.entries = make(map[string][]int64)
	}
	if items, _ := c.sellable(); len(items) > 0 && c.isImpulsive(p.Impulsivity) {
		c.panicSell()
		return
	}

	fee := c.feeRate()
	for _, item := range c.Market.AvailableItems() {
		recent := c.Market.RecentSales(item, traderLookback)
		if len(recent) < traderMinSales {
			continue
		}
		prices := make([]float64, len(recent))
		lo, hi := recent[0].Price, recent[0].Price
		for i, s := range recent {
			prices[i] = float64(s.Price)
			lo = min(lo, s.Price)
			hi = max(hi, s.Price)
		}
		mid := len(prices) / 2
		trendUp := mean(prices[mid:]) > mean(prices[:mid])
		spread := float64(hi-lo) * (1 - fee)

		if p.takeProfit(c, item, fee) {
			continue
		}

		bestAsk, ok := c.bestAsk(item)
		if !ok {
			continue
		}
		nearLow := float64(bestAsk) <= float64(lo)*(1+p.RiskTolerance)
		if !nearLow || !(trendUp || spread >= mean(prices)*traderMinSpread) {
			continue
		}

		qty := int64(float64(c.available()/bestAsk) * p.RiskTolerance)
		if qty <= 0 {
			continue
		}
		for attempt := 0; attempt < buyAttempts; attempt++ {
			r, err := c.buy(item, bestAsk, qty)
			if err == nil {
				if r.Filled > 0 {
					p.entries[item] = append(p.entries[item], bestAsk)
				}
				break
			}
			id, dup := isDuplicateBuy(err)
			if !dup {
				break
			}
			c.cancel(id)
		}
	}
}

// takeProfit sells the whole unlocked position into the best bid once it beats
// an entry price by the trader's margin after fees
func (p *TraderPolicy) takeProfit(c *Context, item string, fee float64) bool {
	units, err := c.Market.UnlockedUnits(c.Agent, item)
	if err != nil || units == 0 {
		return false
	}
	highest, ok := c.bestBid(item)
	if !ok {
		return false
	}
	for _, entry := range p.entries[item] {
		desired := float64(entry) * (1 + p.RiskTolerance) / (1 - fee)
		if float64(highest) < desired {
			continue
		}
		if _, err := c.sell(item, highest, units); err != nil {
			return false
		}
		delete(p.entries, item)
		return true
	}
	return false
}

// InvestorPolicy bids under the market for a share of its balance and takes
// profit when the best bid beats its average entry by its risk tolerance.
type InvestorPolicy struct {
	Traits
}

func (p *InvestorPolicy) Kind() Kind { return Investor }

func (p *InvestorPolicy) Act(c *Context) {
	if items, _ := c.sellable(); len(items) > 0 && c.isImpulsive(p.Impulsivity) {
		c.panicSell()
		return
	}
	if p.takeProfit(c) {
		return
	}
	p.buyDip(c)
}

type position struct {
	qty      int64
	avgPrice int64
}

// positions rebuilds average entry prices from the agent's trade history.
// Sold units are taken out at the average purchase cost.
func positions(c *Context) map[string]position {
	bought, err := c.Market.AgentPurchases(c.Agent)
	if err != nil || len(bought) == 0 {
		return nil
	}
	sold, _ := c.Market.AgentSales(c.Agent)

	type tally struct{ boughtQty, boughtCost, soldQty int64 }
	by := make(map[string]*tally)
	for _, s := range bought {
		t := by[s.Item]
		if t == nil {
			t = &tally{}
			by[s.Item] = t
		}
		t.boughtQty += s.Quantity
		t.boughtCost += s.Gross()
	}
	for _, s := range sold {
		if t := by[s.Item]; t != nil {
			t.soldQty += s.Quantity
		}
	}

	out := make(map[string]position)
	for item, t := range by {
		net := t.boughtQty - t.soldQty
		if net <= 0 {
			continue
		}
		cost := float64(t.boughtCost)
		if t.soldQty > 0 {
			cost -= float64(t.boughtCost) / float64(t.boughtQty) * float64(t.soldQty)
		}
		out[item] = position{qty: net, avgPrice: int64(cost / float64(net))}
	}
	return out
}

func (p *InvestorPolicy) takeProfit(c *Context) bool {
	pos := positions(c)
	if len(pos) == 0 {
		return false
	}
	fee := c.feeRate()
	items, units := c.sellable()
	for _, item := range items {
		entry, ok := pos[item]
		if !ok {
			continue
		}
		highest, ok := c.bestBid(item)
		if !ok {
			continue
		}
		target := float64(entry.avgPrice) * (1 + p.RiskTolerance)
		if float64(highest) < target/(1-fee) {
			continue
		}
		qty := c.between(max(units[item]/5, 1), units[item])
		_, _ = c.sell(item, highest, qty)
		return true
	}
	return false
}

func (p *InvestorPolicy) buyDip(c *Context) {
	items := c.Market.AvailableItems()
	if len(items) == 0 {
		return
	}
	item := items[c.Rand.Intn(len(items))]
	lowest, ok := c.bestAsk(item)
	if !ok {
		return
	}
	discount := (1 - p.RiskTolerance) * MaxDiscount
	price := max(int64(float64(lowest)*(1-discount)), market.MinPrice)
	qty := int64(float64(c.available()) * p.RiskTolerance / float64(price))
	if qty > 0 {
		_, _ = c.buy(item, price, qty)
	}
}

// FarmerPolicy runs a bot farm: it collects drops on many accounts and sells
// them in batches around the base price, or dumps everything on impulse.
type FarmerPolicy struct {
	Traits
	Accounts int `json:"accounts"`
}

const farmerMaxBatches = 10

func (p *FarmerPolicy) Kind() Kind { return Farmer }

func (p *FarmerPolicy) NumberOfAccounts() int { return p.Accounts }

func (p *FarmerPolicy) Act(c *Context) {
	if c.isImpulsive(p.Impulsivity) {
		c.panicSell()
		return
	}
	p.sellFarmed(c)
}

func (p *FarmerPolicy) sellFarmed(c *Context) {
	items, units := c.sellable()
	for _, item := range items {
		remaining := units[item]
		base := float64(BasePrice(c.Market, item))
		batches := c.between(1, farmerMaxBatches)
		size := max(1, units[item]/batches)

		for i := int64(0); i < batches && remaining > 0; i++ {
			price := int64(base * c.uniform(0.9, 1.1))
			if _, err := c.sell(item, price, min(size, remaining)); err != nil {
				break
			}
			remaining -= size
		}
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
