package market

import (
	"sort"

	"github.com/uhyunpark/dropmarket/pkg/app/core/account"
	"github.com/uhyunpark/dropmarket/pkg/app/core/orderbook"
)

// Read-only views. Every slice and map returned is a copy.

// Orders returns the resting orders on one side of item's book in priority order
func (m *Market) Orders(item string, side Side) []Order {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ob, ok := m.books[item]
	if !ok {
		return nil
	}
	return ob.Orders(side)
}

// BestBid returns the highest-priority resting buy order for item
func (m *Market) BestBid(item string) (Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ob, ok := m.books[item]; ok {
		return ob.BestBid()
	}
	return Order{}, false
}

// BestAsk returns the highest-priority resting sell order for item
func (m *Market) BestAsk(item string) (Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ob, ok := m.books[item]; ok {
		return ob.BestAsk()
	}
	return Order{}, false
}

// Depth returns aggregated price levels for item
func (m *Market) Depth(item string) (bids, asks []orderbook.PriceLevel) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ob, ok := m.books[item]; ok {
		return ob.BidLevels(), ob.AskLevels()
	}
	return nil, nil
}

// MidPrice returns the mid of item's book, 0 when one-sided
func (m *Market) MidPrice(item string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ob, ok := m.books[item]; ok {
		return ob.MidPrice()
	}
	return 0
}

// RecentSales returns up to n of the latest sales of item, oldest first
func (m *Market) RecentSales(item string, n int) []Sale {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sales.recent(item, n)
}

// Sales returns every sale of item in execution order
func (m *Market) Sales(item string) []Sale {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sales.all(item)
}

// SalesHistory returns every sale grouped by item
func (m *Market) SalesHistory() map[string][]Sale {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sales.history()
}

// SalesCount returns the number of sales executed so far
func (m *Market) SalesCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sales.count
}

// AgentOrders returns the agent's resting orders across every book
func (m *Market) AgentOrders(agent AgentID) (AgentOrders, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.ledger.Exists(agent) {
		return AgentOrders{}, ErrAgentNotFound
	}
	var out AgentOrders
	for _, item := range m.itemsLocked() {
		ob := m.books[item]
		if b, ok := ob.BuyOrderOf(agent); ok {
			out.Buy = append(out.Buy, b)
		}
		for _, a := range ob.Asks() {
			if a.AgentID == agent {
				out.Sell = append(out.Sell, a)
			}
		}
	}
	return out, nil
}

// BuyOrderOf returns the agent's resting bid on item, if any
func (m *Market) BuyOrderOf(agent AgentID, item string) (Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ob, ok := m.books[item]; ok {
		return ob.BuyOrderOf(agent)
	}
	return Order{}, false
}

// AgentSales returns the sales where agent was the seller, in execution order
func (m *Market) AgentSales(agent AgentID) ([]Sale, error) {
	return m.agentTrades(agent, func(s Sale) bool { return s.SellerID == agent })
}

// AgentPurchases returns the sales where agent was the buyer, in execution order
func (m *Market) AgentPurchases(agent AgentID) ([]Sale, error) {
	return m.agentTrades(agent, func(s Sale) bool { return s.BuyerID == agent })
}

func (m *Market) agentTrades(agent AgentID, keep func(Sale) bool) ([]Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.ledger.Exists(agent) {
		return nil, ErrAgentNotFound
	}
	var out []Sale
	for _, sales := range m.sales.byItem {
		for _, s := range sales {
			if keep(s) {
				out = append(out, s)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Wallet returns a snapshot of the agent's cash and inventory
func (m *Market) Wallet(agent AgentID) (account.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledger.Snapshot(agent)
}

// UnlockedUnits returns how many units of item the agent could list right now
func (m *Market) UnlockedUnits(agent AgentID, item string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledger.UnlockedUnits(agent, item, m.step)
}

// AvailableItems lists items with at least one resting sell order, sorted
func (m *Market) AvailableItems() []string {
	return m.availableItems(func(string) bool { return true })
}

// AvailableItemsIn is AvailableItems restricted to a catalog category.
// Items missing from the catalog never match.
func (m *Market) AvailableItemsIn(cat Category) []string {
	return m.availableItems(func(item string) bool {
		it, err := m.catalog.Lookup(item)
		return err == nil && it.Category == cat
	})
}

func (m *Market) availableItems(keep func(string) bool) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for _, item := range m.itemsLocked() {
		if _, ok := m.books[item].BestAsk(); ok && keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// Items returns every item that has had a book opened, sorted
func (m *Market) Items() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.itemsLocked()
}

// Agents returns every registered agent id in ascending order
func (m *Market) Agents() []AgentID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledger.IDs()
}

// Stats returns the running counters
func (m *Market) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// FeesCollected returns the market's fee total in cents
func (m *Market) FeesCollected() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats.FeesCollected
}

// TotalCash returns the sum of every wallet balance
func (m *Market) TotalCash() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledger.TotalCash()
}

// TotalUnits returns every unit of item in existence, held or escrowed
func (m *Market) TotalUnits(item string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledger.TotalUnits(item)
}
