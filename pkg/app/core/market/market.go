// Package market is the matching engine of the marketplace: one order book per
// item, price/time priority matching, atomic two-party settlement and the
// append-only sales ledger.
package market

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/uhyunpark/dropmarket/pkg/app/core/account"
	"github.com/uhyunpark/dropmarket/pkg/app/core/orderbook"
)

type (
	AgentID = orderbook.AgentID
	OrderID = orderbook.OrderID
	Order   = orderbook.Order
	Side    = orderbook.Side
)

const (
	Buy  = orderbook.Buy
	Sell = orderbook.Sell
)

// Receipt reports what a placement did
type Receipt struct {
	OrderID   OrderID
	Filled    int64 // units of the new order executed immediately
	Remaining int64 // units left resting (0 if fully filled)
	Sales     []Sale
}

// Resting reports whether the placed order is still in the book
func (r Receipt) Resting() bool { return r.Remaining > 0 }

// Stats are running counters for one market
type Stats struct {
	OrdersPlaced    int
	OrdersCancelled int
	Sales           int
	UnitsTraded     int64
	Volume          int64 // gross traded value in cents
	FeesCollected   int64
	SelfTradeSkips  int
	UnitsGranted    int64
	UnitsConsumed   int64
}

// AgentOrders splits an agent's resting orders by side
type AgentOrders struct {
	Buy  []Order
	Sell []Order
}

// Market owns the agents' wallets, the per-item books and the sales ledger.
// All mutation goes through its methods; one call completes before the next
// begins.
type Market struct {
	mu sync.RWMutex

	params  Params
	step    uint64
	ledger  *account.Ledger
	books   map[string]*orderbook.OrderBook
	orders  map[OrderID]string // resting order -> item
	sales   *salesLedger
	catalog *Catalog

	lastOrderID OrderID
	stats       Stats

	logger *zap.SugaredLogger
}

type Option func(*Market)

// WithLogger sets the logger; the default discards everything
func WithLogger(l *zap.SugaredLogger) Option {
	return func(m *Market) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithCatalog attaches item metadata used by category queries
func WithCatalog(c *Catalog) Option {
	return func(m *Market) {
		if c != nil {
			m.catalog = c
		}
	}
}

// WithStartStep starts the step counter somewhere other than 0
func WithStartStep(step uint64) Option {
	return func(m *Market) { m.step = step }
}

// New creates an empty market
func New(params Params, opts ...Option) (*Market, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	m := &Market{
		params:  params,
		ledger:  account.NewLedger(params.BalanceCap),
		books:   make(map[string]*orderbook.OrderBook),
		orders:  make(map[OrderID]string),
		sales:   newSalesLedger(),
		catalog: NewCatalog(),
		logger:  zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// must panics on a broken internal invariant. Validation happens before any
// mutation, so the ledger and book calls after it cannot fail.
func must(err error) {
	if err != nil {
		panic(fmt.Sprintf("market invariant violated: %v", err))
	}
}

// Params returns the market configuration
func (m *Market) Params() Params { return m.params }

// Catalog returns the item catalog
func (m *Market) Catalog() *Catalog { return m.catalog }

// AddAgent opens a wallet for an agent
func (m *Market) AddAgent(id AgentID, balance int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger.Register(id, balance)
}

// CurrentStep returns the simulation step
func (m *Market) CurrentStep() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.step
}

// Advance moves the clock one step forward and returns the new step
func (m *Market) Advance() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.step++
	return m.step
}

// SetStep moves the clock to step; it never moves backwards
func (m *Market) SetStep(step uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if step < m.step {
		return fmt.Errorf("%w: %d -> %d", ErrStepRegression, m.step, step)
	}
	m.step = step
	return nil
}

func (m *Market) book(item string) *orderbook.OrderBook {
	ob, ok := m.books[item]
	if !ok {
		ob = orderbook.NewOrderBook(item)
		m.books[item] = ob
	}
	return ob
}

// validatePlacement runs every placement check without touching state
func (m *Market) validatePlacement(agent AgentID, item string, side Side, price, qty int64) error {
	if price < MinPrice {
		return fmt.Errorf("%w: %d", ErrInvalidPrice, price)
	}
	if qty < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	if !side.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidSide, side)
	}
	if item == "" {
		return ErrInvalidItem
	}
	balance, available, err := m.ledger.Balance(agent)
	if err != nil {
		return err
	}
	if balance < 0 {
		return fmt.Errorf("%w: agent %d balance %d", ErrNegativeBalance, agent, balance)
	}

	if side == Buy {
		if ob, ok := m.books[item]; ok {
			if existing, ok := ob.BuyOrderOf(agent); ok {
				return &DuplicateBuyOrderError{AgentID: agent, Item: item, OrderID: existing.ID}
			}
		}
		if price > math.MaxInt64/qty {
			return fmt.Errorf("%w: %d × %d overflows", ErrInsufficientFunds, price, qty)
		}
		if cost := price * qty; cost > available {
			return fmt.Errorf("%w: agent %d has %d available, order costs %d", ErrInsufficientFunds, agent, available, cost)
		}
		return nil
	}

	unlocked, err := m.ledger.UnlockedUnits(agent, item, m.step)
	if err != nil {
		return err
	}
	if unlocked < qty {
		return fmt.Errorf("%w: agent %d has %d unlocked %q, order sells %d", ErrInsufficientInventory, agent, unlocked, item, qty)
	}
	return nil
}

// PlaceOrder validates and rests a new order, then matches the item's book.
// A rejected order leaves the market unchanged.
func (m *Market) PlaceOrder(agent AgentID, item string, side Side, price, qty int64) (Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validatePlacement(agent, item, side, price, qty); err != nil {
		m.logger.Debugw("order_rejected",
			"agent", agent, "item", item, "side", side.String(),
			"price", price, "qty", qty, "err", err)
		return Receipt{}, err
	}

	m.lastOrderID++
	o := Order{
		ID:        m.lastOrderID,
		AgentID:   agent,
		Item:      item,
		Side:      side,
		Price:     price,
		Quantity:  qty,
		Remaining: qty,
		CreatedAt: m.step,
	}

	if side == Buy {
		must(m.ledger.ReserveFunds(agent, price*qty))
	} else {
		must(m.ledger.EscrowUnits(agent, account.EscrowID(o.ID), item, qty, m.step))
	}

	ob := m.book(item)
	must(ob.Add(o))
	m.orders[o.ID] = item
	m.stats.OrdersPlaced++

	m.logger.Debugw("order_placed",
		"order_id", o.ID, "agent", agent, "item", item, "side", side.String(),
		"price", price, "qty", qty, "step", m.step)

	sales := m.match(ob)

	r := Receipt{OrderID: o.ID, Sales: sales}
	if resting, ok := ob.Get(o.ID); ok {
		r.Remaining = resting.Remaining
	}
	r.Filled = qty - r.Remaining
	return r, nil
}

// match crosses the book until no bid can trade. Bids are tried in priority
// order; each takes the best ask at or below its price that belongs to a
// different agent. A bid with no such ask stays resting and the next bid is
// tried.
func (m *Market) match(ob *orderbook.OrderBook) []Sale {
	var sales []Sale
	// each (bid, ask) pair counts once even though the book is rescanned
	// after every fill
	type pair struct{ bid, ask OrderID }
	counted := make(map[pair]bool)
	for {
		bestBid, okBid := ob.BestBid()
		bestAsk, okAsk := ob.BestAsk()
		if !okBid || !okAsk || bestBid.Price < bestAsk.Price {
			return sales
		}

		traded := false
		for _, b := range ob.Bids() {
			if b.Price < bestAsk.Price {
				break
			}
			a, skipped, ok := ob.BestAskFor(b.Price, b.AgentID)
			fresh := 0
			for _, id := range skipped {
				if !counted[pair{b.ID, id}] {
					counted[pair{b.ID, id}] = true
					fresh++
				}
			}
			if fresh > 0 {
				m.stats.SelfTradeSkips += fresh
				m.logger.Debugw("self_trade_skipped",
					"item", ob.Item(), "agent", b.AgentID, "buy_order_id", b.ID, "skipped_asks", fresh)
			}
			if !ok {
				continue
			}
			sales = append(sales, m.settle(ob, b, a))
			traded = true
			break
		}
		if !traded {
			return sales
		}
	}
}

// settle executes one fill between a resting bid and ask at the ask's price.
// Funds, fee, units and the sale record change together; nothing here can fail
// because placement already reserved the cash and the units.
func (m *Market) settle(ob *orderbook.OrderBook, b, a Order) Sale {
	qty := min(b.Remaining, a.Remaining)
	price := a.Price
	gross := price * qty
	fee := m.params.Fee(gross)

	must(m.ledger.SettleBuy(b.AgentID, b.Price*qty, gross))
	must(m.ledger.Credit(a.AgentID, gross-fee))
	must(m.ledger.TakeEscrow(a.AgentID, account.EscrowID(a.ID), qty))
	must(m.ledger.Grant(b.AgentID, ob.Item(), qty, m.step, m.params.UnlockStep(m.step)))

	sale := m.sales.append(Sale{
		Item:        ob.Item(),
		BuyerID:     b.AgentID,
		SellerID:    a.AgentID,
		Price:       price,
		Quantity:    qty,
		Fee:         fee,
		Step:        m.step,
		BuyOrderID:  b.ID,
		SellOrderID: a.ID,
	})

	for _, id := range []OrderID{b.ID, a.ID} {
		o, err := ob.Fill(id, qty)
		must(err)
		if o.Remaining == 0 {
			delete(m.orders, id)
		}
	}

	m.stats.Sales++
	m.stats.UnitsTraded += qty
	m.stats.Volume += gross
	m.stats.FeesCollected += fee

	m.logger.Debugw("sale_executed",
		"sale_id", sale.ID, "item", sale.Item, "buyer", sale.BuyerID, "seller", sale.SellerID,
		"price", price, "qty", qty, "fee", fee, "step", m.step)
	return sale
}

// CancelOrder removes a resting order and releases what it reserved.
// Unknown, filled and already cancelled ids return ErrOrderNotFound.
func (m *Market) CancelOrder(id OrderID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	o, ok := m.books[item].Remove(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	delete(m.orders, id)

	if o.Side == Buy {
		must(m.ledger.ReleaseFunds(o.AgentID, o.Notional()))
	} else {
		_, err := m.ledger.ReleaseEscrow(o.AgentID, account.EscrowID(o.ID))
		must(err)
	}
	m.stats.OrdersCancelled++

	m.logger.Debugw("order_cancelled",
		"order_id", id, "agent", o.AgentID, "item", item, "side", o.Side.String(), "remaining", o.Remaining)
	return nil
}

// GrantItems adds units straight to an agent's holdings, bypassing the book.
// With tradeLocked the units get the same unlock threshold as a purchase.
func (m *Market) GrantItems(agent AgentID, item string, qty int64, tradeLocked bool) error {
	if item == "" {
		return ErrInvalidItem
	}
	if qty < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	unlock := m.step
	if tradeLocked {
		unlock = m.params.UnlockStep(m.step)
	}
	if err := m.ledger.Grant(agent, item, qty, m.step, unlock); err != nil {
		return err
	}
	m.stats.UnitsGranted += qty
	return nil
}

// ConsumeItems destroys held units (e.g. an opened container). Units listed
// for sale are not touched.
func (m *Market) ConsumeItems(agent AgentID, item string, qty int64) error {
	if qty < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ledger.Consume(agent, item, qty); err != nil {
		return err
	}
	m.stats.UnitsConsumed += qty
	return nil
}

// CheckInvariants verifies every wallet and that reservations match the book:
// each agent's reserved cash equals the notional of its resting bids and its
// escrowed units equal its resting asks.
func (m *Market) CheckInvariants() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.ledger.Validate(); err != nil {
		return err
	}

	reserved := make(map[AgentID]int64)
	escrowed := make(map[AgentID]map[string]int64)
	for _, item := range m.itemsLocked() {
		ob := m.books[item]
		seen := make(map[AgentID]bool)
		for _, o := range ob.Bids() {
			if seen[o.AgentID] {
				return fmt.Errorf("agent %d rests more than one bid on %q", o.AgentID, item)
			}
			seen[o.AgentID] = true
			reserved[o.AgentID] += o.Notional()
		}
		for _, o := range ob.Asks() {
			if escrowed[o.AgentID] == nil {
				escrowed[o.AgentID] = make(map[string]int64)
			}
			escrowed[o.AgentID][item] += o.Remaining
		}
	}

	for _, id := range m.ledger.IDs() {
		snap, _ := m.ledger.Snapshot(id)
		if snap.Reserved != reserved[id] {
			return fmt.Errorf("agent %d reserved %d, resting bids need %d", id, snap.Reserved, reserved[id])
		}
		for item, units := range snap.Escrowed {
			if units != escrowed[id][item] {
				return fmt.Errorf("agent %d escrows %d %q, resting asks hold %d", id, units, item, escrowed[id][item])
			}
		}
		for item, units := range escrowed[id] {
			if snap.Escrowed[item] != units {
				return fmt.Errorf("agent %d resting asks hold %d %q, escrow has %d", id, units, item, snap.Escrowed[item])
			}
		}
	}
	return nil
}

func (m *Market) itemsLocked() []string {
	out := make([]string, 0, len(m.books))
	for item := range m.books {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}
