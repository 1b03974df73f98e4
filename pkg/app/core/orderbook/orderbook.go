package orderbook

import (
	"container/heap"
	"errors"
	"fmt"
)

var (
	ErrInvalidOrder      = errors.New("invalid order")
	ErrDuplicateOrderID  = errors.New("duplicate order id")
	ErrDuplicateBuyOrder = errors.New("agent already has a resting buy order for this item")
	ErrUnknownOrder      = errors.New("order not in book")
	ErrOverfill          = errors.New("fill exceeds remaining quantity")
)

type locator struct {
	side  Side
	price int64
}

// OrderBook holds the resting orders of a single item.
// Bids are served highest price first, asks lowest price first, and orders at
// the same price in insertion order.
//
// The book is not safe for concurrent use; the owning market serializes access.
type OrderBook struct {
	item string

	// Heap-based best price tracking (O(1) peek)
	bidHeap *priceHeap
	askHeap *priceHeap

	// Price level queues (FIFO matching at each price)
	bids map[int64][]Order
	asks map[int64][]Order

	// Order index for O(1) lookup and cancellation
	orderIndex map[OrderID]locator
	// at most one resting bid per agent
	bidOwners map[AgentID]OrderID
}

func NewOrderBook(item string) *OrderBook {
	bidHeap := &priceHeap{desc: true}
	askHeap := &priceHeap{}
	heap.Init(bidHeap)
	heap.Init(askHeap)

	return &OrderBook{
		item:       item,
		bidHeap:    bidHeap,
		askHeap:    askHeap,
		bids:       make(map[int64][]Order),
		asks:       make(map[int64][]Order),
		orderIndex: make(map[OrderID]locator),
		bidOwners:  make(map[AgentID]OrderID),
	}
}

// Item returns the market hash name this book trades
func (ob *OrderBook) Item() string { return ob.item }

func (ob *OrderBook) side(s Side) (map[int64][]Order, *priceHeap) {
	if s == Buy {
		return ob.bids, ob.bidHeap
	}
	return ob.asks, ob.askHeap
}

// Add rests an order at the back of its price level
func (ob *OrderBook) Add(o Order) error {
	if !o.Side.Valid() {
		return fmt.Errorf("%w: side %d", ErrInvalidOrder, o.Side)
	}
	if o.Price < 1 {
		return fmt.Errorf("%w: price %d", ErrInvalidOrder, o.Price)
	}
	if o.Remaining < 1 || o.Remaining > o.Quantity {
		return fmt.Errorf("%w: remaining %d of %d", ErrInvalidOrder, o.Remaining, o.Quantity)
	}
	if o.Item != ob.item {
		return fmt.Errorf("%w: item %q in book %q", ErrInvalidOrder, o.Item, ob.item)
	}
	if _, exists := ob.orderIndex[o.ID]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateOrderID, o.ID)
	}
	if o.Side == Buy {
		if existing, ok := ob.bidOwners[o.AgentID]; ok {
			return fmt.Errorf("%w: order %d", ErrDuplicateBuyOrder, existing)
		}
		ob.bidOwners[o.AgentID] = o.ID
	}

	levels, h := ob.side(o.Side)
	if len(levels[o.Price]) == 0 {
		// New price level - add to heap
		heap.Push(h, o.Price)
	}
	levels[o.Price] = append(levels[o.Price], o)
	ob.orderIndex[o.ID] = locator{side: o.Side, price: o.Price}
	return nil
}

// Get returns a copy of a resting order
func (ob *OrderBook) Get(id OrderID) (Order, bool) {
	loc, ok := ob.orderIndex[id]
	if !ok {
		return Order{}, false
	}
	levels, _ := ob.side(loc.side)
	for _, o := range levels[loc.price] {
		if o.ID == id {
			return o, true
		}
	}
	return Order{}, false
}

// Remove takes an order out of the book and returns its last state
func (ob *OrderBook) Remove(id OrderID) (Order, bool) {
	loc, ok := ob.orderIndex[id]
	if !ok {
		return Order{}, false
	}
	levels, h := ob.side(loc.side)
	arr := levels[loc.price]
	for i, o := range arr {
		if o.ID != id {
			continue
		}
		// copy into a fresh slice so earlier snapshots never observe the shift
		rest := make([]Order, 0, len(arr)-1)
		rest = append(rest, arr[:i]...)
		rest = append(rest, arr[i+1:]...)
		if len(rest) == 0 {
			delete(levels, loc.price)
			if idx := h.indexOf(loc.price); idx >= 0 {
				heap.Remove(h, idx)
			}
		} else {
			levels[loc.price] = rest
		}
		delete(ob.orderIndex, id)
		if o.Side == Buy {
			delete(ob.bidOwners, o.AgentID)
		}
		return o, true
	}
	return Order{}, false
}

// Fill executes qty against a resting order. The stored order is replaced by
// its decremented copy and removed once nothing remains. The returned order
// has the post-fill Remaining.
func (ob *OrderBook) Fill(id OrderID, qty int64) (Order, error) {
	loc, ok := ob.orderIndex[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: %d", ErrUnknownOrder, id)
	}
	levels, _ := ob.side(loc.side)
	arr := levels[loc.price]
	for i, o := range arr {
		if o.ID != id {
			continue
		}
		if qty < 1 || qty > o.Remaining {
			return Order{}, fmt.Errorf("%w: fill %d, remaining %d", ErrOverfill, qty, o.Remaining)
		}
		o.Remaining -= qty
		if o.Remaining == 0 {
			ob.Remove(id)
			return o, nil
		}
		arr[i] = o
		return o, nil
	}
	return Order{}, fmt.Errorf("%w: %d", ErrUnknownOrder, id)
}

// BestBid returns the highest, earliest bid
func (ob *OrderBook) BestBid() (Order, bool) {
	p, ok := ob.bidHeap.Peek()
	if !ok {
		return Order{}, false
	}
	return ob.bids[p][0], true
}

// BestAsk returns the lowest, earliest ask
func (ob *OrderBook) BestAsk() (Order, bool) {
	p, ok := ob.askHeap.Peek()
	if !ok {
		return Order{}, false
	}
	return ob.asks[p][0], true
}

// BestAskFor returns the highest-priority ask priced at or below maxPrice that
// is not owned by exclude. skipped lists, in priority order, the asks passed
// over because exclude owned them.
func (ob *OrderBook) BestAskFor(maxPrice int64, exclude AgentID) (ask Order, skipped []OrderID, ok bool) {
	for _, p := range ob.askHeap.sorted() {
		if p > maxPrice {
			break
		}
		for _, o := range ob.asks[p] {
			if o.AgentID == exclude {
				skipped = append(skipped, o.ID)
				continue
			}
			return o, skipped, true
		}
	}
	return Order{}, skipped, false
}

// BuyOrderOf returns the agent's resting bid, if any
func (ob *OrderBook) BuyOrderOf(agent AgentID) (Order, bool) {
	id, ok := ob.bidOwners[agent]
	if !ok {
		return Order{}, false
	}
	return ob.Get(id)
}

// Bids returns all bids in matching priority order
func (ob *OrderBook) Bids() []Order {
	return collect(ob.bids, ob.bidHeap)
}

// Asks returns all asks in matching priority order
func (ob *OrderBook) Asks() []Order {
	return collect(ob.asks, ob.askHeap)
}

// Orders returns one side in matching priority order
func (ob *OrderBook) Orders(s Side) []Order {
	if s == Buy {
		return ob.Bids()
	}
	return ob.Asks()
}

func collect(levels map[int64][]Order, h *priceHeap) []Order {
	out := make([]Order, 0, len(h.prices))
	for _, p := range h.sorted() {
		out = append(out, levels[p]...)
	}
	return out
}

// BidLevels returns bid depth sorted high to low (best bid first)
func (ob *OrderBook) BidLevels() []PriceLevel {
	return aggregate(ob.bids, ob.bidHeap)
}

// AskLevels returns ask depth sorted low to high (best ask first)
func (ob *OrderBook) AskLevels() []PriceLevel {
	return aggregate(ob.asks, ob.askHeap)
}

func aggregate(levels map[int64][]Order, h *priceHeap) []PriceLevel {
	var out []PriceLevel
	for _, p := range h.sorted() {
		var total int64
		for _, o := range levels[p] {
			total += o.Remaining
		}
		out = append(out, PriceLevel{Price: p, Qty: total, Orders: len(levels[p])})
	}
	return out
}

// MidPrice returns the average of best bid and best ask
// Returns 0 if the book is empty or one-sided
func (ob *OrderBook) MidPrice() int64 {
	bid, okBid := ob.bidHeap.Peek()
	ask, okAsk := ob.askHeap.Peek()
	if !okBid || !okAsk {
		return 0
	}
	return (bid + ask) / 2
}

// Spread returns best ask minus best bid; ok is false for a one-sided book
func (ob *OrderBook) Spread() (int64, bool) {
	bid, okBid := ob.bidHeap.Peek()
	ask, okAsk := ob.askHeap.Peek()
	if !okBid || !okAsk {
		return 0, false
	}
	return ask - bid, true
}

// Len returns the number of resting bids and asks
func (ob *OrderBook) Len() (bids, asks int) {
	for _, loc := range ob.orderIndex {
		if loc.side == Buy {
			bids++
		} else {
			asks++
		}
	}
	return bids, asks
}

// Empty reports whether nothing rests on either side
func (ob *OrderBook) Empty() bool {
	return len(ob.orderIndex) == 0
}
