package orderbook

import (
	"errors"
	"reflect"
	"testing"
)

func bid(id OrderID, agent AgentID, price, qty int64) Order {
	return Order{ID: id, AgentID: agent, Item: "Case A", Side: Buy, Price: price, Quantity: qty, Remaining: qty}
}

func ask(id OrderID, agent AgentID, price, qty int64) Order {
	return Order{ID: id, AgentID: agent, Item: "Case A", Side: Sell, Price: price, Quantity: qty, Remaining: qty}
}

func mustAdd(t *testing.T, ob *OrderBook, orders ...Order) {
	t.Helper()
	for _, o := range orders {
		if err := ob.Add(o); err != nil {
			t.Fatalf("add %v: %v", o, err)
		}
	}
}

func ids(orders []Order) []OrderID {
	out := make([]OrderID, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}

func equalIDs(a, b []OrderID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestOrderBookPriority(t *testing.T) {
	ob := NewOrderBook("Case A")
	mustAdd(t, ob,
		bid(1, 1, 10, 1),
		bid(2, 2, 10, 1),
		bid(3, 3, 9, 1),
		bid(4, 4, 11, 1),
		ask(5, 5, 15, 1),
		ask(6, 6, 12, 1),
		ask(7, 7, 12, 1),
	)

	if got, want := ids(ob.Bids()), []OrderID{4, 1, 2, 3}; !equalIDs(got, want) {
		t.Errorf("bids = %v, want %v", got, want)
	}
	if got, want := ids(ob.Asks()), []OrderID{6, 7, 5}; !equalIDs(got, want) {
		t.Errorf("asks = %v, want %v", got, want)
	}

	best, ok := ob.BestBid()
	if !ok || best.ID != 4 {
		t.Errorf("best bid = %v, want #4", best)
	}
	bestAsk, ok := ob.BestAsk()
	if !ok || bestAsk.ID != 6 {
		t.Errorf("best ask = %v, want #6", bestAsk)
	}
	if mid := ob.MidPrice(); mid != 11 {
		t.Errorf("mid = %d, want 11", mid)
	}
	if spread, ok := ob.Spread(); !ok || spread != 1 {
		t.Errorf("spread = %d (%v), want 1", spread, ok)
	}
}

func TestOrderBookAddValidation(t *testing.T) {
	tests := []struct {
		name  string
		order Order
		want  error
	}{
		{name: "zero price", order: bid(1, 1, 0, 1), want: ErrInvalidOrder},
		{name: "zero remaining", order: Order{ID: 1, AgentID: 1, Item: "Case A", Side: Buy, Price: 1, Quantity: 1}, want: ErrInvalidOrder},
		{name: "bad side", order: Order{ID: 1, AgentID: 1, Item: "Case A", Price: 1, Quantity: 1, Remaining: 1}, want: ErrInvalidOrder},
		{name: "wrong item", order: Order{ID: 1, AgentID: 1, Item: "Case B", Side: Sell, Price: 1, Quantity: 1, Remaining: 1}, want: ErrInvalidOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ob := NewOrderBook("Case A")
			if err := ob.Add(tt.order); !errors.Is(err, tt.want) {
				t.Errorf("Add() error = %v, want %v", err, tt.want)
			}
			if !ob.Empty() {
				t.Errorf("rejected order left book non-empty")
			}
		})
	}
}

func TestOrderBookSingleBidPerAgent(t *testing.T) {
	ob := NewOrderBook("Case A")
	mustAdd(t, ob, bid(1, 7, 10, 1))

	if err := ob.Add(bid(2, 7, 12, 1)); !errors.Is(err, ErrDuplicateBuyOrder) {
		t.Fatalf("second bid error = %v, want ErrDuplicateBuyOrder", err)
	}
	if err := ob.Add(bid(1, 8, 12, 1)); !errors.Is(err, ErrDuplicateOrderID) {
		t.Fatalf("reused id error = %v, want ErrDuplicateOrderID", err)
	}

	// asks can stack
	mustAdd(t, ob, ask(3, 7, 20, 1), ask(4, 7, 20, 1))

	o, ok := ob.BuyOrderOf(7)
	if !ok || o.ID != 1 {
		t.Fatalf("BuyOrderOf = %v, %v", o, ok)
	}

	ob.Remove(1)
	if _, ok := ob.BuyOrderOf(7); ok {
		t.Fatalf("bid owner index not cleared on remove")
	}
	mustAdd(t, ob, bid(5, 7, 12, 1))
}

func TestOrderBookFill(t *testing.T) {
	ob := NewOrderBook("Case A")
	mustAdd(t, ob, ask(1, 1, 10, 5), ask(2, 2, 10, 1))

	before := ob.Asks()

	o, err := ob.Fill(1, 3)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if o.Remaining != 2 || o.Filled() != 3 {
		t.Errorf("after fill remaining=%d filled=%d, want 2/3", o.Remaining, o.Filled())
	}
	if before[0].Remaining != 5 {
		t.Errorf("snapshot mutated by fill: remaining=%d", before[0].Remaining)
	}

	if _, err := ob.Fill(1, 3); !errors.Is(err, ErrOverfill) {
		t.Errorf("overfill error = %v", err)
	}

	o, err = ob.Fill(1, 2)
	if err != nil || o.Remaining != 0 {
		t.Fatalf("final fill = %v, %v", o, err)
	}
	if _, ok := ob.Get(1); ok {
		t.Errorf("fully filled order still resting")
	}
	if got := ids(ob.Asks()); !equalIDs(got, []OrderID{2}) {
		t.Errorf("asks = %v, want [2]", got)
	}
	if _, err := ob.Fill(1, 1); !errors.Is(err, ErrUnknownOrder) {
		t.Errorf("fill on removed order error = %v", err)
	}
}

func TestOrderBookRemoveClearsLevel(t *testing.T) {
	ob := NewOrderBook("Case A")
	mustAdd(t, ob, bid(1, 1, 10, 1), bid(2, 2, 9, 1))

	if _, ok := ob.Remove(1); !ok {
		t.Fatalf("remove #1 failed")
	}
	if _, ok := ob.Remove(1); ok {
		t.Fatalf("second remove succeeded")
	}
	best, _ := ob.BestBid()
	if best.ID != 2 {
		t.Errorf("best bid after remove = %v, want #2", best)
	}
	if levels := ob.BidLevels(); len(levels) != 1 || levels[0].Price != 9 {
		t.Errorf("levels = %+v", levels)
	}
}

func TestBestAskForSkipsOwner(t *testing.T) {
	ob := NewOrderBook("Case A")
	mustAdd(t, ob,
		ask(1, 1, 8, 1),
		ask(2, 1, 9, 1),
		ask(3, 2, 9, 1),
		ask(4, 3, 11, 1),
	)

	o, skipped, ok := ob.BestAskFor(10, 1)
	if !ok || o.ID != 3 || !reflect.DeepEqual(skipped, []OrderID{1, 2}) {
		t.Errorf("BestAskFor(10, 1) = %v skipped=%v ok=%v, want #3 skipped=[1 2]", o, skipped, ok)
	}

	_, _, ok = ob.BestAskFor(7, 2)
	if ok {
		t.Errorf("expected no ask at or below 7")
	}

	o, skipped, ok = ob.BestAskFor(100, 9)
	if !ok || o.ID != 1 || len(skipped) != 0 {
		t.Errorf("BestAskFor(100, 9) = %v skipped=%v", o, skipped)
	}
}

func TestLevelsAggregate(t *testing.T) {
	ob := NewOrderBook("Case A")
	mustAdd(t, ob, ask(1, 1, 10, 2), ask(2, 2, 10, 3), ask(3, 3, 12, 1))

	levels := ob.AskLevels()
	if len(levels) != 2 {
		t.Fatalf("levels = %+v", levels)
	}
	if levels[0] != (PriceLevel{Price: 10, Qty: 5, Orders: 2}) {
		t.Errorf("level[0] = %+v", levels[0])
	}
	bids, asks := ob.Len()
	if bids != 0 || asks != 3 {
		t.Errorf("Len = %d/%d", bids, asks)
	}
}
