package market

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"
)

var propertyItems = []string{"Case", "Sticker", "Knife"}

// TestPropertyRandomOrderFlow drives the market with random placements,
// cancellations and clock moves and checks the trading invariants after each.
func TestPropertyRandomOrderFlow(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := Params{
			FeeRate:       decimal.NewFromInt(rapid.Int64Range(0, 30).Draw(t, "feePct")).Div(decimal.NewFromInt(100)),
			StepsPerDay:   uint64(rapid.IntRange(1, 5).Draw(t, "stepsPerDay")),
			TradeLockDays: uint64(rapid.IntRange(0, 2).Draw(t, "lockDays")),
		}
		m, err := New(p)
		if err != nil {
			t.Fatal(err)
		}

		nAgents := rapid.IntRange(2, 6).Draw(t, "agents")
		var startCash int64
		startUnits := map[string]int64{}
		for id := AgentID(1); id <= AgentID(nAgents); id++ {
			bal := rapid.Int64Range(0, 5000).Draw(t, fmt.Sprintf("balance-%d", id))
			if err := m.AddAgent(id, bal); err != nil {
				t.Fatal(err)
			}
			startCash += bal
			for _, item := range propertyItems {
				n := rapid.Int64Range(0, 5).Draw(t, fmt.Sprintf("units-%d-%s", id, item))
				if n == 0 {
					continue
				}
				if err := m.GrantItems(id, item, n, false); err != nil {
					t.Fatal(err)
				}
				startUnits[item] += n
			}
		}

		var placed []OrderID
		steps := rapid.IntRange(1, 60).Draw(t, "ops")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 9).Draw(t, "op") {
			case 0:
				m.Advance()
			case 1, 2:
				if len(placed) == 0 {
					continue
				}
				id := rapid.SampledFrom(placed).Draw(t, "cancel")
				if err := m.CancelOrder(id); err != nil && !errors.Is(err, ErrOrderNotFound) {
					t.Fatalf("cancel %d: %v", id, err)
				}
			default:
				agent := AgentID(rapid.IntRange(1, nAgents).Draw(t, "agent"))
				item := rapid.SampledFrom(propertyItems).Draw(t, "item")
				side := Buy
				if rapid.Bool().Draw(t, "sell") {
					side = Sell
				}
				price := rapid.Int64Range(-1, 60).Draw(t, "price")
				qty := rapid.Int64Range(0, 4).Draw(t, "qty")

				before := m.Stats()
				r, err := m.PlaceOrder(agent, item, side, price, qty)
				if err != nil {
					if m.Stats() != before {
						t.Fatalf("rejected order moved counters: %v", err)
					}
					continue
				}
				if price < MinPrice || qty < 1 {
					t.Fatalf("accepted %d@%d", qty, price)
				}
				if r.Filled+r.Remaining != qty {
					t.Fatalf("receipt %+v does not add up to %d", r, qty)
				}
				for _, s := range r.Sales {
					if s.BuyerID == s.SellerID {
						t.Fatalf("self trade %+v", s)
					}
					if s.Price < MinPrice {
						t.Fatalf("sale below minimum %+v", s)
					}
					if s.Fee != p.Fee(s.Gross()) {
						t.Fatalf("fee %d for gross %d", s.Fee, s.Gross())
					}
				}
				placed = append(placed, r.OrderID)
			}

			if err := m.CheckInvariants(); err != nil {
				t.Fatal(err)
			}
			if got := m.TotalCash() + m.FeesCollected(); got != startCash {
				t.Fatalf("cash not conserved: %d + fees != %d", got-m.FeesCollected(), startCash)
			}
			for _, item := range propertyItems {
				if got := m.TotalUnits(item); got != startUnits[item] {
					t.Fatalf("%s units %d, started with %d", item, got, startUnits[item])
				}
				bid, okBid := m.BestBid(item)
				if !okBid {
					continue
				}
				// a crossed book may only rest between the same agent's orders
				for _, a := range m.Orders(item, Sell) {
					if a.Price > bid.Price {
						break
					}
					for _, b := range m.Orders(item, Buy) {
						if b.Price >= a.Price && b.AgentID != a.AgentID {
							t.Fatalf("%s: bid %v and ask %v should have traded", item, b, a)
						}
					}
				}
			}
		}
	})
}
