package orderbook

import "fmt"

// AgentID identifies an agent inside a single market run
type AgentID int64

// OrderID is assigned by the market, strictly increasing in placement order
type OrderID uint64

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Valid reports whether s is Buy or Sell
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Order is one resting intent to buy or sell units of a single item.
// Prices are integer cents. Remaining is the only field that changes while
// the order rests, and it is changed by replacing the stored value.
type Order struct {
	ID        OrderID
	AgentID   AgentID
	Item      string
	Side      Side
	Price     int64 // cents, >= 1
	Quantity  int64 // original quantity, >= 1
	Remaining int64 // unfilled quantity, 0 < Remaining <= Quantity while resting
	CreatedAt uint64
}

// Filled returns the quantity already executed
func (o Order) Filled() int64 {
	return o.Quantity - o.Remaining
}

// Notional returns price × remaining quantity
func (o Order) Notional() int64 {
	return o.Price * o.Remaining
}

func (o Order) String() string {
	return fmt.Sprintf("#%d %s %s %d@%d (agent %d)", o.ID, o.Side, o.Item, o.Remaining, o.Price, o.AgentID)
}

// PriceLevel aggregates resting quantity at one price
type PriceLevel struct {
	Price  int64
	Qty    int64 // total remaining qty at this price level
	Orders int
}
