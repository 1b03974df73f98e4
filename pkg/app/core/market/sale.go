package market

import "github.com/uhyunpark/dropmarket/pkg/app/core/orderbook"

// SaleID is assigned in execution order
type SaleID uint64

// Sale is one executed trade. Sales are appended to the ledger and never mutated.
type Sale struct {
	ID       SaleID            `json:"id"`
	Item     string            `json:"item"`
	BuyerID  orderbook.AgentID `json:"buyer_id"`
	SellerID orderbook.AgentID `json:"seller_id"`
	Price    int64             `json:"price"` // per-unit execution price in cents
	Quantity int64             `json:"quantity"`
	Fee      int64             `json:"fee"` // cents kept by the market
	Step     uint64            `json:"step"`

	BuyOrderID  orderbook.OrderID `json:"buy_order_id"`
	SellOrderID orderbook.OrderID `json:"sell_order_id"`
}

// Gross returns price × quantity
func (s Sale) Gross() int64 {
	return s.Price * s.Quantity
}

// NetToSeller returns what the seller received
func (s Sale) NetToSeller() int64 {
	return s.Gross() - s.Fee
}

// salesLedger is the append-only record of sales, keyed by item
type salesLedger struct {
	byItem map[string][]Sale
	nextID SaleID
	count  int
}

func newSalesLedger() *salesLedger {
	return &salesLedger{byItem: make(map[string][]Sale), nextID: 1}
}

func (l *salesLedger) append(s Sale) Sale {
	s.ID = l.nextID
	l.nextID++
	l.byItem[s.Item] = append(l.byItem[s.Item], s)
	l.count++
	return s
}

// recent returns the last n sales of item in chronological order
func (l *salesLedger) recent(item string, n int) []Sale {
	sales := l.byItem[item]
	if n <= 0 || len(sales) == 0 {
		return nil
	}
	if n > len(sales) {
		n = len(sales)
	}
	out := make([]Sale, n)
	copy(out, sales[len(sales)-n:])
	return out
}

func (l *salesLedger) all(item string) []Sale {
	return append([]Sale(nil), l.byItem[item]...)
}

func (l *salesLedger) history() map[string][]Sale {
	out := make(map[string][]Sale, len(l.byItem))
	for item, sales := range l.byItem {
		out[item] = append([]Sale(nil), sales...)
	}
	return out
}
