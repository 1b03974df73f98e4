package market

import (
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

func testParams() Params {
	return Params{
		FeeRate:       decimal.RequireFromString("0.15"),
		StepsPerDay:   10,
		TradeLockDays: 1,
	}
}

func newTestMarket(t *testing.T, opts ...Option) *Market {
	t.Helper()
	m, err := New(testParams(), opts...)
	if err != nil {
		t.Fatalf("new market: %v", err)
	}
	return m
}

func mustAgent(t *testing.T, m *Market, id AgentID, balance int64) {
	t.Helper()
	if err := m.AddAgent(id, balance); err != nil {
		t.Fatalf("add agent %d: %v", id, err)
	}
}

func mustGrant(t *testing.T, m *Market, id AgentID, item string, qty int64) {
	t.Helper()
	if err := m.GrantItems(id, item, qty, false); err != nil {
		t.Fatalf("grant %d %q to %d: %v", qty, item, id, err)
	}
}

func mustPlace(t *testing.T, m *Market, id AgentID, item string, side Side, price, qty int64) Receipt {
	t.Helper()
	r, err := m.PlaceOrder(id, item, side, price, qty)
	if err != nil {
		t.Fatalf("place %s %d@%d for %d: %v", side, qty, price, id, err)
	}
	return r
}

func checkInvariants(t *testing.T, m *Market) {
	t.Helper()
	if err := m.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestFee(t *testing.T) {
	tests := []struct {
		rate  string
		gross int64
		want  int64
	}{
		{"0.15", 20, 3},
		{"0.15", 19, 2},
		{"0.15", 1, 0},
		{"0.15", 1000, 150},
		{"0", 1000, 0},
		{"0.05", 199, 9},
		{"0.15", 0, 0},
	}
	for _, tt := range tests {
		p := testParams()
		p.FeeRate = decimal.RequireFromString(tt.rate)
		if got := p.Fee(tt.gross); got != tt.want {
			t.Errorf("Fee(%d) at %s = %d, want %d", tt.gross, tt.rate, got, tt.want)
		}
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr bool
	}{
		{"valid", func(*Params) {}, false},
		{"zero fee", func(p *Params) { p.FeeRate = decimal.Zero }, false},
		{"negative fee", func(p *Params) { p.FeeRate = decimal.RequireFromString("-0.01") }, true},
		{"fee of one", func(p *Params) { p.FeeRate = decimal.NewFromInt(1) }, true},
		{"zero steps per day", func(p *Params) { p.StepsPerDay = 0 }, true},
		{"negative cap", func(p *Params) { p.BalanceCap = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams()
			tt.mutate(&p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidParams) {
				t.Errorf("error %v does not wrap ErrInvalidParams", err)
			}
		})
	}
}

// A with $1.00 buys 2 Widgets at 10c from B at a 15% fee
func TestWidgetScenario(t *testing.T) {
	m := newTestMarket(t)
	const a, b AgentID = 1, 2
	mustAgent(t, m, a, 100)
	mustAgent(t, m, b, 0)
	mustGrant(t, m, b, "Widget", 2)

	r := mustPlace(t, m, a, "Widget", Buy, 10, 2)
	if r.Filled != 0 || r.Remaining != 2 {
		t.Fatalf("resting buy receipt = %+v", r)
	}
	wa, _ := m.Wallet(a)
	if wa.Available != 80 || wa.Reserved != 20 {
		t.Fatalf("after bid: available=%d reserved=%d, want 80/20", wa.Available, wa.Reserved)
	}

	r = mustPlace(t, m, b, "Widget", Sell, 10, 2)
	if len(r.Sales) != 1 || r.Filled != 2 || r.Remaining != 0 {
		t.Fatalf("sell receipt = %+v", r)
	}
	s := r.Sales[0]
	if s.Price != 10 || s.Quantity != 2 || s.Fee != 3 || s.BuyerID != a || s.SellerID != b {
		t.Fatalf("sale = %+v", s)
	}

	wa, _ = m.Wallet(a)
	wb, _ := m.Wallet(b)
	if wa.Balance != 80 || wa.Reserved != 0 || wa.Owned("Widget") != 2 {
		t.Errorf("buyer wallet = %+v", wa)
	}
	if wb.Balance != 17 || wb.Owned("Widget") != 0 {
		t.Errorf("seller wallet = %+v", wb)
	}
	if got := m.FeesCollected(); got != 3 {
		t.Errorf("fees = %d, want 3", got)
	}
	if got := m.Orders("Widget", Buy); len(got) != 0 {
		t.Errorf("bids left: %v", got)
	}
	if got := m.Orders("Widget", Sell); len(got) != 0 {
		t.Errorf("asks left: %v", got)
	}
	checkInvariants(t, m)
}

func TestPriceTimePriority(t *testing.T) {
	m := newTestMarket(t)
	for id := AgentID(1); id <= 4; id++ {
		mustAgent(t, m, id, 1000)
	}
	mustGrant(t, m, 4, "Case", 3)

	mustPlace(t, m, 3, "Case", Buy, 9, 1)
	first := mustPlace(t, m, 1, "Case", Buy, 10, 1)
	second := mustPlace(t, m, 2, "Case", Buy, 10, 1)

	bids := m.Orders("Case", Buy)
	if len(bids) != 3 || bids[0].ID != first.OrderID || bids[1].ID != second.OrderID || bids[2].Price != 9 {
		t.Fatalf("bid priority = %v", bids)
	}

	r := mustPlace(t, m, 4, "Case", Sell, 9, 3)
	var buyers []AgentID
	for _, s := range r.Sales {
		buyers = append(buyers, s.BuyerID)
		if s.Price != 9 {
			t.Errorf("sale %d executed at %d, want the sell price 9", s.ID, s.Price)
		}
	}
	if !reflect.DeepEqual(buyers, []AgentID{1, 2, 3}) {
		t.Errorf("fill order = %v, want [1 2 3]", buyers)
	}

	// the 10c bidders reserved 10 and paid 9
	w, _ := m.Wallet(1)
	if w.Balance != 991 || w.Reserved != 0 {
		t.Errorf("agent 1 wallet = %+v", w)
	}
	checkInvariants(t, m)
}

func TestAskPriority(t *testing.T) {
	m := newTestMarket(t)
	mustAgent(t, m, 1, 0)
	mustAgent(t, m, 2, 0)
	mustAgent(t, m, 3, 1000)
	mustGrant(t, m, 1, "Case", 5)
	mustGrant(t, m, 2, "Case", 5)

	mustPlace(t, m, 1, "Case", Sell, 12, 1)
	mustPlace(t, m, 2, "Case", Sell, 11, 1)
	mustPlace(t, m, 1, "Case", Sell, 11, 1)

	r := mustPlace(t, m, 3, "Case", Buy, 12, 3)
	var got []int64
	var sellers []AgentID
	for _, s := range r.Sales {
		got = append(got, s.Price)
		sellers = append(sellers, s.SellerID)
	}
	if !reflect.DeepEqual(got, []int64{11, 11, 12}) || !reflect.DeepEqual(sellers, []AgentID{2, 1, 1}) {
		t.Errorf("prices %v sellers %v", got, sellers)
	}
	checkInvariants(t, m)
}

func TestPartialFill(t *testing.T) {
	m := newTestMarket(t)
	mustAgent(t, m, 1, 1000)
	mustAgent(t, m, 2, 0)
	mustGrant(t, m, 2, "Sticker", 3)

	buy := mustPlace(t, m, 1, "Sticker", Buy, 20, 5)
	r := mustPlace(t, m, 2, "Sticker", Sell, 15, 3)
	if len(r.Sales) != 1 || r.Sales[0].Quantity != 3 || r.Sales[0].Price != 15 {
		t.Fatalf("sales = %+v", r.Sales)
	}

	bids := m.Orders("Sticker", Buy)
	if len(bids) != 1 || bids[0].ID != buy.OrderID || bids[0].Remaining != 2 || bids[0].Quantity != 5 {
		t.Fatalf("resting bid = %v", bids)
	}
	w, _ := m.Wallet(1)
	// paid 45, still reserves 2 × 20
	if w.Balance != 955 || w.Reserved != 40 {
		t.Errorf("buyer wallet balance=%d reserved=%d", w.Balance, w.Reserved)
	}
	checkInvariants(t, m)
}

func TestSelfTradeSkipped(t *testing.T) {
	m := newTestMarket(t)
	mustAgent(t, m, 1, 1000)
	mustAgent(t, m, 2, 1000)
	mustGrant(t, m, 1, "Case", 2)
	mustGrant(t, m, 2, "Case", 1)

	mustPlace(t, m, 1, "Case", Buy, 10, 1)
	r := mustPlace(t, m, 1, "Case", Sell, 9, 1)
	if len(r.Sales) != 0 {
		t.Fatalf("self trade executed: %+v", r.Sales)
	}
	if m.Stats().SelfTradeSkips == 0 {
		t.Error("self trade skip not counted")
	}

	// the next ask from another agent fills the bid even though it is dearer
	r = mustPlace(t, m, 2, "Case", Sell, 10, 1)
	if len(r.Sales) != 1 || r.Sales[0].BuyerID != 1 || r.Sales[0].SellerID != 2 || r.Sales[0].Price != 10 {
		t.Fatalf("sales = %+v", r.Sales)
	}
	for _, s := range m.Sales("Case") {
		if s.BuyerID == s.SellerID {
			t.Errorf("sale %d is a self trade", s.ID)
		}
	}
	checkInvariants(t, m)
}

func TestSelfTradeSkipCountedOncePerAsk(t *testing.T) {
	m := newTestMarket(t)
	mustAgent(t, m, 1, 1000)
	mustAgent(t, m, 2, 0)
	mustAgent(t, m, 3, 0)
	mustGrant(t, m, 1, "Case", 1)
	mustGrant(t, m, 2, "Case", 1)
	mustGrant(t, m, 3, "Case", 1)

	mustPlace(t, m, 1, "Case", Sell, 8, 1)
	mustPlace(t, m, 2, "Case", Sell, 9, 1)
	mustPlace(t, m, 3, "Case", Sell, 9, 1)

	// the bid passes over its own ask on both fills
	r := mustPlace(t, m, 1, "Case", Buy, 10, 2)
	if len(r.Sales) != 2 {
		t.Fatalf("sales = %+v", r.Sales)
	}
	if got := m.Stats().SelfTradeSkips; got != 1 {
		t.Errorf("SelfTradeSkips = %d, want 1", got)
	}
	checkInvariants(t, m)
}

func TestSelfTradeFallsThroughToNextBid(t *testing.T) {
	m := newTestMarket(t)
	mustAgent(t, m, 1, 1000)
	mustAgent(t, m, 2, 1000)
	mustGrant(t, m, 1, "Case", 1)

	mustPlace(t, m, 1, "Case", Buy, 10, 1)
	mustPlace(t, m, 2, "Case", Buy, 9, 1)
	r := mustPlace(t, m, 1, "Case", Sell, 9, 1)

	if len(r.Sales) != 1 || r.Sales[0].BuyerID != 2 || r.Sales[0].SellerID != 1 {
		t.Fatalf("sales = %+v", r.Sales)
	}
	if _, ok := m.BuyOrderOf(1, "Case"); !ok {
		t.Error("agent 1 bid should still rest")
	}
	checkInvariants(t, m)
}

func TestPlaceOrderRejections(t *testing.T) {
	m := newTestMarket(t)
	mustAgent(t, m, 1, 100)
	mustAgent(t, m, 2, 0)
	mustGrant(t, m, 2, "Case", 1)
	if err := m.GrantItems(2, "Locked", 1, true); err != nil {
		t.Fatal(err)
	}
	mustPlace(t, m, 1, "Case", Buy, 5, 1)

	tests := []struct {
		name  string
		agent AgentID
		item  string
		side  Side
		price int64
		qty   int64
		want  error
	}{
		{"zero price", 1, "Case", Buy, 0, 1, ErrInvalidPrice},
		{"negative price", 2, "Case", Sell, -5, 1, ErrInvalidPrice},
		{"zero quantity", 1, "Other", Buy, 1, 0, ErrInvalidQuantity},
		{"bad side", 1, "Case", Side(0), 1, 1, ErrInvalidSide},
		{"empty item", 1, "", Buy, 1, 1, ErrInvalidItem},
		{"unknown agent", 9, "Case", Buy, 1, 1, ErrAgentNotFound},
		{"second bid", 1, "Case", Buy, 6, 1, ErrDuplicateBuyOrder},
		{"over budget", 1, "Other", Buy, 96, 1, ErrInsufficientFunds},
		{"overflowing cost", 1, "Other", Buy, 1 << 62, 4, ErrInsufficientFunds},
		{"selling more than held", 2, "Case", Sell, 1, 2, ErrInsufficientInventory},
		{"selling nothing held", 1, "Case", Sell, 1, 1, ErrInsufficientInventory},
		{"selling locked units", 2, "Locked", Sell, 1, 1, ErrInsufficientInventory},
	}

	before := snapshot(t, m)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.PlaceOrder(tt.agent, tt.item, tt.side, tt.price, tt.qty)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if after := snapshot(t, m); !reflect.DeepEqual(before, after) {
				t.Fatalf("rejected order changed state:\nbefore %+v\nafter  %+v", before, after)
			}
		})
	}

	// the id counter did not move either
	r := mustPlace(t, m, 2, "Case", Sell, 50, 1)
	if r.OrderID != 2 {
		t.Errorf("order id after rejections = %d, want 2", r.OrderID)
	}
}

type marketState struct {
	Wallets []any
	Bids    map[string][]Order
	Asks    map[string][]Order
	Stats   Stats
	Sales   map[string][]Sale
}

func snapshot(t *testing.T, m *Market) marketState {
	t.Helper()
	s := marketState{Bids: map[string][]Order{}, Asks: map[string][]Order{}, Stats: m.Stats(), Sales: m.SalesHistory()}
	for _, id := range m.Agents() {
		w, err := m.Wallet(id)
		if err != nil {
			t.Fatal(err)
		}
		s.Wallets = append(s.Wallets, w)
	}
	for _, item := range m.Items() {
		s.Bids[item] = m.Orders(item, Buy)
		s.Asks[item] = m.Orders(item, Sell)
	}
	return s
}

func TestDuplicateBuyOrderCarriesRestingID(t *testing.T) {
	m := newTestMarket(t)
	mustAgent(t, m, 1, 100)
	first := mustPlace(t, m, 1, "Case", Buy, 5, 1)

	_, err := m.PlaceOrder(1, "Case", Buy, 7, 2)
	var dup *DuplicateBuyOrderError
	if !errors.As(err, &dup) {
		t.Fatalf("err = %v, want *DuplicateBuyOrderError", err)
	}
	if dup.OrderID != first.OrderID || dup.Item != "Case" || dup.AgentID != 1 {
		t.Errorf("dup = %+v", dup)
	}

	// a bid on another item is fine
	mustPlace(t, m, 1, "Sticker", Buy, 5, 1)
	// and so is a new bid once the first is cancelled
	if err := m.CancelOrder(first.OrderID); err != nil {
		t.Fatal(err)
	}
	mustPlace(t, m, 1, "Case", Buy, 7, 2)
	checkInvariants(t, m)
}

func TestCancelOrder(t *testing.T) {
	m := newTestMarket(t)
	mustAgent(t, m, 1, 100)
	mustAgent(t, m, 2, 0)
	if err := m.GrantItems(2, "Case", 2, true); err != nil {
		t.Fatal(err)
	}

	buy := mustPlace(t, m, 1, "Case", Buy, 10, 3)
	if err := m.CancelOrder(buy.OrderID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	w, _ := m.Wallet(1)
	if w.Reserved != 0 || w.Available != 100 {
		t.Errorf("funds not released: %+v", w)
	}
	if err := m.CancelOrder(buy.OrderID); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("second cancel err = %v, want ErrOrderNotFound", err)
	}
	if err := m.CancelOrder(999); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("unknown cancel err = %v, want ErrOrderNotFound", err)
	}

	// sell cancellation gives the units back with their original lock
	unlock := m.Params().UnlockStep(0)
	if err := m.SetStep(unlock); err != nil {
		t.Fatal(err)
	}
	sell := mustPlace(t, m, 2, "Case", Sell, 20, 2)
	if err := m.CancelOrder(sell.OrderID); err != nil {
		t.Fatal(err)
	}
	w, _ = m.Wallet(2)
	if w.Holdings["Case"] != 2 || w.Escrowed["Case"] != 0 {
		t.Errorf("units not returned: %+v", w)
	}
	if lots := w.Lots["Case"]; len(lots) != 1 || lots[0].AcquiredAt != 0 || lots[0].UnlockAt != unlock {
		t.Errorf("lots = %+v", lots)
	}
	if got := m.Stats().OrdersCancelled; got != 2 {
		t.Errorf("cancelled = %d, want 2", got)
	}
	checkInvariants(t, m)
}

func TestCancelFilledOrder(t *testing.T) {
	m := newTestMarket(t)
	mustAgent(t, m, 1, 100)
	mustAgent(t, m, 2, 0)
	mustGrant(t, m, 2, "Case", 1)
	buy := mustPlace(t, m, 1, "Case", Buy, 10, 1)
	mustPlace(t, m, 2, "Case", Sell, 10, 1)
	if err := m.CancelOrder(buy.OrderID); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("err = %v, want ErrOrderNotFound", err)
	}
}

func TestTradeLock(t *testing.T) {
	m := newTestMarket(t)
	mustAgent(t, m, 1, 100)
	mustAgent(t, m, 2, 0)
	mustGrant(t, m, 2, "Case", 1)
	mustPlace(t, m, 1, "Case", Buy, 10, 1)
	mustPlace(t, m, 2, "Case", Sell, 10, 1)

	if _, err := m.PlaceOrder(1, "Case", Sell, 15, 1); !errors.Is(err, ErrInsufficientInventory) {
		t.Fatalf("resale before unlock err = %v", err)
	}
	unlock := m.Params().UnlockStep(0)
	if err := m.SetStep(unlock - 1); err != nil {
		t.Fatal(err)
	}
	if n, _ := m.UnlockedUnits(1, "Case"); n != 0 {
		t.Fatalf("unlocked a step early: %d", n)
	}
	m.Advance()
	mustPlace(t, m, 1, "Case", Sell, 15, 1)
}

func TestStepMonotonic(t *testing.T) {
	m := newTestMarket(t, WithStartStep(5))
	if got := m.Advance(); got != 6 {
		t.Fatalf("Advance() = %d", got)
	}
	if err := m.SetStep(6); err != nil {
		t.Errorf("same step: %v", err)
	}
	if err := m.SetStep(3); !errors.Is(err, ErrStepRegression) {
		t.Errorf("err = %v, want ErrStepRegression", err)
	}
	if m.CurrentStep() != 6 {
		t.Errorf("step = %d", m.CurrentStep())
	}
}

func TestAddAgent(t *testing.T) {
	p := testParams()
	p.BalanceCap = 1000
	m, err := New(p)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.AddAgent(1, 1000); err != nil {
		t.Fatal(err)
	}
	if err := m.AddAgent(1, 5); !errors.Is(err, ErrDuplicateAgent) {
		t.Errorf("duplicate err = %v", err)
	}
	if err := m.AddAgent(2, -1); !errors.Is(err, ErrNegativeBalance) {
		t.Errorf("negative err = %v", err)
	}
	if err := m.AddAgent(3, 1001); err == nil {
		t.Error("balance above cap accepted")
	}
}

func TestConsumeItems(t *testing.T) {
	m := newTestMarket(t)
	mustAgent(t, m, 1, 0)
	if err := m.GrantItems(1, "Case", 3, true); err != nil {
		t.Fatal(err)
	}
	if err := m.ConsumeItems(1, "Case", 2); err != nil {
		t.Fatalf("consume locked units: %v", err)
	}
	if err := m.ConsumeItems(1, "Case", 2); !errors.Is(err, ErrInsufficientInventory) {
		t.Errorf("err = %v", err)
	}
	if got := m.TotalUnits("Case"); got != 1 {
		t.Errorf("units = %d", got)
	}
	if s := m.Stats(); s.UnitsGranted != 3 || s.UnitsConsumed != 2 {
		t.Errorf("stats = %+v", s)
	}
}

func TestQueries(t *testing.T) {
	c := NewCatalog()
	for _, it := range []Item{
		{Name: "Case A", Category: Container},
		{Name: "AK-47 | Redline", Category: WeaponSkin, Exterior: "Field-Tested"},
	} {
		if err := c.Register(it); err != nil {
			t.Fatal(err)
		}
	}
	m := newTestMarket(t, WithCatalog(c))
	skin := "AK-47 | Redline (Field-Tested)"
	mustAgent(t, m, 1, 1000)
	mustAgent(t, m, 2, 0)
	mustGrant(t, m, 2, "Case A", 5)
	mustGrant(t, m, 2, skin, 1)
	mustGrant(t, m, 2, "Loose", 1)

	mustPlace(t, m, 2, "Case A", Sell, 30, 4)
	mustPlace(t, m, 2, skin, Sell, 900, 1)
	mustPlace(t, m, 2, "Loose", Sell, 5, 1)
	mustPlace(t, m, 1, "Case A", Buy, 30, 1)
	m.Advance()
	mustPlace(t, m, 1, "Loose", Buy, 5, 1)
	mustPlace(t, m, 1, "Case A", Buy, 31, 1)

	if got := m.AvailableItems(); !reflect.DeepEqual(got, []string{skin, "Case A"}) {
		t.Errorf("available = %v", got)
	}
	if got := m.AvailableItemsIn(Container); !reflect.DeepEqual(got, []string{"Case A"}) {
		t.Errorf("containers = %v", got)
	}
	if got := m.AvailableItemsIn(Misc); len(got) != 0 {
		t.Errorf("misc = %v", got)
	}

	recent := m.RecentSales("Case A", 5)
	if len(recent) != 2 || recent[0].Step != 0 || recent[1].Step != 1 {
		t.Errorf("recent = %+v", recent)
	}
	if got := m.RecentSales("Case A", 1); len(got) != 1 || got[0].ID != recent[1].ID {
		t.Errorf("recent(1) = %+v", got)
	}
	if got := m.RecentSales("Nothing", 3); len(got) != 0 {
		t.Errorf("recent on empty = %v", got)
	}

	bought, err := m.AgentPurchases(1)
	if err != nil || len(bought) != 3 {
		t.Fatalf("purchases = %v, %v", bought, err)
	}
	for i := 1; i < len(bought); i++ {
		if bought[i].ID <= bought[i-1].ID {
			t.Errorf("purchases out of order: %v", bought)
		}
	}
	sold, _ := m.AgentSales(2)
	if len(sold) != 3 {
		t.Errorf("sales = %v", sold)
	}
	if _, err := m.AgentSales(42); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("err = %v", err)
	}

	orders, err := m.AgentOrders(2)
	if err != nil || len(orders.Sell) != 2 || len(orders.Buy) != 0 {
		t.Errorf("agent orders = %+v, %v", orders, err)
	}
	bids, asks := m.Depth("Case A")
	if len(bids) != 0 || len(asks) != 1 || asks[0].Qty != 2 {
		t.Errorf("depth = %v / %v", bids, asks)
	}
	if got := m.SalesCount(); got != 3 {
		t.Errorf("sales count = %d", got)
	}
	if hist := m.SalesHistory(); len(hist["Case A"]) != 2 || len(hist["Loose"]) != 1 {
		t.Errorf("history = %v", hist)
	}
}

func TestQueriesReturnCopies(t *testing.T) {
	m := newTestMarket(t)
	mustAgent(t, m, 1, 100)
	mustAgent(t, m, 2, 0)
	mustGrant(t, m, 2, "Case", 1)
	mustPlace(t, m, 1, "Case", Buy, 10, 1)
	mustPlace(t, m, 2, "Case", Sell, 10, 1)

	sales := m.Sales("Case")
	sales[0].Price = 1
	if m.Sales("Case")[0].Price != 10 {
		t.Error("sales ledger mutated through a query result")
	}
	w, _ := m.Wallet(1)
	w.Holdings["Case"] = 99
	if w2, _ := m.Wallet(1); w2.Holdings["Case"] != 1 {
		t.Error("wallet mutated through a snapshot")
	}
}
