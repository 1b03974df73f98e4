package account

import (
	"fmt"
	"sort"

	"github.com/uhyunpark/dropmarket/pkg/app/core/orderbook"
)

// Lot is a batch of identical item units acquired at the same step.
// Units may be sold once the current step reaches UnlockAt.
type Lot struct {
	Quantity   int64
	AcquiredAt uint64
	UnlockAt   uint64
}

// Unlocked reports whether the lot is tradeable at step
func (l Lot) Unlocked(step uint64) bool {
	return step >= l.UnlockAt
}

// EscrowID names a reservation of units; the market uses the sell order id
type EscrowID uint64

// Escrow holds units reserved for a resting sell order.
// Ownership stays with the wallet until the units are taken by a fill.
type Escrow struct {
	Item string
	Lots []Lot
}

// Quantity returns the total escrowed units
func (e Escrow) Quantity() int64 {
	var total int64
	for _, l := range e.Lots {
		total += l.Quantity
	}
	return total
}

// Wallet is the balance and inventory state of one agent
// All money values are in cents
type Wallet struct {
	ID orderbook.AgentID

	Balance  int64 // total cash
	Reserved int64 // cash reserved by resting buy orders

	Holdings map[string][]Lot // item -> lots, oldest first
	Escrow   map[EscrowID]Escrow
}

// NewWallet creates a wallet with the given opening balance
func NewWallet(id orderbook.AgentID, balance int64) *Wallet {
	return &Wallet{
		ID:       id,
		Balance:  balance,
		Holdings: make(map[string][]Lot),
		Escrow:   make(map[EscrowID]Escrow),
	}
}

// Available returns cash not reserved by resting buy orders
// Formula: Balance - Reserved
func (w *Wallet) Available() int64 {
	return w.Balance - w.Reserved
}

// Held returns units of item in holdings (excludes escrow)
func (w *Wallet) Held(item string) int64 {
	var total int64
	for _, l := range w.Holdings[item] {
		total += l.Quantity
	}
	return total
}

// Unlocked returns units of item that may be listed for sale at step
func (w *Wallet) Unlocked(item string, step uint64) int64 {
	var total int64
	for _, l := range w.Holdings[item] {
		if l.Unlocked(step) {
			total += l.Quantity
		}
	}
	return total
}

// Owned returns all units of item the wallet owns, escrowed included
func (w *Wallet) Owned(item string) int64 {
	total := w.Held(item)
	for _, e := range w.Escrow {
		if e.Item == item {
			total += e.Quantity()
		}
	}
	return total
}

// addLot inserts a lot keeping holdings ordered by acquisition step
func (w *Wallet) addLot(item string, lot Lot) {
	lots := append(w.Holdings[item], lot)
	sort.SliceStable(lots, func(i, j int) bool { return lots[i].AcquiredAt < lots[j].AcquiredAt })
	w.Holdings[item] = lots
}

// takeUnlocked removes qty unlocked units, oldest first. The caller has
// already checked Unlocked(item, step) >= qty.
func (w *Wallet) takeUnlocked(item string, qty int64, step uint64) []Lot {
	var taken []Lot
	kept := w.Holdings[item][:0:0]
	for _, l := range w.Holdings[item] {
		if qty > 0 && l.Unlocked(step) {
			n := min(qty, l.Quantity)
			taken = append(taken, Lot{Quantity: n, AcquiredAt: l.AcquiredAt, UnlockAt: l.UnlockAt})
			l.Quantity -= n
			qty -= n
		}
		if l.Quantity > 0 {
			kept = append(kept, l)
		}
	}
	w.setLots(item, kept)
	return taken
}

// takeAny removes qty units regardless of lock, oldest first
func (w *Wallet) takeAny(item string, qty int64) {
	kept := w.Holdings[item][:0:0]
	for _, l := range w.Holdings[item] {
		if qty > 0 {
			n := min(qty, l.Quantity)
			l.Quantity -= n
			qty -= n
		}
		if l.Quantity > 0 {
			kept = append(kept, l)
		}
	}
	w.setLots(item, kept)
}

func (w *Wallet) setLots(item string, lots []Lot) {
	if len(lots) == 0 {
		delete(w.Holdings, item)
		return
	}
	w.Holdings[item] = lots
}

// Validate checks wallet invariants
func (w *Wallet) Validate() error {
	if w.Balance < 0 {
		return fmt.Errorf("negative balance: %d", w.Balance)
	}
	if w.Reserved < 0 {
		return fmt.Errorf("negative reserved funds: %d", w.Reserved)
	}
	if w.Reserved > w.Balance {
		return fmt.Errorf("reserved funds (%d) exceed balance (%d)", w.Reserved, w.Balance)
	}
	for item, lots := range w.Holdings {
		for _, l := range lots {
			if l.Quantity <= 0 {
				return fmt.Errorf("non-positive lot for %s: %d", item, l.Quantity)
			}
			if l.UnlockAt < l.AcquiredAt {
				return fmt.Errorf("lot for %s unlocks (%d) before acquisition (%d)", item, l.UnlockAt, l.AcquiredAt)
			}
		}
	}
	for id, e := range w.Escrow {
		if e.Quantity() <= 0 {
			return fmt.Errorf("empty escrow %d for %s", id, e.Item)
		}
	}
	return nil
}

// Snapshot is a read-only copy of a wallet
type Snapshot struct {
	ID        orderbook.AgentID
	Balance   int64
	Reserved  int64
	Available int64
	Holdings  map[string]int64 // item -> units not escrowed
	Escrowed  map[string]int64 // item -> units reserved by sell orders
	Lots      map[string][]Lot
}

// Snapshot copies the wallet state
func (w *Wallet) Snapshot() Snapshot {
	s := Snapshot{
		ID:        w.ID,
		Balance:   w.Balance,
		Reserved:  w.Reserved,
		Available: w.Available(),
		Holdings:  make(map[string]int64, len(w.Holdings)),
		Escrowed:  make(map[string]int64),
		Lots:      make(map[string][]Lot, len(w.Holdings)),
	}
	for item, lots := range w.Holdings {
		s.Holdings[item] = w.Held(item)
		s.Lots[item] = append([]Lot(nil), lots...)
	}
	for _, e := range w.Escrow {
		s.Escrowed[e.Item] += e.Quantity()
	}
	return s
}

// Owned returns held plus escrowed units of item
func (s Snapshot) Owned(item string) int64 {
	return s.Holdings[item] + s.Escrowed[item]
}

// Unlocked returns units of item tradeable at step
func (s Snapshot) Unlocked(item string, step uint64) int64 {
	var total int64
	for _, l := range s.Lots[item] {
		if l.Unlocked(step) {
			total += l.Quantity
		}
	}
	return total
}

// Items returns the held item names in sorted order
func (s Snapshot) Items() []string {
	out := make([]string, 0, len(s.Holdings))
	for item := range s.Holdings {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}
