package account

import (
	"errors"
	"fmt"
	"sort"

	"github.com/uhyunpark/dropmarket/pkg/app/core/orderbook"
)

var (
	ErrAgentNotFound         = errors.New("agent not found")
	ErrDuplicateAgent        = errors.New("agent already registered")
	ErrNegativeBalance       = errors.New("balance must be non-negative")
	ErrBalanceCap            = errors.New("balance exceeds configured cap")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrInsufficientFunds     = errors.New("insufficient available balance")
	ErrInsufficientInventory = errors.New("insufficient unlocked inventory")
	ErrEscrowNotFound        = errors.New("escrow not found")
	ErrDuplicateEscrow       = errors.New("escrow already exists")
)

// Ledger owns every agent wallet of a market run and is the only way to
// mutate them. Agents are addressed by id; callers never hold *Wallet.
// Not safe for concurrent use; the market serializes access.
type Ledger struct {
	wallets    map[orderbook.AgentID]*Wallet
	balanceCap int64 // 0 disables the cap
}

// NewLedger creates an empty ledger. balanceCap bounds opening balances (0 = no cap).
func NewLedger(balanceCap int64) *Ledger {
	return &Ledger{
		wallets:    make(map[orderbook.AgentID]*Wallet),
		balanceCap: balanceCap,
	}
}

// Register opens a wallet for a new agent
func (l *Ledger) Register(id orderbook.AgentID, balance int64) error {
	if _, exists := l.wallets[id]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateAgent, id)
	}
	if balance < 0 {
		return fmt.Errorf("%w: agent %d balance %d", ErrNegativeBalance, id, balance)
	}
	if l.balanceCap > 0 && balance > l.balanceCap {
		return fmt.Errorf("%w: agent %d balance %d > %d", ErrBalanceCap, id, balance, l.balanceCap)
	}
	l.wallets[id] = NewWallet(id, balance)
	return nil
}

func (l *Ledger) get(id orderbook.AgentID) (*Wallet, error) {
	w, ok := l.wallets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrAgentNotFound, id)
	}
	return w, nil
}

// Exists checks if an agent is registered
func (l *Ledger) Exists(id orderbook.AgentID) bool {
	_, ok := l.wallets[id]
	return ok
}

// Len returns the number of registered agents
func (l *Ledger) Len() int { return len(l.wallets) }

// IDs returns all agent ids in ascending order
func (l *Ledger) IDs() []orderbook.AgentID {
	out := make([]orderbook.AgentID, 0, len(l.wallets))
	for id := range l.wallets {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Snapshot returns a read-only copy of an agent's wallet
func (l *Ledger) Snapshot(id orderbook.AgentID) (Snapshot, error) {
	w, err := l.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return w.Snapshot(), nil
}

// Balance returns total and available cash
func (l *Ledger) Balance(id orderbook.AgentID) (balance, available int64, err error) {
	w, err := l.get(id)
	if err != nil {
		return 0, 0, err
	}
	return w.Balance, w.Available(), nil
}

// UnlockedUnits returns units of item the agent may list at step
func (l *Ledger) UnlockedUnits(id orderbook.AgentID, item string, step uint64) (int64, error) {
	w, err := l.get(id)
	if err != nil {
		return 0, err
	}
	return w.Unlocked(item, step), nil
}

// ReserveFunds sets aside cash for a resting buy order
func (l *Ledger) ReserveFunds(id orderbook.AgentID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: reserve %d", ErrInvalidAmount, amount)
	}
	w, err := l.get(id)
	if err != nil {
		return err
	}
	if w.Available() < amount {
		return fmt.Errorf("%w: have %d, need %d (reserved: %d)", ErrInsufficientFunds, w.Available(), amount, w.Reserved)
	}
	w.Reserved += amount
	return nil
}

// ReleaseFunds returns reserved cash to the available balance
func (l *Ledger) ReleaseFunds(id orderbook.AgentID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: release %d", ErrInvalidAmount, amount)
	}
	w, err := l.get(id)
	if err != nil {
		return err
	}
	if w.Reserved < amount {
		return fmt.Errorf("cannot release more than reserved: reserved=%d, release=%d", w.Reserved, amount)
	}
	w.Reserved -= amount
	return nil
}

// SettleBuy consumes a reservation and pays for a fill. reserved is what the
// fill had set aside (bid price × qty), paid is the execution cost
// (ask price × qty); the difference goes back to the available balance.
func (l *Ledger) SettleBuy(id orderbook.AgentID, reserved, paid int64) error {
	w, err := l.get(id)
	if err != nil {
		return err
	}
	if paid < 0 || paid > reserved || reserved > w.Reserved || paid > w.Balance {
		return fmt.Errorf("settle buy for agent %d: reserved=%d paid=%d wallet reserved=%d balance=%d",
			id, reserved, paid, w.Reserved, w.Balance)
	}
	w.Reserved -= reserved
	w.Balance -= paid
	return nil
}

// Credit adds proceeds to an agent's balance
func (l *Ledger) Credit(id orderbook.AgentID, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: credit %d", ErrInvalidAmount, amount)
	}
	w, err := l.get(id)
	if err != nil {
		return err
	}
	w.Balance += amount
	return nil
}

// EscrowUnits moves qty unlocked units of item into a reservation. The oldest
// unlocked lots go first and keep their acquisition stamps.
func (l *Ledger) EscrowUnits(id orderbook.AgentID, escrowID EscrowID, item string, qty int64, step uint64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: escrow %d", ErrInvalidAmount, qty)
	}
	w, err := l.get(id)
	if err != nil {
		return err
	}
	if _, exists := w.Escrow[escrowID]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateEscrow, escrowID)
	}
	if have := w.Unlocked(item, step); have < qty {
		return fmt.Errorf("%w: %s have %d unlocked, need %d", ErrInsufficientInventory, item, have, qty)
	}
	w.Escrow[escrowID] = Escrow{Item: item, Lots: w.takeUnlocked(item, qty, step)}
	return nil
}

// ReleaseEscrow returns all remaining escrowed units to holdings
func (l *Ledger) ReleaseEscrow(id orderbook.AgentID, escrowID EscrowID) (int64, error) {
	w, err := l.get(id)
	if err != nil {
		return 0, err
	}
	e, ok := w.Escrow[escrowID]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrEscrowNotFound, escrowID)
	}
	delete(w.Escrow, escrowID)
	for _, lot := range e.Lots {
		w.addLot(e.Item, lot)
	}
	return e.Quantity(), nil
}

// TakeEscrow removes qty units from a reservation (oldest lots first) and
// gives up ownership of them. The reservation is dropped once empty.
func (l *Ledger) TakeEscrow(id orderbook.AgentID, escrowID EscrowID, qty int64) error {
	w, err := l.get(id)
	if err != nil {
		return err
	}
	e, ok := w.Escrow[escrowID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrEscrowNotFound, escrowID)
	}
	if qty <= 0 || qty > e.Quantity() {
		return fmt.Errorf("take %d from escrow %d holding %d", qty, escrowID, e.Quantity())
	}
	var kept []Lot
	for _, lot := range e.Lots {
		if qty > 0 {
			n := min(qty, lot.Quantity)
			lot.Quantity -= n
			qty -= n
		}
		if lot.Quantity > 0 {
			kept = append(kept, lot)
		}
	}
	if len(kept) == 0 {
		delete(w.Escrow, escrowID)
		return nil
	}
	e.Lots = kept
	w.Escrow[escrowID] = e
	return nil
}

// Grant adds units to an agent's holdings as a new lot
func (l *Ledger) Grant(id orderbook.AgentID, item string, qty int64, acquiredAt, unlockAt uint64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: grant %d", ErrInvalidAmount, qty)
	}
	if unlockAt < acquiredAt {
		unlockAt = acquiredAt
	}
	w, err := l.get(id)
	if err != nil {
		return err
	}
	w.addLot(item, Lot{Quantity: qty, AcquiredAt: acquiredAt, UnlockAt: unlockAt})
	return nil
}

// Consume destroys qty held units of item, locked or not (container opening)
func (l *Ledger) Consume(id orderbook.AgentID, item string, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: consume %d", ErrInvalidAmount, qty)
	}
	w, err := l.get(id)
	if err != nil {
		return err
	}
	if have := w.Held(item); have < qty {
		return fmt.Errorf("%w: %s held %d, consume %d", ErrInsufficientInventory, item, have, qty)
	}
	w.takeAny(item, qty)
	return nil
}

// Validate checks the invariants of every wallet
func (l *Ledger) Validate() error {
	for _, id := range l.IDs() {
		if err := l.wallets[id].Validate(); err != nil {
			return fmt.Errorf("agent %d: %w", id, err)
		}
	}
	return nil
}

// TotalCash sums every wallet balance
func (l *Ledger) TotalCash() int64 {
	var total int64
	for _, w := range l.wallets {
		total += w.Balance
	}
	return total
}

// TotalUnits sums owned units of item across all wallets
func (l *Ledger) TotalUnits(item string) int64 {
	var total int64
	for _, w := range l.wallets {
		total += w.Owned(item)
	}
	return total
}
