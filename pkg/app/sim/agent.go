// Package sim drives a market with a population of autonomous trading agents
// and a weekly item drop.
package sim

import (
	"errors"
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"github.com/uhyunpark/dropmarket/pkg/app/core/market"
)

// Kind is an agent's behavioural archetype
type Kind int8

const (
	Novice Kind = iota
	Trader
	Investor
	Farmer
)

// Kinds is every kind in the order population weights are drawn
var Kinds = []Kind{Novice, Trader, Investor, Farmer}

func (k Kind) String() string {
	switch k {
	case Novice:
		return "novice"
	case Trader:
		return "trader"
	case Investor:
		return "investor"
	case Farmer:
		return "farmer"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return Novice, fmt.Errorf("unknown agent kind %q", s)
}

// Policy decides what an agent does when it is picked to act.
// Policies only touch the market through its public API.
type Policy interface {
	Kind() Kind
	Act(c *Context)
}

// AccountHolder is implemented by policies that control several game
// accounts (bot farms). Drops scale with the number of accounts.
type AccountHolder interface {
	NumberOfAccounts() int
}

// DefaultAccounts is used for policies that are not AccountHolders
const DefaultAccounts = 1

// AccountsOf returns how many accounts p controls
func AccountsOf(p Policy) int {
	if h, ok := p.(AccountHolder); ok && h.NumberOfAccounts() > 0 {
		return h.NumberOfAccounts()
	}
	return DefaultAccounts
}

// Agent pairs a wallet id with its behaviour. Agents live in the runner's
// arena and are addressed by ID; the wallet itself lives in the market.
type Agent struct {
	ID      market.AgentID
	Balance int64 // opening balance in cents
	Policy  Policy
}

// Context is what a policy sees while acting
type Context struct {
	Market *market.Market
	Rand   *rand.Rand
	Agent  market.AgentID

	logger *zap.SugaredLogger
	stats  *ActionStats
}

// ActionStats counts agent actions over a run
type ActionStats struct {
	Actions   int `json:"actions"`
	Placed    int `json:"placed"`
	Rejected  int `json:"rejected"`
	Cancelled int `json:"cancelled"`
	Opened    int `json:"opened"` // containers consumed
}

// NewContext builds a context for driving a policy directly
func NewContext(m *market.Market, rng *rand.Rand, agent market.AgentID, logger *zap.SugaredLogger) *Context {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Context{Market: m, Rand: rng, Agent: agent, logger: logger, stats: &ActionStats{}}
}

// Stats returns the action counters collected through this context
func (c *Context) Stats() ActionStats { return *c.stats }

func (c *Context) place(item string, side market.Side, price, qty int64) (market.Receipt, error) {
	r, err := c.Market.PlaceOrder(c.Agent, item, side, max(price, market.MinPrice), qty)
	if err != nil {
		c.stats.Rejected++
		c.logger.Debugw("agent_order_rejected", "agent", c.Agent, "item", item, "side", side.String(), "err", err)
		return r, err
	}
	c.stats.Placed++
	return r, nil
}

func (c *Context) buy(item string, price, qty int64) (market.Receipt, error) {
	return c.place(item, market.Buy, price, qty)
}

func (c *Context) sell(item string, price, qty int64) (market.Receipt, error) {
	return c.place(item, market.Sell, price, qty)
}

func (c *Context) cancel(id market.OrderID) {
	if err := c.Market.CancelOrder(id); err == nil {
		c.stats.Cancelled++
	}
}

// consume opens containers
func (c *Context) consume(item string, qty int64) {
	if err := c.Market.ConsumeItems(c.Agent, item, qty); err == nil {
		c.stats.Opened += int(qty)
	}
}

// available returns spendable cash
func (c *Context) available() int64 {
	w, err := c.Market.Wallet(c.Agent)
	if err != nil {
		return 0
	}
	return w.Available
}

// sellable returns item -> unlocked units for every item the agent could list now
func (c *Context) sellable() ([]string, map[string]int64) {
	w, err := c.Market.Wallet(c.Agent)
	if err != nil {
		return nil, nil
	}
	step := c.Market.CurrentStep()
	var items []string
	units := make(map[string]int64)
	for _, item := range w.Items() {
		if n := w.Unlocked(item, step); n > 0 {
			items = append(items, item)
			units[item] = n
		}
	}
	return items, units
}

func (c *Context) feeRate() float64 {
	return c.Market.Params().FeeRate.InexactFloat64()
}

func (c *Context) bestBid(item string) (int64, bool) {
	o, ok := c.Market.BestBid(item)
	return o.Price, ok
}

func (c *Context) bestAsk(item string) (int64, bool) {
	o, ok := c.Market.BestAsk(item)
	return o.Price, ok
}

// uniform returns a value in [lo, hi)
func (c *Context) uniform(lo, hi float64) float64 {
	return lo + c.Rand.Float64()*(hi-lo)
}

// between returns an integer in [lo, hi]
func (c *Context) between(lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	return lo + c.Rand.Int63n(hi-lo+1)
}

func isDuplicateBuy(err error) (market.OrderID, bool) {
	var dup *market.DuplicateBuyOrderError
	if errors.As(err, &dup) {
		return dup.OrderID, true
	}
	return 0, false
}
