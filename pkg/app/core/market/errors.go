package market

import (
	"errors"
	"fmt"

	"github.com/uhyunpark/dropmarket/pkg/app/core/account"
	"github.com/uhyunpark/dropmarket/pkg/app/core/orderbook"
)

// Placement and cancellation errors. Every one of them is reported before the
// market mutates anything.
var (
	ErrInvalidPrice          = errors.New("price must be at least one cent")
	ErrInvalidQuantity       = errors.New("quantity must be at least one")
	ErrInvalidSide           = errors.New("side must be buy or sell")
	ErrInvalidItem           = errors.New("item name cannot be empty")
	ErrInsufficientFunds     = account.ErrInsufficientFunds
	ErrInsufficientInventory = account.ErrInsufficientInventory
	ErrDuplicateBuyOrder     = orderbook.ErrDuplicateBuyOrder
	ErrOrderNotFound         = errors.New("order not found")
	ErrAgentNotFound         = account.ErrAgentNotFound
	ErrDuplicateAgent        = account.ErrDuplicateAgent
	ErrNegativeBalance       = account.ErrNegativeBalance
	ErrStepRegression        = errors.New("step cannot move backwards")
	ErrInvalidParams         = errors.New("invalid market params")
	ErrDuplicateItem         = errors.New("item already registered")
	ErrItemNotFound          = errors.New("item not registered")
)

// DuplicateBuyOrderError is returned when an agent already rests a bid on the
// item. OrderID is the resting bid so the caller can cancel it.
type DuplicateBuyOrderError struct {
	AgentID orderbook.AgentID
	Item    string
	OrderID orderbook.OrderID
}

func (e *DuplicateBuyOrderError) Error() string {
	return fmt.Sprintf("agent %d can place only one buy order on %q (resting order %d)", e.AgentID, e.Item, e.OrderID)
}

func (e *DuplicateBuyOrderError) Is(target error) bool {
	return target == ErrDuplicateBuyOrder
}
