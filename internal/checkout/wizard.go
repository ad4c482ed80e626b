// Package checkout implements the checkout wizard: a strictly linear state
// machine that collects the table number, order type, and tip before handing
// the session to the payment pipeline.
package checkout

import (
	"errors"
	"fmt"
)

// State is one step of the checkout flow.
type State string

const (
	StateIdle                State = "IDLE"
	StateCollectingTable     State = "COLLECTING_TABLE"
	StateCollectingOrderType State = "COLLECTING_ORDER_TYPE"
	StateCollectingTip       State = "COLLECTING_TIP"
	StateProcessing          State = "PROCESSING"
	StateSuccess             State = "SUCCESS"
	StateFailed              State = "FAILED"
)

// OrderType is the closed set of fulfilment types.
type OrderType string

const (
	OrderTypeDineIn OrderType = "dine_in"
	OrderTypeToGo   OrderType = "to_go"
)

var (
	ErrEmptyCart        = errors.New("checkout: cart is empty")
	ErrInvalidTable     = errors.New("checkout: table number must be 1-3 digits")
	ErrInvalidOrderType = errors.New("checkout: unknown order type")
	ErrNegativeTip      = errors.New("checkout: tip must not be negative")
)

// TransitionError reports an input arriving in the wrong state.
type TransitionError struct {
	From  State
	Input string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("checkout: cannot %s in state %s", e.Input, e.From)
}

// Context accumulates the operator's answers across wizard steps. It is
// consumed exactly once by the payment pipeline and reset afterwards.
type Context struct {
	TableLabel string
	OrderType  OrderType
	Tip        float64
}

// Wizard drives the linear checkout flow. Forward transitions are pure,
// synchronous input validation; only Processing carries side effects, and
// those belong to the pipeline, not the wizard. Not safe for concurrent
// use; the owning session serialises access.
type Wizard struct {
	state State
	ctx   Context

	// TogoTableLabel, when non-empty, replaces the entered table number
	// for to-go orders (e.g. "TO GO"). Empty keeps the stand number.
	TogoTableLabel string
}

func NewWizard() *Wizard {
	return &Wizard{state: StateIdle}
}

func (w *Wizard) State() State { return w.state }

// Context returns the collected answers so far.
func (w *Wizard) Context() Context { return w.ctx }

// Start enters the table-collection step. The caller guards the non-empty
// cart requirement; cartSize is passed so the guard lives in one place.
func (w *Wizard) Start(cartSize int) error {
	if w.state != StateIdle {
		return &TransitionError{From: w.state, Input: "start"}
	}
	if cartSize == 0 {
		return ErrEmptyCart
	}
	w.state = StateCollectingTable
	return nil
}

// ConfirmTable records the number-stand label and advances to order-type
// collection. The label must be a 1-3 digit string (numeric keypad input).
func (w *Wizard) ConfirmTable(table string) error {
	if w.state != StateCollectingTable {
		return &TransitionError{From: w.state, Input: "confirm table"}
	}
	if !validTable(table) {
		return ErrInvalidTable
	}
	w.ctx.TableLabel = table
	w.state = StateCollectingOrderType
	return nil
}

// SelectOrderType records the fulfilment type and advances to tip
// collection.
func (w *Wizard) SelectOrderType(t OrderType) error {
	if w.state != StateCollectingOrderType {
		return &TransitionError{From: w.state, Input: "select order type"}
	}
	if t != OrderTypeDineIn && t != OrderTypeToGo {
		return ErrInvalidOrderType
	}
	w.ctx.OrderType = t
	if t == OrderTypeToGo && w.TogoTableLabel != "" {
		w.ctx.TableLabel = w.TogoTableLabel
	}
	w.state = StateCollectingTip
	return nil
}

// SelectTip records the tip and enters Processing. There is no cancel from
// tip collection; tip selection always proceeds to payment.
func (w *Wizard) SelectTip(tip float64) error {
	if w.state != StateCollectingTip {
		return &TransitionError{From: w.state, Input: "select tip"}
	}
	if tip < 0 {
		return ErrNegativeTip
	}
	w.ctx.Tip = tip
	w.state = StateProcessing
	return nil
}

// Cancel aborts the wizard from a collecting state and returns to Idle
// without touching the cart. Context collected so far is discarded.
func (w *Wizard) Cancel() error {
	switch w.state {
	case StateCollectingTable, StateCollectingOrderType, StateFailed:
		w.state = StateIdle
		w.ctx = Context{}
		return nil
	default:
		return &TransitionError{From: w.state, Input: "cancel"}
	}
}

// Succeed marks the pipeline outcome. Context is reset; the session owns
// clearing the cart and scheduling the return to Idle.
func (w *Wizard) Succeed() error {
	if w.state != StateProcessing {
		return &TransitionError{From: w.state, Input: "succeed"}
	}
	w.state = StateSuccess
	w.ctx = Context{}
	return nil
}

// Fail marks a fatal pipeline outcome. Cart and context are preserved so
// the operator can retry.
func (w *Wizard) Fail() error {
	if w.state != StateProcessing {
		return &TransitionError{From: w.state, Input: "fail"}
	}
	w.state = StateFailed
	return nil
}

// Retry restarts a failed checkout from the table step, keeping the cart.
func (w *Wizard) Retry() error {
	if w.state != StateFailed {
		return &TransitionError{From: w.state, Input: "retry"}
	}
	w.state = StateCollectingTable
	return nil
}

// Reset returns the wizard to Idle unconditionally. Used by the success
// display timer and the idle monitor.
func (w *Wizard) Reset() {
	w.state = StateIdle
	w.ctx = Context{}
}

func validTable(s string) bool {
	if len(s) < 1 || len(s) > 3 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
