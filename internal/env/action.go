package env

import (
	"fmt"
	"math"
)

// ActionKind is the decoded meaning of Action.Type.
type ActionKind int

const (
	ActionBuy ActionKind = iota
	ActionSell
	ActionHold
)

func (k ActionKind) String() string {
	switch k {
	case ActionBuy:
		return "buy"
	case ActionSell:
		return "sell"
	default:
		return "hold"
	}
}

// Action is the agent's two-component continuous action.
// Type in [0,3) selects buy/sell/hold, Amount in [0,1] is the fraction to trade.
type Action struct {
	Type   float64 `json:"type"`
	Amount float64 `json:"amount"`
}

// ActionSpace bounds, inclusive.
var (
	ActionLow  = Action{Type: 0, Amount: 0}
	ActionHigh = Action{Type: 3, Amount: 1}
)

func Buy(amount float64) Action  { return Action{Type: 0.5, Amount: amount} }
func Sell(amount float64) Action { return Action{Type: 1.5, Amount: amount} }
func Hold() Action               { return Action{Type: 2.5, Amount: 0} }

func (a Action) Kind() ActionKind {
	switch {
	case a.Type < 1:
		return ActionBuy
	case a.Type < 2:
		return ActionSell
	default:
		return ActionHold
	}
}

// Clip clamps both components into the action space.
func (a Action) Clip() Action {
	return Action{
		Type:   clamp(a.Type, ActionLow.Type, ActionHigh.Type),
		Amount: clamp(a.Amount, ActionLow.Amount, ActionHigh.Amount),
	}
}

func (a Action) validate() error {
	if math.IsNaN(a.Type) || math.IsNaN(a.Amount) {
		return fmt.Errorf("%w: NaN component in %+v", ErrInvalidAction, a)
	}
	return nil
}

func (a Action) String() string {
	return fmt.Sprintf("%s(%.4f)", a.Kind(), a.Amount)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
