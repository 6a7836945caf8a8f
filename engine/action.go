package engine

import (
	"fmt"

	"github.com/quantfold/pilot/broker"
)

// GapState classifies one tier's moving-average gap. Classification
// happens upstream; the engine only consumes the vocabulary.
type GapState int

const (
	GapThinking GapState = iota
	GapClear
	GapTrendConfirmed
	GapReversed
	GapHolding
	GapClosing
	GapFolding
	GapBuying
	GapSelling
	GapAdding
)

func (g GapState) String() string {
	switch g {
	case GapThinking:
		return "THINKING"
	case GapClear:
		return "CLEAR"
	case GapTrendConfirmed:
		return "TREND_CONFIRMED"
	case GapReversed:
		return "REVERSED"
	case GapHolding:
		return "HOLDING"
	case GapClosing:
		return "CLOSING"
	case GapFolding:
		return "FOLDING"
	case GapBuying:
		return "BUYING"
	case GapSelling:
		return "SELLING"
	case GapAdding:
		return "ADDING"
	}
	return "UNKNOWN"
}

// ParseGapState maps the string form back to a GapState. Scripted
// sessions carry tier readings as text.
func ParseGapState(s string) (GapState, error) {
	for g := GapThinking; g <= GapAdding; g++ {
		if g.String() == s {
			return g, nil
		}
	}
	return GapThinking, fmt.Errorf("unknown gap state %q", s)
}

// TierReading is one tier's classified state. Dir disambiguates the
// direction for states that do not imply one (Clear, TrendConfirmed).
type TierReading struct {
	State GapState
	Dir   broker.Direction
}

// Reading is the full three-tier view for one symbol on one cycle:
// outer (slowest pair), mid, inner (fastest pair).
type Reading struct {
	Outer TierReading
	Mid   TierReading
	Inner TierReading
}

// Action is the engine's closed output vocabulary. Blocked variants are
// deliberate no-ops: the trend wanted growth but access rules refused.
type Action int

const (
	ActionWait Action = iota
	ActionBuy
	ActionSell
	ActionAdd
	ActionCloseLosers
	ActionCloseSlowly
	ActionCloseAll
	ActionBuyBlocked
	ActionSellBlocked
	ActionAddBlocked
)

func (a Action) String() string {
	switch a {
	case ActionWait:
		return "WAIT"
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	case ActionAdd:
		return "ADDING"
	case ActionCloseLosers:
		return "CLOSE_LOSERS"
	case ActionCloseSlowly:
		return "CLOSE_SLOWLY"
	case ActionCloseAll:
		return "CLOSE_ALL"
	case ActionBuyBlocked:
		return "BUY_BLOCKED"
	case ActionSellBlocked:
		return "SELL_BLOCKED"
	case ActionAddBlocked:
		return "ADDING_BLOCKED"
	}
	return "UNKNOWN"
}

// Entry reports whether the action opens or grows exposure.
func (a Action) Entry() bool {
	return a == ActionBuy || a == ActionSell || a == ActionAdd
}

// Blocked returns the no-op variant of an entry action.
func (a Action) Blocked() Action {
	switch a {
	case ActionBuy:
		return ActionBuyBlocked
	case ActionSell:
		return ActionSellBlocked
	case ActionAdd:
		return ActionAddBlocked
	}
	return a
}

// Decision is an action plus the direction it applies to. Direction is
// meaningful only for entry actions and their blocked variants.
type Decision struct {
	Action Action
	Dir    broker.Direction
}

func outerConfirms(s GapState) bool {
	return s == GapClear || s == GapTrendConfirmed || s == GapReversed
}

func midConfirms(s GapState) bool {
	return s == GapClear || s == GapAdding
}

func innerConfirms(s GapState) bool {
	return s == GapClear || s == GapBuying || s == GapSelling
}

func innerDirection(t TierReading) broker.Direction {
	switch t.State {
	case GapBuying:
		return broker.Long
	case GapSelling:
		return broker.Short
	}
	return t.Dir
}

// Decide maps a three-tier reading to a trend action. Pure; access
// rules are layered on separately.
//
// An outer tier stuck at Thinking means a ranging market: no entries
// whatever the faster tiers say, but risk reduction stays available.
// Full three-tier confirmation yields an entry in the inner tier's
// direction, an addition when the mid tier reads Adding. Partial
// confirmation can only reduce: fold on inner Folding, trickle out on
// mid Holding, escalate toward a full unwind on mid Closing.
func Decide(r Reading) Decision {
	if r.Outer.State == GapThinking {
		switch {
		case r.Inner.State == GapFolding:
			return Decision{Action: ActionCloseLosers}
		case r.Mid.State == GapHolding || r.Mid.State == GapClosing:
			return Decision{Action: ActionCloseSlowly}
		}
		return Decision{Action: ActionWait}
	}

	if outerConfirms(r.Outer.State) && midConfirms(r.Mid.State) && innerConfirms(r.Inner.State) {
		dir := innerDirection(r.Inner)
		if r.Mid.State == GapAdding {
			return Decision{Action: ActionAdd, Dir: dir}
		}
		if dir == broker.Short {
			return Decision{Action: ActionSell, Dir: broker.Short}
		}
		return Decision{Action: ActionBuy, Dir: broker.Long}
	}

	switch {
	case r.Inner.State == GapFolding:
		return Decision{Action: ActionCloseLosers}
	case r.Mid.State == GapHolding:
		return Decision{Action: ActionCloseSlowly}
	case r.Mid.State == GapClosing:
		return Decision{Action: ActionCloseAll}
	}
	return Decision{Action: ActionWait}
}
