package rules

// ActionKind is one of a closed set of outcomes a rule can demand.
type ActionKind string

const (
	ActionReject          ActionKind = "reject"
	ActionAccept          ActionKind = "accept"
	ActionRequireApproval ActionKind = "require_approval"
	ActionRequireReceipt  ActionKind = "require_receipt"
	ActionFlag            ActionKind = "flag"
)

// actionPriorities fixes the total order between actions. Lower number wins.
// Priorities are unique, so resolution can never tie.
var actionPriorities = map[ActionKind]int{
	ActionReject:          1,
	ActionAccept:          2,
	ActionRequireApproval: 3,
	ActionRequireReceipt:  4,
	ActionFlag:            5,
}

// Valid reports whether a is a known action kind.
func (a ActionKind) Valid() bool {
	_, ok := actionPriorities[a]
	return ok
}

// priority returns the fixed priority of a known action.
func (a ActionKind) priority() int {
	return actionPriorities[a]
}

// HighestPriorityAction picks the single governing action from a set of
// matched actions. The second return is false when the set is empty, which
// callers map to "accepted, no rule matched".
func HighestPriorityAction(actions []ActionKind) (ActionKind, bool) {
	if len(actions) == 0 {
		return "", false
	}

	winner := actions[0]
	for _, a := range actions[1:] {
		if a.priority() < winner.priority() {
			winner = a
		}
	}
	return winner, true
}
