package rules

// DefaultRules returns the starter rule set used when the server runs
// without a database. IDs are assigned by the store at seed time.
func DefaultRules() []*Rule {
	return []*Rule{
		{
			Name:      "Large expense",
			Condition: "amount > 200",
			Actions:   []ActionKind{ActionFlag},
			Active:    true,
		},
		{
			Name:      "High expense with overtime",
			Condition: "amount > 200 && working_hours > 12",
			Actions:   []ActionKind{ActionReject},
			Active:    true,
		},
		{
			Name:      "Food expense over 100",
			Condition: `category == "Food" && amount > 100`,
			Actions:   []ActionKind{ActionRequireReceipt},
			Active:    true,
		},
		{
			Name:      "Manager approval required",
			Condition: "amount > 1000",
			Actions:   []ActionKind{ActionRequireApproval},
			Active:    true,
		},
		{
			Name:      "Auto-approve small expenses",
			Condition: "amount <= 50",
			Actions:   []ActionKind{ActionAccept},
			Active:    true,
		},
	}
}
