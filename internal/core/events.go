package core

import "time"

type EventType string

const (
	EventExpenseCreated EventType = "expense.created"
	EventExpenseUpdated EventType = "expense.updated"
	EventExpenseDeleted EventType = "expense.deleted"
)

// ExpenseEvent is published after a committed expense mutation. Expense is nil for
// deletions.
type ExpenseEvent struct {
	Type       EventType
	ExpenseID  int64
	OwnerID    string
	Expense    *Expense
	OccurredAt time.Time
}
