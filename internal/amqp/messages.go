package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"gastos/internal/core"
)

// ExpensePayload is the wire form of an expense inside an event.
type ExpensePayload struct {
	ID          int64      `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	AmountCents int64      `json:"amount_cents"`
	Category    string     `json:"category"`
	Date        time.Time  `json:"date"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

// ExpenseEventMessage is published for every committed expense mutation.
type ExpenseEventMessage struct {
	Type       string          `json:"type"`
	ExpenseID  int64           `json:"expense_id"`
	OwnerID    string          `json:"owner_id"`
	Expense    *ExpensePayload `json:"expense,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func NewExpenseEventMessage(ev core.ExpenseEvent) *ExpenseEventMessage {
	msg := &ExpenseEventMessage{
		Type:       string(ev.Type),
		ExpenseID:  ev.ExpenseID,
		OwnerID:    ev.OwnerID,
		OccurredAt: ev.OccurredAt,
	}
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = time.Now().UTC()
	}
	if e := ev.Expense; e != nil {
		msg.Expense = &ExpensePayload{
			ID:          e.ID,
			OwnerID:     e.OwnerID,
			Name:        e.Name,
			Description: e.Description,
			AmountCents: e.Amount.Cents,
			Category:    e.Category,
			Date:        e.Date,
			PaidAt:      e.PaidAt,
		}
	}
	return msg
}

// Event converts the message back into the domain event.
func (m *ExpenseEventMessage) Event() core.ExpenseEvent {
	ev := core.ExpenseEvent{
		Type:       core.EventType(m.Type),
		ExpenseID:  m.ExpenseID,
		OwnerID:    m.OwnerID,
		OccurredAt: m.OccurredAt,
	}
	if p := m.Expense; p != nil {
		ev.Expense = &core.Expense{
			ID:          p.ID,
			OwnerID:     p.OwnerID,
			Name:        p.Name,
			Description: p.Description,
			Amount:      core.Money{Cents: p.AmountCents},
			Category:    p.Category,
			Date:        p.Date,
			PaidAt:      p.PaidAt,
		}
	}
	return ev
}

func (m *ExpenseEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseEventMessageFromJSON decodes and sanity-checks a message body.
func ExpenseEventMessageFromJSON(data []byte) (*ExpenseEventMessage, error) {
	var msg ExpenseEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch core.EventType(msg.Type) {
	case core.EventExpenseCreated, core.EventExpenseUpdated:
		if msg.Expense == nil {
			return nil, fmt.Errorf("%s event without expense", msg.Type)
		}
	case core.EventExpenseDeleted:
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	if msg.ExpenseID <= 0 {
		return nil, fmt.Errorf("missing expense id")
	}
	return &msg, nil
}
