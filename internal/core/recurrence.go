package core

import (
	"iter"
	"time"
)

// RecurrenceRequest describes a template expense repeated over [Start, End].
type RecurrenceRequest struct {
	Template ExpenseTemplate
	Cadence  Cadence
	Start    time.Time
	End      time.Time
}

// advanceFunc moves the cursor forward by one cadence step. A nil entry means the
// cadence emits a single occurrence.
type advanceFunc func(time.Time) time.Time

var advanceRules = map[Cadence]advanceFunc{
	None:    nil,
	Daily:   func(t time.Time) time.Time { return t.AddDate(0, 0, 1) },
	Weekly:  func(t time.Time) time.Time { return t.AddDate(0, 0, 7) },
	Monthly: func(t time.Time) time.Time { return t.AddDate(0, 1, 0) },
	Yearly:  func(t time.Time) time.Time { return t.AddDate(1, 0, 0) },
}

func (r RecurrenceRequest) Validate() error {
	if err := r.Cadence.Validate(); err != nil {
		return err
	}
	if err := r.Template.Validate(); err != nil {
		return err
	}
	if r.Start.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Recurrences validates req and returns the lazily produced occurrences in
// chronological order.
//
// Month and year steps are computed from the previous occurrence with AddDate
// normalization, so Jan 31 + 1 month lands on Mar 3 (Mar 2 in leap years) and the
// following step continues from there.
func Recurrences(req RecurrenceRequest) (iter.Seq[ExpenseInput], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	advance := advanceRules[req.Cadence]
	tmpl := req.Template

	return func(yield func(ExpenseInput) bool) {
		if advance == nil {
			yield(occurrence(tmpl, req.Start))
			return
		}
		for cursor := req.Start; !cursor.After(req.End); cursor = advance(cursor) {
			if !yield(occurrence(tmpl, cursor)) {
				return
			}
		}
	}, nil
}

// GenerateRecurrences collects every occurrence of req.
func GenerateRecurrences(req RecurrenceRequest) ([]ExpenseInput, error) {
	seq, err := Recurrences(req)
	if err != nil {
		return nil, err
	}
	out := make([]ExpenseInput, 0)
	for in := range seq {
		out = append(out, in)
	}
	return out, nil
}

// CountRecurrences returns the number of occurrences without materializing them,
// stopping once limit is exceeded. A limit <= 0 counts everything.
func CountRecurrences(req RecurrenceRequest, limit int) (int, error) {
	seq, err := Recurrences(req)
	if err != nil {
		return 0, err
	}
	n := 0
	for range seq {
		n++
		if limit > 0 && n > limit {
			break
		}
	}
	return n, nil
}

func occurrence(t ExpenseTemplate, date time.Time) ExpenseInput {
	return ExpenseInput{
		OwnerID:     t.OwnerID,
		Name:        t.Name,
		Description: t.Description,
		Amount:      t.Amount,
		Category:    t.Category,
		Date:        date,
	}
}
