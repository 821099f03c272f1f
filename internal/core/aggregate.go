package core

import (
	"fmt"
	"time"
)

// MonthAbbrev holds the labels used by the per-month breakdowns.
var MonthAbbrev = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

type (
	CategoryTotal struct {
		Category string
		Total    Money
	}

	NameTotal struct {
		Name  string
		Total Money
	}

	MonthNames struct {
		Month  string
		Totals []NameTotal
	}

	// Series is a distinct expense name inside a category.
	Series struct {
		Name string
		Paid bool
	}

	CategoryDetail struct {
		Category    string
		Total       Money
		TotalUnpaid Money
		ByName      []NameTotal
		Months      []MonthNames
		Series      []Series
	}

	// Period selects a calendar window. Zero Month or Year means unset.
	Period struct {
		Month    int
		Year     int
		Location *time.Location
	}
)

func (p Period) Validate() error {
	if p.Month < 0 || p.Month > 12 {
		return fmt.Errorf("%w: %d", ErrInvalidMonth, p.Month)
	}
	if p.Year < 0 {
		return fmt.Errorf("%w: year %d", ErrInvalidDate, p.Year)
	}
	return nil
}

func (p Period) loc() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Bounds returns the half-open window [from, to). ok is false when the period
// does not filter by date: only Month set, or a period that fails Validate.
func (p Period) Bounds() (from, to time.Time, ok bool) {
	if p.Year == 0 || p.Validate() != nil {
		return time.Time{}, time.Time{}, false
	}
	loc := p.loc()
	if p.Month == 0 {
		from = time.Date(p.Year, time.January, 1, 0, 0, 0, 0, loc)
		return from, from.AddDate(1, 0, 0), true
	}
	from = time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 1, 0), true
}

// Contains reports whether t falls inside the period window.
func (p Period) Contains(t time.Time) bool {
	from, to, ok := p.Bounds()
	if !ok {
		return true
	}
	return !t.Before(from) && t.Before(to)
}

// AggregateByCategory sums amounts per category in first-seen order, keeping only
// expenses inside p. An invalid period applies no filter.
func AggregateByCategory(expenses []Expense, p Period) []CategoryTotal {
	out := make([]CategoryTotal, 0)
	index := make(map[string]int)
	for _, e := range expenses {
		if !p.Contains(e.Date) {
			continue
		}
		i, ok := index[e.Category]
		if !ok {
			i = len(out)
			index[e.Category] = i
			out = append(out, CategoryTotal{Category: e.Category})
		}
		out[i].Total = out[i].Total.Add(e.Amount)
	}
	return out
}

// AggregateByNamePerMonth returns twelve entries, Jan to Dec, each summing the
// amounts per name for that month. A non-zero year restricts the input to it.
func AggregateByNamePerMonth(expenses []Expense, year int, loc *time.Location) []MonthNames {
	if loc == nil {
		loc = time.UTC
	}
	totals := [12][]NameTotal{}
	index := [12]map[string]int{}
	for _, e := range expenses {
		d := e.Date.In(loc)
		if year != 0 && d.Year() != year {
			continue
		}
		m := int(d.Month()) - 1
		if index[m] == nil {
			index[m] = make(map[string]int)
		}
		i, ok := index[m][e.Name]
		if !ok {
			i = len(totals[m])
			index[m][e.Name] = i
			totals[m] = append(totals[m], NameTotal{Name: e.Name})
		}
		totals[m][i].Total = totals[m][i].Total.Add(e.Amount)
	}

	out := make([]MonthNames, 12)
	for m := range out {
		t := totals[m]
		if t == nil {
			t = []NameTotal{}
		}
		out[m] = MonthNames{Month: MonthAbbrev[m], Totals: t}
	}
	return out
}

// BuildCategoryDetail summarizes one category for the dashboard detail view.
func BuildCategoryDetail(expenses []Expense, category string, year int, loc *time.Location) CategoryDetail {
	p := Period{Year: year, Location: loc}
	matching := make([]Expense, 0)
	for _, e := range expenses {
		if e.Category == category && p.Contains(e.Date) {
			matching = append(matching, e)
		}
	}

	d := CategoryDetail{
		Category: category,
		ByName:   []NameTotal{},
		Series:   []Series{},
	}
	names := make(map[string]int)
	for _, e := range matching {
		d.Total = d.Total.Add(e.Amount)
		if !e.IsPaid() {
			d.TotalUnpaid = d.TotalUnpaid.Add(e.Amount)
		}
		i, ok := names[e.Name]
		if !ok {
			i = len(d.ByName)
			names[e.Name] = i
			d.ByName = append(d.ByName, NameTotal{Name: e.Name})
			d.Series = append(d.Series, Series{Name: e.Name})
		}
		d.ByName[i].Total = d.ByName[i].Total.Add(e.Amount)
		if e.IsPaid() {
			d.Series[i].Paid = true
		}
	}
	d.Months = AggregateByNamePerMonth(matching, year, loc)
	return d
}

// GrandTotal sums the category totals.
func GrandTotal(totals []CategoryTotal) Money {
	var sum Money
	for _, t := range totals {
		sum = sum.Add(t.Total)
	}
	return sum
}

// DistinctCategories returns category names in first-seen order.
func DistinctCategories(expenses []Expense) []string {
	out := make([]string, 0)
	seen := make(map[string]struct{})
	for _, e := range expenses {
		if _, ok := seen[e.Category]; ok {
			continue
		}
		seen[e.Category] = struct{}{}
		out = append(out, e.Category)
	}
	return out
}

// YearSpan lists every year from the earliest to the latest expense date.
func YearSpan(expenses []Expense, loc *time.Location) []int {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]int, 0)
	if len(expenses) == 0 {
		return out
	}
	lo, hi := expenses[0].Date.In(loc).Year(), expenses[0].Date.In(loc).Year()
	for _, e := range expenses[1:] {
		y := e.Date.In(loc).Year()
		lo = min(lo, y)
		hi = max(hi, y)
	}
	for y := lo; y <= hi; y++ {
		out = append(out, y)
	}
	return out
}
