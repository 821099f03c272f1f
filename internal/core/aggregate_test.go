package core

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func exp(name, category string, cents int64, date time.Time) Expense {
	return Expense{OwnerID: "u1", Name: name, Category: category, Amount: Money{Cents: cents}, Date: date}
}

func TestAggregateByCategoryEmpty(t *testing.T) {
	got := AggregateByCategory(nil, Period{})
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestAggregateByCategoryFirstSeenOrder(t *testing.T) {
	d := day(2024, 3, 10)
	in := []Expense{
		exp("Lunch", "Food", 1000, d),
		exp("Rent", "Rent", 10000, d),
		exp("Dinner", "Food", 500, d),
	}
	want := []CategoryTotal{
		{Category: "Food", Total: Money{Cents: 1500}},
		{Category: "Rent", Total: Money{Cents: 10000}},
	}
	if got := AggregateByCategory(in, Period{}); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got := GrandTotal(want); got.Cents != 11500 {
		t.Fatalf("grand total = %d", got.Cents)
	}
}

func TestAggregateByCategoryMonthWindow(t *testing.T) {
	in := []Expense{
		exp("a", "Food", 1, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
		exp("b", "Food", 2, time.Date(2024, 3, 31, 23, 59, 59, 999_000_000, time.UTC)),
		exp("c", "Food", 4, time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC)),
		exp("d", "Food", 8, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)),
		exp("e", "Food", 16, time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC)),
	}
	got := AggregateByCategory(in, Period{Month: 3, Year: 2024})
	want := []CategoryTotal{{Category: "Food", Total: Money{Cents: 3}}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	got = AggregateByCategory(in, Period{Year: 2024})
	if got[0].Total.Cents != 15 {
		t.Fatalf("year filter total = %d, want 15", got[0].Total.Cents)
	}

	// month alone does not filter
	got = AggregateByCategory(in, Period{Month: 3})
	if got[0].Total.Cents != 31 {
		t.Fatalf("month-only total = %d, want 31", got[0].Total.Cents)
	}

	// an out-of-range month must not normalize into January of the next year
	got = AggregateByCategory(in, Period{Month: 13, Year: 2024})
	if got[0].Total.Cents != 31 {
		t.Fatalf("invalid period total = %d, want 31", got[0].Total.Cents)
	}
}

func TestAggregateByCategoryLocation(t *testing.T) {
	sp, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// 2024-04-01T01:00Z is still March 31 in Sao Paulo
	in := []Expense{exp("a", "Food", 7, time.Date(2024, 4, 1, 1, 0, 0, 0, time.UTC))}
	if got := AggregateByCategory(in, Period{Month: 3, Year: 2024, Location: sp}); len(got) != 1 {
		t.Fatalf("expected expense inside March in Sao Paulo")
	}
	if got := AggregateByCategory(in, Period{Month: 3, Year: 2024}); len(got) != 0 {
		t.Fatalf("expected expense outside March in UTC")
	}
}

func TestPeriodValidate(t *testing.T) {
	for _, m := range []int{0, 1, 12} {
		if err := (Period{Month: m}).Validate(); err != nil {
			t.Fatalf("month %d: %v", m, err)
		}
	}
	for _, m := range []int{-1, 13} {
		if err := (Period{Month: m}).Validate(); !errors.Is(err, ErrInvalidMonth) {
			t.Fatalf("month %d: expected ErrInvalidMonth, got %v", m, err)
		}
	}
}

func TestAggregateByNamePerMonth(t *testing.T) {
	in := []Expense{
		exp("Gym", "Health", 100, day(2024, 1, 5)),
		exp("Gym", "Health", 100, day(2024, 1, 20)),
		exp("Doctor", "Health", 300, day(2024, 1, 9)),
		exp("Gym", "Health", 100, day(2024, 12, 5)),
		exp("Gym", "Health", 999, day(2023, 1, 5)),
	}
	got := AggregateByNamePerMonth(in, 2024, nil)
	if len(got) != 12 {
		t.Fatalf("expected 12 months, got %d", len(got))
	}
	for i, m := range got {
		if m.Month != MonthAbbrev[i] {
			t.Fatalf("month %d labelled %q", i, m.Month)
		}
		if m.Totals == nil {
			t.Fatalf("month %s has nil totals", m.Month)
		}
	}
	wantJan := []NameTotal{{Name: "Gym", Total: Money{Cents: 200}}, {Name: "Doctor", Total: Money{Cents: 300}}}
	if !reflect.DeepEqual(got[0].Totals, wantJan) {
		t.Fatalf("jan = %v, want %v", got[0].Totals, wantJan)
	}
	if len(got[11].Totals) != 1 || got[11].Totals[0].Total.Cents != 100 {
		t.Fatalf("dec = %v", got[11].Totals)
	}

	all := AggregateByNamePerMonth(in, 0, nil)
	if all[0].Totals[0].Total.Cents != 1199 {
		t.Fatalf("no year filter jan gym = %d", all[0].Totals[0].Total.Cents)
	}
}

func TestBuildCategoryDetail(t *testing.T) {
	paid := day(2024, 2, 1)
	in := []Expense{
		exp("Gym", "Health", 100, day(2024, 1, 5)),
		exp("Doctor", "Health", 300, day(2024, 2, 9)),
		exp("Rent", "Housing", 5000, day(2024, 1, 1)),
		exp("Gym", "Health", 100, day(2023, 1, 5)),
	}
	in[0].PaidAt = &paid

	d := BuildCategoryDetail(in, "Health", 2024, nil)
	if d.Total.Cents != 400 || d.TotalUnpaid.Cents != 300 {
		t.Fatalf("total=%d unpaid=%d", d.Total.Cents, d.TotalUnpaid.Cents)
	}
	wantSeries := []Series{{Name: "Gym", Paid: true}, {Name: "Doctor"}}
	if !reflect.DeepEqual(d.Series, wantSeries) {
		t.Fatalf("series = %v", d.Series)
	}
	if len(d.Months) != 12 || len(d.Months[1].Totals) != 1 {
		t.Fatalf("months = %v", d.Months)
	}
}

func TestDistinctCategoriesAndYearSpan(t *testing.T) {
	in := []Expense{
		exp("a", "B", 1, day(2021, 6, 1)),
		exp("a", "A", 1, day(2024, 6, 1)),
		exp("a", "B", 1, day(2022, 6, 1)),
	}
	if got := DistinctCategories(in); !reflect.DeepEqual(got, []string{"B", "A"}) {
		t.Fatalf("categories = %v", got)
	}
	if got := YearSpan(in, nil); !reflect.DeepEqual(got, []int{2021, 2022, 2023, 2024}) {
		t.Fatalf("years = %v", got)
	}
	if got := YearSpan(nil, nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty years, got %v", got)
	}
}
