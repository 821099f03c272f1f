package core

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func template() ExpenseTemplate {
	return ExpenseTemplate{
		OwnerID:  "u1",
		Name:     "Gym",
		Amount:   Money{Cents: 9990},
		Category: "Health",
	}
}

func dates(in []ExpenseInput) []time.Time {
	out := make([]time.Time, len(in))
	for i, e := range in {
		out[i] = e.Date
	}
	return out
}

func TestGenerateRecurrences(t *testing.T) {
	cases := []struct {
		name    string
		cadence Cadence
		start   time.Time
		end     time.Time
		want    []time.Time
	}{
		{
			name:    "daily week",
			cadence: Daily,
			start:   day(2024, 3, 1),
			end:     day(2024, 3, 7),
			want: []time.Time{
				day(2024, 3, 1), day(2024, 3, 2), day(2024, 3, 3), day(2024, 3, 4),
				day(2024, 3, 5), day(2024, 3, 6), day(2024, 3, 7),
			},
		},
		{
			name:    "weekly",
			cadence: Weekly,
			start:   day(2024, 1, 1),
			end:     day(2024, 1, 22),
			want:    []time.Time{day(2024, 1, 1), day(2024, 1, 8), day(2024, 1, 15), day(2024, 1, 22)},
		},
		{
			name:    "monthly end of month rollover common year",
			cadence: Monthly,
			start:   day(2023, 1, 31),
			end:     day(2023, 3, 31),
			want:    []time.Time{day(2023, 1, 31), day(2023, 3, 3)},
		},
		{
			name:    "monthly end of month rollover leap year",
			cadence: Monthly,
			start:   day(2024, 1, 31),
			end:     day(2024, 4, 2),
			want:    []time.Time{day(2024, 1, 31), day(2024, 3, 2), day(2024, 4, 2)},
		},
		{
			name:    "yearly from leap day",
			cadence: Yearly,
			start:   day(2024, 2, 29),
			end:     day(2026, 12, 31),
			want:    []time.Time{day(2024, 2, 29), day(2025, 3, 1), day(2026, 3, 1)},
		},
		{
			name:    "none ignores end",
			cadence: None,
			start:   day(2024, 5, 5),
			end:     day(2030, 1, 1),
			want:    []time.Time{day(2024, 5, 5)},
		},
		{
			name:    "none with end before start",
			cadence: None,
			start:   day(2024, 5, 5),
			end:     day(2024, 1, 1),
			want:    []time.Time{day(2024, 5, 5)},
		},
		{
			name:    "start after end",
			cadence: Daily,
			start:   day(2024, 5, 5),
			end:     day(2024, 5, 4),
			want:    []time.Time{},
		},
		{
			name:    "single day window",
			cadence: Monthly,
			start:   day(2024, 5, 5),
			end:     day(2024, 5, 5),
			want:    []time.Time{day(2024, 5, 5)},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := GenerateRecurrences(RecurrenceRequest{
				Template: template(),
				Cadence:  tc.cadence,
				Start:    tc.start,
				End:      tc.end,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(dates(got), tc.want) {
				t.Fatalf("dates = %v, want %v", dates(got), tc.want)
			}
			for _, occ := range got {
				if occ.Template() != template() {
					t.Fatalf("template fields not copied: %+v", occ)
				}
				if occ.PaidAt != nil {
					t.Fatalf("occurrence should be unpaid")
				}
			}
		})
	}
}

func TestGenerateRecurrencesValidation(t *testing.T) {
	base := RecurrenceRequest{Template: template(), Cadence: Daily, Start: day(2024, 1, 1), End: day(2024, 1, 2)}

	cases := map[string]func(r *RecurrenceRequest){
		"unknown cadence": func(r *RecurrenceRequest) { r.Cadence = "hourly" },
		"negative amount": func(r *RecurrenceRequest) { r.Template.Amount = Money{Cents: -1} },
		"zero start":      func(r *RecurrenceRequest) { r.Start = time.Time{} },
		"empty name":      func(r *RecurrenceRequest) { r.Template.Name = "" },
		"empty category":  func(r *RecurrenceRequest) { r.Template.Category = "" },
		"empty owner":     func(r *RecurrenceRequest) { r.Template.OwnerID = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := base
			mutate(&req)
			seq, err := Recurrences(req)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
			if seq != nil {
				t.Fatalf("expected no sequence on invalid input")
			}
		})
	}
}

func TestRecurrencesDeterministicAndLazy(t *testing.T) {
	req := RecurrenceRequest{Template: template(), Cadence: Monthly, Start: day(2024, 1, 31), End: day(2026, 1, 31)}

	a, _ := GenerateRecurrences(req)
	b, _ := GenerateRecurrences(req)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("expected identical sequences")
	}

	seq, err := Recurrences(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n := 0
	for range seq {
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Fatalf("expected early stop at 3, got %d", n)
	}
}

func TestCountRecurrences(t *testing.T) {
	req := RecurrenceRequest{Template: template(), Cadence: Daily, Start: day(2024, 1, 1), End: day(2024, 12, 31)}
	n, err := CountRecurrences(req, 0)
	if err != nil || n != 366 {
		t.Fatalf("expected 366, got %d (err=%v)", n, err)
	}
	n, _ = CountRecurrences(req, 10)
	if n != 11 {
		t.Fatalf("expected count to stop at limit+1, got %d", n)
	}
}
