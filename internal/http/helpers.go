package http

import (
	"strconv"
	"time"

	"gastos/internal/core"
	"gastos/internal/ports"
	"gastos/internal/services"
)

// JSON shapes of the API. Amounts carry cents plus a decimal and a display form.
type (
	moneyJSON struct {
		Cents     int64  `json:"cents"`
		Value     string `json:"value"`
		Formatted string `json:"formatted"`
	}

	userJSON struct {
		ID    string `json:"id"`
		Name  string `json:"name,omitempty"`
		Email string `json:"email,omitempty"`
	}

	expenseJSON struct {
		ID          int64     `json:"id"`
		OwnerID     string    `json:"owner_id"`
		Name        string    `json:"name"`
		Description string    `json:"description"`
		Amount      moneyJSON `json:"amount"`
		Category    string    `json:"category"`
		Date        string    `json:"date"`
		Paid        bool      `json:"paid"`
		PaidAt      *string   `json:"paid_at"`
		CreatedAt   string    `json:"created_at"`
		UpdatedAt   string    `json:"updated_at"`
	}

	pageJSON struct {
		Page           []expenseJSON `json:"page"`
		IsDone         bool          `json:"is_done"`
		ContinueCursor string        `json:"continue_cursor"`
	}

	failedJSON struct {
		Date  string `json:"date"`
		Error string `json:"error"`
	}

	recurringJSON struct {
		Created []int64      `json:"created"`
		Failed  []failedJSON `json:"failed"`
	}

	previewJSON struct {
		Dates []string `json:"dates"`
		Count int      `json:"count"`
	}

	optionJSON[T any] struct {
		Value T      `json:"value"`
		Label string `json:"label"`
	}

	categoryTotalJSON struct {
		Category string    `json:"category"`
		Total    moneyJSON `json:"total"`
	}

	summaryJSON struct {
		Total      moneyJSON           `json:"total"`
		Categories []categoryTotalJSON `json:"categories"`
	}

	nameTotalJSON struct {
		Name  string    `json:"name"`
		Total moneyJSON `json:"total"`
	}

	monthJSON struct {
		Month  string          `json:"month"`
		Totals []nameTotalJSON `json:"totals"`
	}

	seriesJSON struct {
		Name string `json:"name"`
		Paid bool   `json:"paid"`
	}

	detailJSON struct {
		Category    string          `json:"category"`
		Total       moneyJSON       `json:"total"`
		TotalUnpaid moneyJSON       `json:"total_unpaid"`
		ByName      []nameTotalJSON `json:"by_name"`
		Months      []monthJSON     `json:"months"`
		Series      []seriesJSON    `json:"series"`
	}

	uploadTargetJSON struct {
		URL       string `json:"url"`
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
	}

	fileJSON struct {
		ID          int64  `json:"id"`
		ExpenseID   int64  `json:"expense_id"`
		StorageID   string `json:"storage_id"`
		ContentType string `json:"content_type"`
		Filename    string `json:"filename"`
		Size        int64  `json:"size"`
		Type        string `json:"type,omitempty"`
		CreatedAt   string `json:"created_at"`
	}
)

func moneyOf(m core.Money) moneyJSON {
	return moneyJSON{Cents: m.Cents, Value: m.String(), Formatted: m.BRL()}
}

func expenseOf(e core.Expense, loc *time.Location) expenseJSON {
	out := expenseJSON{
		ID:          e.ID,
		OwnerID:     e.OwnerID,
		Name:        e.Name,
		Description: e.Description,
		Amount:      moneyOf(e.Amount),
		Category:    e.Category,
		Date:        e.Date.In(loc).Format(time.DateOnly),
		Paid:        e.IsPaid(),
		CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   e.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if e.PaidAt != nil {
		paid := e.PaidAt.UTC().Format(time.RFC3339)
		out.PaidAt = &paid
	}
	return out
}

func pageOf(p ports.Page, loc *time.Location) pageJSON {
	out := pageJSON{Page: make([]expenseJSON, 0, len(p.Expenses)), IsDone: p.IsDone, ContinueCursor: p.ContinueCursor}
	for _, e := range p.Expenses {
		out.Page = append(out.Page, expenseOf(e, loc))
	}
	return out
}

func recurringOf(res services.RecurringResult, loc *time.Location) recurringJSON {
	out := recurringJSON{Created: make([]int64, 0, len(res.Created)), Failed: make([]failedJSON, 0, len(res.Failed))}
	for _, c := range res.Created {
		out.Created = append(out.Created, c.ID)
	}
	for _, f := range res.Failed {
		_, _, msg := classify(f.Err)
		out.Failed = append(out.Failed, failedJSON{Date: f.Date.In(loc).Format(time.DateOnly), Error: msg})
	}
	return out
}

func previewOf(dates []time.Time, loc *time.Location) previewJSON {
	out := previewJSON{Dates: make([]string, 0, len(dates)), Count: len(dates)}
	for _, d := range dates {
		out.Dates = append(out.Dates, d.In(loc).Format(time.DateOnly))
	}
	return out
}

func categoryOptions(cats []string) []optionJSON[string] {
	out := make([]optionJSON[string], 0, len(cats))
	for _, c := range cats {
		out = append(out, optionJSON[string]{Value: c, Label: c})
	}
	return out
}

func yearOptions(years []int) []optionJSON[int] {
	out := make([]optionJSON[int], 0, len(years))
	for _, y := range years {
		out = append(out, optionJSON[int]{Value: y, Label: strconv.Itoa(y)})
	}
	return out
}

func summaryOf(s services.CategorySummary) summaryJSON {
	out := summaryJSON{Total: moneyOf(s.Total), Categories: make([]categoryTotalJSON, 0, len(s.Categories))}
	for _, c := range s.Categories {
		out.Categories = append(out.Categories, categoryTotalJSON{Category: c.Category, Total: moneyOf(c.Total)})
	}
	return out
}

func nameTotalsOf(totals []core.NameTotal) []nameTotalJSON {
	out := make([]nameTotalJSON, 0, len(totals))
	for _, t := range totals {
		out = append(out, nameTotalJSON{Name: t.Name, Total: moneyOf(t.Total)})
	}
	return out
}

func detailOf(d core.CategoryDetail) detailJSON {
	out := detailJSON{
		Category:    d.Category,
		Total:       moneyOf(d.Total),
		TotalUnpaid: moneyOf(d.TotalUnpaid),
		ByName:      nameTotalsOf(d.ByName),
		Months:      make([]monthJSON, 0, len(d.Months)),
		Series:      make([]seriesJSON, 0, len(d.Series)),
	}
	for _, m := range d.Months {
		out.Months = append(out.Months, monthJSON{Month: m.Month, Totals: nameTotalsOf(m.Totals)})
	}
	for _, s := range d.Series {
		out.Series = append(out.Series, seriesJSON{Name: s.Name, Paid: s.Paid})
	}
	return out
}

func fileOf(f core.ExpenseFile) fileJSON {
	return fileJSON{
		ID:          f.ID,
		ExpenseID:   f.ExpenseID,
		StorageID:   f.BlobRef,
		ContentType: f.ContentType,
		Filename:    f.Filename,
		Size:        f.SizeBytes,
		Type:        string(f.Kind),
		CreatedAt:   f.CreatedAt.UTC().Format(time.RFC3339),
	}
}
