package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gastos/internal/core"
)

func headerRow() []any {
	return []any{"ID", "Date", "Name", "Description", "Amount", "Category", "Paid", "Owner"}
}

func expenseRow(e core.Expense) []any {
	paid := ""
	if e.PaidAt != nil {
		paid = e.PaidAt.UTC().Format(time.DateOnly)
	}
	return []any{
		e.ID,
		e.Date.Format(time.DateOnly),
		e.Name,
		e.Description,
		e.Amount.String(),
		e.Category,
		paid,
		e.OwnerID,
	}
}

// rowsWithID returns the 1-based row numbers whose first cell is id.
func rowsWithID(values [][]any, id int64) []int {
	want := strconv.FormatInt(id, 10)
	var rows []int
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == want {
			rows = append(rows, i+1)
		}
	}
	return rows
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if _, ok := leadingYear(base); ok {
		return base
	}
	return fmt.Sprintf("%d %s", year, base)
}

func leadingYear(title string) (int, bool) {
	if len(title) < 5 || title[4] != ' ' {
		return 0, false
	}
	y, err := strconv.Atoi(title[:4])
	if err != nil || y <= 1900 || y >= 3000 {
		return 0, false
	}
	return y, true
}

// isMirrorSheet reports whether title is a year sheet of base.
func isMirrorSheet(title, base string) bool {
	if title == base {
		return true
	}
	_, ok := leadingYear(title)
	return ok && title[5:] == base
}
