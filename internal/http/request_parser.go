// Request decoding. Bodies are decoded into explicit structs with unknown fields
// rejected; each request type lists its required fields in validate.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
	"gastos/internal/ports"
)

type validator interface {
	validate() error
}

// decodeJSON reads exactly one JSON object from the body into dst.
func decodeJSON(r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			return fmt.Errorf("%w: content type must be application/json", errMalformed)
		}
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge), errors.Is(err, core.ErrInvalidInput):
			return err
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: empty body", errMalformed)
		default:
			return fmt.Errorf("%w: %v", errMalformed, err)
		}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: body must contain a single JSON object", errMalformed)
	}

	if v, ok := dst.(validator); ok {
		return v.validate()
	}
	return nil
}

type field struct {
	name    string
	present bool
}

func requireFields(fields ...field) error {
	var missing []string
	for _, f := range fields {
		if !f.present {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required field(s) %s", core.ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

func notBlank(s string) bool { return strings.TrimSpace(s) != "" }

// Amount accepts a JSON number or a decimal string in dot, comma or BRL form.
type Amount struct {
	Money core.Money
	Set   bool
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = Amount{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return core.ErrInvalidAmount
		}
		m, err := core.ParseAmount(s)
		if err != nil {
			return err
		}
		*a = Amount{Money: m, Set: true}
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return core.ErrInvalidAmount
	}
	cents, err := core.DecimalToCents(d)
	if err != nil {
		return err
	}
	*a = Amount{Money: core.Money{Cents: cents}, Set: true}
	return nil
}

// parseDate accepts a calendar date, read in loc, or an RFC 3339 timestamp.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q, want YYYY-MM-DD", core.ErrInvalidDate, s)
}

type (
	expenseRequest struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Amount      Amount `json:"amount"`
		Category    string `json:"category"`
		Date        string `json:"date"`
	}

	// schedule is shared by the recurrence and duplicate bodies.
	schedule struct {
		Repeat          string `json:"repeat"`
		RepeatStartDate string `json:"repeat_start_date"`
		RepeatEndDate   string `json:"repeat_end_date"`
	}

	recurrenceRequest struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Amount      Amount `json:"amount"`
		Category    string `json:"category"`
		schedule
	}

	// duplicateRequest overrides the copied expense field by field.
	duplicateRequest struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		Amount      Amount  `json:"amount"`
		Category    *string `json:"category"`
		schedule
	}

	paidRequest struct {
		Paid *bool `json:"paid"`
	}

	fileRequest struct {
		StorageID   string `json:"storage_id"`
		ContentType string `json:"content_type"`
		Filename    string `json:"filename"`
		Size        *int64 `json:"size"`
		Type        string `json:"type"`
	}
)

func (r *expenseRequest) validate() error {
	return requireFields(
		field{"name", notBlank(r.Name)},
		field{"amount", r.Amount.Set},
		field{"category", notBlank(r.Category)},
		field{"date", notBlank(r.Date)},
	)
}

func (r *expenseRequest) input(ownerID string, loc *time.Location) (core.ExpenseInput, error) {
	date, err := parseDate(r.Date, loc)
	if err != nil {
		return core.ExpenseInput{}, err
	}
	return core.ExpenseInput{
		OwnerID:     ownerID,
		Name:        sanitizeInput(r.Name),
		Description: sanitizeInput(r.Description),
		Amount:      r.Amount.Money,
		Category:    sanitizeInput(r.Category),
		Date:        date,
	}, nil
}

func (s *schedule) required() []field {
	return []field{
		{"repeat", notBlank(s.Repeat)},
		{"repeat_start_date", notBlank(s.RepeatStartDate)},
	}
}

// request expands the schedule around t. A missing end date repeats up to the
// start date only.
func (s *schedule) request(t core.ExpenseTemplate, loc *time.Location) (core.RecurrenceRequest, error) {
	cadence, err := core.ParseCadence(s.Repeat)
	if err != nil {
		return core.RecurrenceRequest{}, err
	}
	start, err := parseDate(s.RepeatStartDate, loc)
	if err != nil {
		return core.RecurrenceRequest{}, err
	}
	end := start
	if notBlank(s.RepeatEndDate) {
		if end, err = parseDate(s.RepeatEndDate, loc); err != nil {
			return core.RecurrenceRequest{}, err
		}
	}
	return core.RecurrenceRequest{Template: t, Cadence: cadence, Start: start, End: end}, nil
}

func (r *recurrenceRequest) validate() error {
	return requireFields(append([]field{
		{"name", notBlank(r.Name)},
		{"amount", r.Amount.Set},
		{"category", notBlank(r.Category)},
	}, r.schedule.required()...)...)
}

func (r *recurrenceRequest) template(ownerID string) core.ExpenseTemplate {
	return core.ExpenseTemplate{
		OwnerID:     ownerID,
		Name:        sanitizeInput(r.Name),
		Description: sanitizeInput(r.Description),
		Amount:      r.Amount.Money,
		Category:    sanitizeInput(r.Category),
	}
}

func (r *duplicateRequest) validate() error {
	return requireFields(r.schedule.required()...)
}

// template applies the overrides to the source expense.
func (r *duplicateRequest) template(src core.Expense) core.ExpenseTemplate {
	t := src.Input().Template()
	if r.Name != nil {
		t.Name = sanitizeInput(*r.Name)
	}
	if r.Description != nil {
		t.Description = sanitizeInput(*r.Description)
	}
	if r.Amount.Set {
		t.Amount = r.Amount.Money
	}
	if r.Category != nil {
		t.Category = sanitizeInput(*r.Category)
	}
	return t
}

func (r *paidRequest) validate() error {
	return requireFields(field{"paid", r.Paid != nil})
}

func (r *fileRequest) validate() error {
	return requireFields(
		field{"storage_id", notBlank(r.StorageID)},
		field{"content_type", notBlank(r.ContentType)},
		field{"filename", notBlank(r.Filename)},
		field{"size", r.Size != nil},
	)
}

func (r *fileRequest) file(ownerID string, expenseID int64) (core.ExpenseFile, error) {
	kind, err := core.ParseFileKind(r.Type)
	if err != nil {
		return core.ExpenseFile{}, err
	}
	return core.ExpenseFile{
		OwnerID:     ownerID,
		ExpenseID:   expenseID,
		BlobRef:     strings.TrimSpace(r.StorageID),
		ContentType: strings.TrimSpace(r.ContentType),
		Filename:    sanitizeInput(r.Filename),
		SizeBytes:   *r.Size,
		Kind:        kind,
	}, nil
}

// pathID reads a positive integer path wildcard.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", errMalformed, name, r.PathValue(name))
	}
	return id, nil
}

// queryInt returns 0 for an absent parameter.
func queryInt(q url.Values, key string) (int, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errMalformed, key)
	}
	return n, nil
}

func parsePeriod(q url.Values, loc *time.Location) (core.Period, error) {
	month, err := queryInt(q, "month")
	if err != nil {
		return core.Period{}, err
	}
	year, err := queryInt(q, "year")
	if err != nil {
		return core.Period{}, err
	}
	p := core.Period{Month: month, Year: year, Location: loc}
	if err := p.Validate(); err != nil {
		return core.Period{}, err
	}
	return p, nil
}

// parseExpenseQuery reads the list filters. Newest first is the default order.
func parseExpenseQuery(q url.Values, ownerID string, loc *time.Location) (ports.ExpenseQuery, error) {
	p, err := parsePeriod(q, loc)
	if err != nil {
		return ports.ExpenseQuery{}, err
	}
	limit, err := queryInt(q, "limit")
	if err != nil {
		return ports.ExpenseQuery{}, err
	}
	if limit < 0 {
		return ports.ExpenseQuery{}, fmt.Errorf("%w: limit must not be negative", errMalformed)
	}

	eq := ports.ExpenseQuery{
		OwnerID: ownerID,
		Search:  sanitizeInput(q.Get("search")),
		OrderBy: ports.OrderBy(strings.TrimSpace(q.Get("order_by"))),
		Desc:    true,
		Limit:   limit,
		Cursor:  strings.TrimSpace(q.Get("cursor")),
	}
	switch eq.OrderBy {
	case "", ports.OrderByDate, ports.OrderByAmount:
	default:
		return ports.ExpenseQuery{}, fmt.Errorf("%w: order_by must be by_date or by_amount", errMalformed)
	}
	switch strings.ToLower(strings.TrimSpace(q.Get("order"))) {
	case "", "desc":
	case "asc":
		eq.Desc = false
	default:
		return ports.ExpenseQuery{}, fmt.Errorf("%w: order must be asc or desc", errMalformed)
	}
	if from, to, ok := p.Bounds(); ok {
		eq.From, eq.To = &from, &to
	}
	return eq, nil
}

// sanitizeInput trims and drops control characters other than tab and newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
