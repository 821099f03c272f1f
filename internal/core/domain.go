package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	None    Cadence = "none"
	Daily   Cadence = "daily"
	Weekly  Cadence = "weekly"
	Monthly Cadence = "monthly"
	Yearly  Cadence = "yearly"
)

const (
	Invoice      FileKind = "invoice"
	Receipt      FileKind = "receipt"
	OtherFile    FileKind = "other"
	maxNameLen            = 200
	maxCategory           = 100
)

type (
	// Cadence is the interval used to expand a template expense into occurrences.
	Cadence string

	// FileKind optionally classifies an attachment.
	FileKind string

	Money struct {
		Cents int64
	}

	User struct {
		ID    string
		Name  string
		Email string
	}

	Expense struct {
		ID          int64
		OwnerID     string
		Name        string
		Description string
		Amount      Money
		Category    string
		Date        time.Time
		PaidAt      *time.Time
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// ExpenseInput carries the writable fields of an expense for insert and patch.
	ExpenseInput struct {
		OwnerID     string
		Name        string
		Description string
		Amount      Money
		Category    string
		Date        time.Time
		PaidAt      *time.Time
	}

	// ExpenseTemplate holds the fields copied onto every generated occurrence.
	ExpenseTemplate struct {
		OwnerID     string
		Name        string
		Description string
		Amount      Money
		Category    string
	}

	ExpenseFile struct {
		ID          int64
		OwnerID     string
		ExpenseID   int64
		BlobRef     string
		ContentType string
		Filename    string
		SizeBytes   int64
		Kind        FileKind
		CreatedAt   time.Time
	}

	// BlobTombstone records a blob whose deletion has to be retried.
	BlobTombstone struct {
		BlobRef   string
		Reason    string
		Attempts  int
		LastError string
		CreatedAt time.Time
	}
)

// ParseCadence maps a raw value onto one of the five known cadences.
func ParseCadence(s string) (Cadence, error) {
	c := Cadence(strings.ToLower(strings.TrimSpace(s)))
	if err := c.Validate(); err != nil {
		return "", err
	}
	return c, nil
}

func (c Cadence) Validate() error {
	switch c {
	case None, Daily, Weekly, Monthly, Yearly:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCadence, string(c))
	}
}

// ParseFileKind accepts an empty value as "no kind".
func ParseFileKind(s string) (FileKind, error) {
	k := FileKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case "", Invoice, Receipt, OtherFile:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFileKind, s)
	}
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrNegativeAmount
	}
	return nil
}

func (t ExpenseTemplate) Validate() error {
	if strings.TrimSpace(t.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if len(strings.TrimSpace(t.Name)) == 0 {
		return ErrEmptyName
	}
	if len(t.Name) > maxNameLen {
		return fmt.Errorf("%w: name too long (max %d characters)", ErrInvalidInput, maxNameLen)
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if len(t.Category) > maxCategory {
		return fmt.Errorf("%w: category too long (max %d characters)", ErrInvalidInput, maxCategory)
	}
	return nil
}

// Template returns the non-date part of the input.
func (in ExpenseInput) Template() ExpenseTemplate {
	return ExpenseTemplate{
		OwnerID:     in.OwnerID,
		Name:        in.Name,
		Description: in.Description,
		Amount:      in.Amount,
		Category:    in.Category,
	}
}

func (in ExpenseInput) Validate() error {
	if err := in.Template().Validate(); err != nil {
		return err
	}
	if in.Date.IsZero() {
		return ErrInvalidDate
	}
	if in.PaidAt != nil && in.PaidAt.IsZero() {
		return fmt.Errorf("%w: paid_at", ErrInvalidDate)
	}
	return nil
}

// Input returns the writable view of a stored expense.
func (e Expense) Input() ExpenseInput {
	return ExpenseInput{
		OwnerID:     e.OwnerID,
		Name:        e.Name,
		Description: e.Description,
		Amount:      e.Amount,
		Category:    e.Category,
		Date:        e.Date,
		PaidAt:      e.PaidAt,
	}
}

// IsPaid reports whether the expense has been settled.
func (e Expense) IsPaid() bool {
	return e.PaidAt != nil
}

func (f ExpenseFile) Validate() error {
	if strings.TrimSpace(f.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if f.ExpenseID <= 0 {
		return fmt.Errorf("%w: expense id", ErrInvalidInput)
	}
	if strings.TrimSpace(f.BlobRef) == "" {
		return fmt.Errorf("%w: storage id", ErrInvalidInput)
	}
	if strings.TrimSpace(f.Filename) == "" {
		return fmt.Errorf("%w: filename", ErrInvalidInput)
	}
	if strings.TrimSpace(f.ContentType) == "" {
		return fmt.Errorf("%w: content type", ErrInvalidInput)
	}
	if f.SizeBytes < 0 {
		return fmt.Errorf("%w: negative size", ErrInvalidInput)
	}
	if _, err := ParseFileKind(string(f.Kind)); err != nil {
		return err
	}
	return nil
}
