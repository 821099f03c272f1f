// Package ports declares the collaborators the services depend on. Adapters live in
// storage, memory, blob, amqp and sheets.
package ports

import (
	"context"
	"io"
	"net/http"
	"time"

	"gastos/internal/core"
)

type OrderBy string

const (
	OrderByDate   OrderBy = "by_date"
	OrderByAmount OrderBy = "by_amount"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

type (
	// ExpenseQuery filters one owner's expenses. From and To bound a half-open
	// window [From, To); Search matches name, description or category exactly.
	ExpenseQuery struct {
		OwnerID string
		Search  string
		From    *time.Time
		To      *time.Time
		OrderBy OrderBy
		Desc    bool
		Limit   int
		Cursor  string
	}

	Page struct {
		Expenses       []core.Expense
		IsDone         bool
		ContinueCursor string
	}

	ExpenseStore interface {
		InsertExpense(ctx context.Context, in core.ExpenseInput) (int64, error)
		// PatchExpense replaces the writable fields of the expense owned by in.OwnerID.
		PatchExpense(ctx context.Context, id int64, in core.ExpenseInput) error
		SetPaid(ctx context.Context, ownerID string, id int64, paidAt *time.Time) error
		DeleteExpense(ctx context.Context, id int64) error
		GetExpense(ctx context.Context, ownerID string, id int64) (core.Expense, error)
		QueryExpenses(ctx context.Context, q ExpenseQuery) (Page, error)
		ListExpenses(ctx context.Context, ownerID string, from, to *time.Time) ([]core.Expense, error)
		ListByCategory(ctx context.Context, ownerID, category string, from, to *time.Time) ([]core.Expense, error)
	}

	FileStore interface {
		InsertFile(ctx context.Context, f core.ExpenseFile) (int64, error)
		GetFile(ctx context.Context, ownerID string, id int64) (core.ExpenseFile, error)
		ListFiles(ctx context.Context, ownerID string, expenseID int64) ([]core.ExpenseFile, error)
		DeleteFile(ctx context.Context, id int64) error
		// DeleteFilesByExpense removes and returns every file row of the expense.
		DeleteFilesByExpense(ctx context.Context, expenseID int64) ([]core.ExpenseFile, error)
		// ListOrphanFiles returns file rows whose expense no longer exists.
		ListOrphanFiles(ctx context.Context, limit int) ([]core.ExpenseFile, error)
	}

	TombstoneStore interface {
		AddTombstone(ctx context.Context, t core.BlobTombstone) error
		ListTombstones(ctx context.Context, limit int) ([]core.BlobTombstone, error)
		RemoveTombstone(ctx context.Context, blobRef string) error
		BumpTombstone(ctx context.Context, blobRef, lastErr string) error
	}

	UserStore interface {
		UpsertUser(ctx context.Context, u core.User) error
	}

	// Stores is the set of stores visible inside a transaction.
	Stores interface {
		ExpenseStore
		FileStore
		TombstoneStore
		UserStore
	}

	// Store is a complete data backend.
	Store interface {
		Stores
		// WithTx runs fn atomically; a returned error rolls everything back.
		WithTx(ctx context.Context, fn func(tx Stores) error) error
		Ping(ctx context.Context) error
		Close() error
	}

	UploadTarget struct {
		URL       string
		Token     string
		ExpiresAt time.Time
	}

	BlobInfo struct {
		ContentType string
		Size        int64
	}

	BlobStore interface {
		CreateUploadTarget(ctx context.Context) (UploadTarget, error)
		Put(ctx context.Context, token string, r io.Reader, contentType string) (blobRef string, err error)
		DownloadURL(ctx context.Context, blobRef string) (string, error)
		Open(ctx context.Context, blobRef string) (io.ReadCloser, BlobInfo, error)
		Delete(ctx context.Context, blobRef string) error
	}

	Identity interface {
		CurrentUser(r *http.Request) (*core.User, bool)
	}

	EventPublisher interface {
		PublishExpenseEvent(ctx context.Context, ev core.ExpenseEvent) error
	}

	// Mirror is an external copy of the expense ledger, such as a spreadsheet.
	Mirror interface {
		AppendExpense(ctx context.Context, e core.Expense) error
		RemoveExpense(ctx context.Context, id int64) error
	}
)
