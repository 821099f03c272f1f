package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gastos/internal/core"
	"gastos/internal/ports"

	_ "modernc.org/sqlite"
)

// TimeLayout is the stored representation of every timestamp: UTC with
// millisecond precision, so lexical order matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

type SQLiteRepository struct {
	db  *sql.DB
	q   *Queries
	now func() time.Time
}

var _ ports.Store = (*SQLiteRepository)(nil)

func dsn(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Migrations run on their own connection: closing the migrate instance closes it.
	if err := RunMigrations(dsn(dbPath)); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, q: New(db), now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return core.Persistence("ping database", err)
	}
	return nil
}

// WithTx implements ports.Store. The transaction-bound repository shares the
// clock but not the pool.
func (r *SQLiteRepository) WithTx(ctx context.Context, fn func(tx ports.Stores) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Persistence("begin transaction", err)
	}
	scoped := &SQLiteRepository{db: r.db, q: r.q.WithTx(tx), now: r.now}
	if err := fn(scoped); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return core.Persistence("commit transaction", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func boundArg(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func toExpense(row ExpenseRow) core.Expense {
	e := core.Expense{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		Name:        row.Name,
		Description: row.Description,
		Amount:      core.Money{Cents: row.AmountCents},
		Category:    row.Category,
		Date:        parseTime(row.Date),
		CreatedAt:   parseTime(row.CreatedAt),
		UpdatedAt:   parseTime(row.UpdatedAt),
	}
	if row.PaidAt.Valid {
		p := parseTime(row.PaidAt.String)
		e.PaidAt = &p
	}
	return e
}

func toExpenses(rows []ExpenseRow) []core.Expense {
	out := make([]core.Expense, len(rows))
	for i, row := range rows {
		out[i] = toExpense(row)
	}
	return out
}

func toFile(row FileRow) core.ExpenseFile {
	return core.ExpenseFile{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		ExpenseID:   row.ExpenseID,
		BlobRef:     row.BlobRef,
		ContentType: row.ContentType,
		Filename:    row.Filename,
		SizeBytes:   row.SizeBytes,
		Kind:        core.FileKind(row.Kind),
		CreatedAt:   parseTime(row.CreatedAt),
	}
}

func toFiles(rows []FileRow) []core.ExpenseFile {
	out := make([]core.ExpenseFile, len(rows))
	for i, row := range rows {
		out[i] = toFile(row)
	}
	return out
}

func notFound(what string, id int64) error {
	return fmt.Errorf("%s %d: %w", what, id, core.ErrNotFound)
}

func (r *SQLiteRepository) InsertExpense(ctx context.Context, in core.ExpenseInput) (int64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}
	id, err := r.q.CreateExpense(ctx, CreateExpenseParams{
		OwnerID:     in.OwnerID,
		Name:        in.Name,
		Description: in.Description,
		AmountCents: in.Amount.Cents,
		Category:    in.Category,
		Date:        formatTime(in.Date),
		PaidAt:      nullTime(in.PaidAt),
		Now:         formatTime(r.now()),
	})
	if err != nil {
		return 0, core.Persistence("insert expense", err)
	}
	return id, nil
}

func (r *SQLiteRepository) PatchExpense(ctx context.Context, id int64, in core.ExpenseInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	n, err := r.q.UpdateExpense(ctx, UpdateExpenseParams{
		ID:          id,
		OwnerID:     in.OwnerID,
		Name:        in.Name,
		Description: in.Description,
		AmountCents: in.Amount.Cents,
		Category:    in.Category,
		Date:        formatTime(in.Date),
		PaidAt:      nullTime(in.PaidAt),
		Now:         formatTime(r.now()),
	})
	if err != nil {
		return core.Persistence("patch expense", err)
	}
	if n == 0 {
		return notFound("expense", id)
	}
	return nil
}

func (r *SQLiteRepository) SetPaid(ctx context.Context, ownerID string, id int64, paidAt *time.Time) error {
	n, err := r.q.SetExpensePaid(ctx, id, ownerID, nullTime(paidAt), formatTime(r.now()))
	if err != nil {
		return core.Persistence("set expense paid", err)
	}
	if n == 0 {
		return notFound("expense", id)
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id int64) error {
	n, err := r.q.DeleteExpense(ctx, id)
	if err != nil {
		return core.Persistence("delete expense", err)
	}
	if n == 0 {
		return notFound("expense", id)
	}
	return nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, ownerID string, id int64) (core.Expense, error) {
	row, err := r.q.GetExpense(ctx, id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, notFound("expense", id)
	}
	if err != nil {
		return core.Expense{}, core.Persistence("get expense", err)
	}
	return toExpense(row), nil
}

// QueryExpenses pages with an offset carried in an opaque cursor.
func (r *SQLiteRepository) QueryExpenses(ctx context.Context, q ports.ExpenseQuery) (ports.Page, error) {
	offset, err := ports.DecodeCursor(q.Cursor)
	if err != nil {
		return ports.Page{}, err
	}
	limit := ports.ClampLimit(q.Limit)
	orderBy := "date"
	if q.OrderBy == ports.OrderByAmount {
		orderBy = "amount"
	}

	// one extra row tells whether another page exists
	rows, err := r.q.ListExpenses(ctx, ListExpensesParams{
		OwnerID: q.OwnerID,
		Search:  q.Search,
		From:    boundArg(q.From),
		To:      boundArg(q.To),
		OrderBy: orderBy,
		Desc:    q.Desc,
		Limit:   limit + 1,
		Offset:  offset,
	})
	if err != nil {
		return ports.Page{}, core.Persistence("query expenses", err)
	}

	page := ports.Page{IsDone: len(rows) <= limit}
	if !page.IsDone {
		rows = rows[:limit]
		page.ContinueCursor = ports.EncodeCursor(offset + limit)
	}
	page.Expenses = toExpenses(rows)
	return page, nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, ownerID string, from, to *time.Time) ([]core.Expense, error) {
	rows, err := r.q.ListExpenses(ctx, ListExpensesParams{
		OwnerID: ownerID,
		From:    boundArg(from),
		To:      boundArg(to),
	})
	if err != nil {
		return nil, core.Persistence("list expenses", err)
	}
	return toExpenses(rows), nil
}

func (r *SQLiteRepository) ListByCategory(ctx context.Context, ownerID, category string, from, to *time.Time) ([]core.Expense, error) {
	rows, err := r.q.ListExpenses(ctx, ListExpensesParams{
		OwnerID:  ownerID,
		Category: category,
		From:     boundArg(from),
		To:       boundArg(to),
	})
	if err != nil {
		return nil, core.Persistence("list expenses by category", err)
	}
	return toExpenses(rows), nil
}

func (r *SQLiteRepository) UpsertUser(ctx context.Context, u core.User) error {
	if u.ID == "" {
		return core.ErrEmptyOwner
	}
	if err := r.q.UpsertUser(ctx, u.ID, u.Name, u.Email, formatTime(r.now())); err != nil {
		return core.Persistence("upsert user", err)
	}
	return nil
}

func (r *SQLiteRepository) InsertFile(ctx context.Context, f core.ExpenseFile) (int64, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}
	id, err := r.q.CreateFile(ctx, FileRow{
		OwnerID:     f.OwnerID,
		ExpenseID:   f.ExpenseID,
		BlobRef:     f.BlobRef,
		ContentType: f.ContentType,
		Filename:    f.Filename,
		SizeBytes:   f.SizeBytes,
		Kind:        string(f.Kind),
		CreatedAt:   formatTime(r.now()),
	})
	if err != nil {
		return 0, core.Persistence("insert file", err)
	}
	return id, nil
}

func (r *SQLiteRepository) GetFile(ctx context.Context, ownerID string, id int64) (core.ExpenseFile, error) {
	row, err := r.q.GetFile(ctx, id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExpenseFile{}, notFound("file", id)
	}
	if err != nil {
		return core.ExpenseFile{}, core.Persistence("get file", err)
	}
	return toFile(row), nil
}

func (r *SQLiteRepository) ListFiles(ctx context.Context, ownerID string, expenseID int64) ([]core.ExpenseFile, error) {
	rows, err := r.q.ListFilesByExpense(ctx, expenseID, ownerID)
	if err != nil {
		return nil, core.Persistence("list files", err)
	}
	return toFiles(rows), nil
}

func (r *SQLiteRepository) DeleteFile(ctx context.Context, id int64) error {
	n, err := r.q.DeleteFile(ctx, id)
	if err != nil {
		return core.Persistence("delete file", err)
	}
	if n == 0 {
		return notFound("file", id)
	}
	return nil
}

func (r *SQLiteRepository) DeleteFilesByExpense(ctx context.Context, expenseID int64) ([]core.ExpenseFile, error) {
	rows, err := r.q.DeleteFilesByExpense(ctx, expenseID)
	if err != nil {
		return nil, core.Persistence("delete files by expense", err)
	}
	return toFiles(rows), nil
}

func (r *SQLiteRepository) ListOrphanFiles(ctx context.Context, limit int) ([]core.ExpenseFile, error) {
	rows, err := r.q.ListOrphanFiles(ctx, limit)
	if err != nil {
		return nil, core.Persistence("list orphan files", err)
	}
	return toFiles(rows), nil
}

func (r *SQLiteRepository) AddTombstone(ctx context.Context, t core.BlobTombstone) error {
	if t.BlobRef == "" {
		return fmt.Errorf("%w: blob ref", core.ErrInvalidInput)
	}
	created := t.CreatedAt
	if created.IsZero() {
		created = r.now()
	}
	err := r.q.CreateTombstone(ctx, TombstoneRow{
		BlobRef:   t.BlobRef,
		Reason:    t.Reason,
		Attempts:  int64(t.Attempts),
		LastError: t.LastError,
		CreatedAt: formatTime(created),
	}, formatTime(r.now()))
	if err != nil {
		return core.Persistence("add tombstone", err)
	}
	return nil
}

func (r *SQLiteRepository) ListTombstones(ctx context.Context, limit int) ([]core.BlobTombstone, error) {
	rows, err := r.q.ListTombstones(ctx, limit)
	if err != nil {
		return nil, core.Persistence("list tombstones", err)
	}
	out := make([]core.BlobTombstone, len(rows))
	for i, row := range rows {
		out[i] = core.BlobTombstone{
			BlobRef:   row.BlobRef,
			Reason:    row.Reason,
			Attempts:  int(row.Attempts),
			LastError: row.LastError,
			CreatedAt: parseTime(row.CreatedAt),
		}
	}
	return out, nil
}

func (r *SQLiteRepository) RemoveTombstone(ctx context.Context, blobRef string) error {
	if _, err := r.q.DeleteTombstone(ctx, blobRef); err != nil {
		return core.Persistence("remove tombstone", err)
	}
	return nil
}

func (r *SQLiteRepository) BumpTombstone(ctx context.Context, blobRef, lastErr string) error {
	n, err := r.q.BumpTombstone(ctx, blobRef, lastErr, formatTime(r.now()))
	if err != nil {
		return core.Persistence("bump tombstone", err)
	}
	if n == 0 {
		return fmt.Errorf("tombstone %s: %w", blobRef, core.ErrNotFound)
	}
	return nil
}
