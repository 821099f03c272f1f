package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type ExpenseRow struct {
	ID          int64
	OwnerID     string
	Name        string
	Description string
	AmountCents int64
	Category    string
	Date        string
	PaidAt      sql.NullString
	CreatedAt   string
	UpdatedAt   string
}

type FileRow struct {
	ID          int64
	OwnerID     string
	ExpenseID   int64
	BlobRef     string
	ContentType string
	Filename    string
	SizeBytes   int64
	Kind        string
	CreatedAt   string
}

type TombstoneRow struct {
	BlobRef   string
	Reason    string
	Attempts  int64
	LastError string
	CreatedAt string
}

const expenseColumns = `id, owner_id, name, description, amount_cents, category, date, paid_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(s rowScanner) (ExpenseRow, error) {
	var e ExpenseRow
	err := s.Scan(&e.ID, &e.OwnerID, &e.Name, &e.Description, &e.AmountCents,
		&e.Category, &e.Date, &e.PaidAt, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func collectExpenses(rows *sql.Rows) ([]ExpenseRow, error) {
	defer rows.Close()
	items := []ExpenseRow{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

type CreateExpenseParams struct {
	OwnerID     string
	Name        string
	Description string
	AmountCents int64
	Category    string
	Date        string
	PaidAt      sql.NullString
	Now         string
}

const createExpense = `INSERT INTO expenses (owner_id, name, description, amount_cents, category, date, paid_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`

func (q *Queries) CreateExpense(ctx context.Context, arg CreateExpenseParams) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createExpense,
		arg.OwnerID, arg.Name, arg.Description, arg.AmountCents, arg.Category,
		arg.Date, arg.PaidAt, arg.Now, arg.Now,
	).Scan(&id)
	return id, err
}

type UpdateExpenseParams struct {
	ID          int64
	OwnerID     string
	Name        string
	Description string
	AmountCents int64
	Category    string
	Date        string
	PaidAt      sql.NullString
	Now         string
}

const updateExpense = `UPDATE expenses
SET name = ?, description = ?, amount_cents = ?, category = ?, date = ?, paid_at = ?, updated_at = ?
WHERE id = ? AND owner_id = ?`

func (q *Queries) UpdateExpense(ctx context.Context, arg UpdateExpenseParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateExpense,
		arg.Name, arg.Description, arg.AmountCents, arg.Category, arg.Date, arg.PaidAt, arg.Now,
		arg.ID, arg.OwnerID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const setExpensePaid = `UPDATE expenses SET paid_at = ?, updated_at = ? WHERE id = ? AND owner_id = ?`

func (q *Queries) SetExpensePaid(ctx context.Context, id int64, ownerID string, paidAt sql.NullString, now string) (int64, error) {
	res, err := q.db.ExecContext(ctx, setExpensePaid, paidAt, now, id, ownerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteExpense = `DELETE FROM expenses WHERE id = ?`

func (q *Queries) DeleteExpense(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpense, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getExpense = `SELECT ` + expenseColumns + ` FROM expenses WHERE id = ? AND owner_id = ?`

func (q *Queries) GetExpense(ctx context.Context, id int64, ownerID string) (ExpenseRow, error) {
	return scanExpense(q.db.QueryRowContext(ctx, getExpense, id, ownerID))
}

// ListExpensesParams drives the dynamic expense listing. Empty From/To leave the
// bound open; Category and Search are ignored when empty.
type ListExpensesParams struct {
	OwnerID  string
	Category string
	Search   string
	From     string
	To       string
	OrderBy  string
	Desc     bool
	Limit    int
	Offset   int
}

func (q *Queries) ListExpenses(ctx context.Context, arg ListExpensesParams) ([]ExpenseRow, error) {
	var sb strings.Builder
	args := []any{arg.OwnerID}
	sb.WriteString(`SELECT ` + expenseColumns + ` FROM expenses WHERE owner_id = ?`)
	if arg.Category != "" {
		sb.WriteString(` AND category = ?`)
		args = append(args, arg.Category)
	}
	if arg.Search != "" {
		sb.WriteString(` AND (name = ? OR description = ? OR category = ?)`)
		args = append(args, arg.Search, arg.Search, arg.Search)
	}
	if arg.From != "" {
		sb.WriteString(` AND date >= ?`)
		args = append(args, arg.From)
	}
	if arg.To != "" {
		sb.WriteString(` AND date < ?`)
		args = append(args, arg.To)
	}

	column := "date"
	if arg.OrderBy == "amount" {
		column = "amount_cents"
	}
	dir := "ASC"
	if arg.Desc {
		dir = "DESC"
	}
	fmt.Fprintf(&sb, ` ORDER BY %s %s, id %s`, column, dir, dir)

	if arg.Limit > 0 {
		sb.WriteString(` LIMIT ? OFFSET ?`)
		args = append(args, arg.Limit, arg.Offset)
	}

	rows, err := q.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	return collectExpenses(rows)
}

const upsertUser = `INSERT INTO users (id, name, email, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, email = excluded.email, updated_at = excluded.updated_at`

func (q *Queries) UpsertUser(ctx context.Context, id, name, email, now string) error {
	_, err := q.db.ExecContext(ctx, upsertUser, id, name, email, now, now)
	return err
}

const fileColumns = `id, owner_id, expense_id, blob_ref, content_type, filename, size_bytes, kind, created_at`

func scanFile(s rowScanner) (FileRow, error) {
	var f FileRow
	err := s.Scan(&f.ID, &f.OwnerID, &f.ExpenseID, &f.BlobRef, &f.ContentType,
		&f.Filename, &f.SizeBytes, &f.Kind, &f.CreatedAt)
	return f, err
}

func (q *Queries) collectFiles(ctx context.Context, query string, args ...any) ([]FileRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []FileRow{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

const createFile = `INSERT INTO expense_files (owner_id, expense_id, blob_ref, content_type, filename, size_bytes, kind, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`

func (q *Queries) CreateFile(ctx context.Context, f FileRow) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createFile,
		f.OwnerID, f.ExpenseID, f.BlobRef, f.ContentType, f.Filename, f.SizeBytes, f.Kind, f.CreatedAt,
	).Scan(&id)
	return id, err
}

const getFile = `SELECT ` + fileColumns + ` FROM expense_files WHERE id = ? AND owner_id = ?`

func (q *Queries) GetFile(ctx context.Context, id int64, ownerID string) (FileRow, error) {
	return scanFile(q.db.QueryRowContext(ctx, getFile, id, ownerID))
}

const listFilesByExpense = `SELECT ` + fileColumns + ` FROM expense_files WHERE expense_id = ? AND owner_id = ? ORDER BY id`

func (q *Queries) ListFilesByExpense(ctx context.Context, expenseID int64, ownerID string) ([]FileRow, error) {
	return q.collectFiles(ctx, listFilesByExpense, expenseID, ownerID)
}

const deleteFilesByExpense = `DELETE FROM expense_files WHERE expense_id = ? RETURNING ` + fileColumns

func (q *Queries) DeleteFilesByExpense(ctx context.Context, expenseID int64) ([]FileRow, error) {
	return q.collectFiles(ctx, deleteFilesByExpense, expenseID)
}

const deleteFile = `DELETE FROM expense_files WHERE id = ?`

func (q *Queries) DeleteFile(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteFile, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listOrphanFiles = `SELECT ` + fileColumns + ` FROM expense_files f
WHERE NOT EXISTS (SELECT 1 FROM expenses e WHERE e.id = f.expense_id)
ORDER BY f.id
LIMIT ?`

func (q *Queries) ListOrphanFiles(ctx context.Context, limit int) ([]FileRow, error) {
	return q.collectFiles(ctx, listOrphanFiles, limit)
}

const createTombstone = `INSERT INTO blob_tombstones (blob_ref, reason, attempts, last_error, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (blob_ref) DO UPDATE SET reason = excluded.reason, last_error = excluded.last_error, updated_at = excluded.updated_at`

func (q *Queries) CreateTombstone(ctx context.Context, t TombstoneRow, now string) error {
	_, err := q.db.ExecContext(ctx, createTombstone, t.BlobRef, t.Reason, t.Attempts, t.LastError, t.CreatedAt, now)
	return err
}

const listTombstones = `SELECT blob_ref, reason, attempts, last_error, created_at FROM blob_tombstones
ORDER BY attempts, created_at
LIMIT ?`

func (q *Queries) ListTombstones(ctx context.Context, limit int) ([]TombstoneRow, error) {
	rows, err := q.db.QueryContext(ctx, listTombstones, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []TombstoneRow{}
	for rows.Next() {
		var t TombstoneRow
		if err := rows.Scan(&t.BlobRef, &t.Reason, &t.Attempts, &t.LastError, &t.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

const deleteTombstone = `DELETE FROM blob_tombstones WHERE blob_ref = ?`

func (q *Queries) DeleteTombstone(ctx context.Context, blobRef string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTombstone, blobRef)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const bumpTombstone = `UPDATE blob_tombstones SET attempts = attempts + 1, last_error = ?, updated_at = ? WHERE blob_ref = ?`

func (q *Queries) BumpTombstone(ctx context.Context, blobRef, lastErr, now string) (int64, error) {
	res, err := q.db.ExecContext(ctx, bumpTombstone, lastErr, now, blobRef)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
