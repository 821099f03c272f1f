// Package memory is an in-process data backend used for development and tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"gastos/internal/core"
	"gastos/internal/ports"
)

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

var _ ports.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// NewWithClock fixes the clock used for created/updated timestamps.
func NewWithClock(now func() time.Time) *Store {
	s := New()
	s.now = now
	return s
}

func (s *Store) view() *state {
	s.st.now = s.now
	return s.st
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error              { return nil }

// WithTx runs fn against a copy of the data and publishes it only on success.
func (s *Store) WithTx(_ context.Context, fn func(tx ports.Stores) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft := s.view().clone()
	if err := fn(draft); err != nil {
		return err
	}
	s.st = draft
	return nil
}

func (s *Store) InsertExpense(ctx context.Context, in core.ExpenseInput) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().InsertExpense(ctx, in)
}

func (s *Store) PatchExpense(ctx context.Context, id int64, in core.ExpenseInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().PatchExpense(ctx, id, in)
}

func (s *Store) SetPaid(ctx context.Context, ownerID string, id int64, paidAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().SetPaid(ctx, ownerID, id, paidAt)
}

func (s *Store) DeleteExpense(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().DeleteExpense(ctx, id)
}

func (s *Store) GetExpense(ctx context.Context, ownerID string, id int64) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetExpense(ctx, ownerID, id)
}

func (s *Store) QueryExpenses(ctx context.Context, q ports.ExpenseQuery) (ports.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().QueryExpenses(ctx, q)
}

func (s *Store) ListExpenses(ctx context.Context, ownerID string, from, to *time.Time) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListExpenses(ctx, ownerID, from, to)
}

func (s *Store) ListByCategory(ctx context.Context, ownerID, category string, from, to *time.Time) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListByCategory(ctx, ownerID, category, from, to)
}

func (s *Store) UpsertUser(ctx context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().UpsertUser(ctx, u)
}

func (s *Store) InsertFile(ctx context.Context, f core.ExpenseFile) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().InsertFile(ctx, f)
}

func (s *Store) GetFile(ctx context.Context, ownerID string, id int64) (core.ExpenseFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetFile(ctx, ownerID, id)
}

func (s *Store) ListFiles(ctx context.Context, ownerID string, expenseID int64) ([]core.ExpenseFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListFiles(ctx, ownerID, expenseID)
}

func (s *Store) DeleteFile(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().DeleteFile(ctx, id)
}

func (s *Store) DeleteFilesByExpense(ctx context.Context, expenseID int64) ([]core.ExpenseFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().DeleteFilesByExpense(ctx, expenseID)
}

func (s *Store) ListOrphanFiles(ctx context.Context, limit int) ([]core.ExpenseFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListOrphanFiles(ctx, limit)
}

func (s *Store) AddTombstone(ctx context.Context, t core.BlobTombstone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().AddTombstone(ctx, t)
}

func (s *Store) ListTombstones(ctx context.Context, limit int) ([]core.BlobTombstone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ListTombstones(ctx, limit)
}

func (s *Store) RemoveTombstone(ctx context.Context, blobRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().RemoveTombstone(ctx, blobRef)
}

func (s *Store) BumpTombstone(ctx context.Context, blobRef, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().BumpTombstone(ctx, blobRef, lastErr)
}

// state holds the data; its methods assume the caller owns it exclusively.
type state struct {
	now        func() time.Time
	nextID     int64
	nextFileID int64
	expenses   map[int64]core.Expense
	files      map[int64]core.ExpenseFile
	tombstones map[string]core.BlobTombstone
	users      map[string]core.User
}

var _ ports.Stores = (*state)(nil)

func newState() *state {
	return &state{
		now:        time.Now,
		expenses:   map[int64]core.Expense{},
		files:      map[int64]core.ExpenseFile{},
		tombstones: map[string]core.BlobTombstone{},
		users:      map[string]core.User{},
	}
}

func (st *state) clone() *state {
	return &state{
		now:        st.now,
		nextID:     st.nextID,
		nextFileID: st.nextFileID,
		expenses:   maps.Clone(st.expenses),
		files:      maps.Clone(st.files),
		tombstones: maps.Clone(st.tombstones),
		users:      maps.Clone(st.users),
	}
}

func notFound(what string, id int64) error {
	return fmt.Errorf("%s %d: %w", what, id, core.ErrNotFound)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func (st *state) InsertExpense(_ context.Context, in core.ExpenseInput) (int64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}
	st.nextID++
	now := st.now()
	st.expenses[st.nextID] = core.Expense{
		ID:          st.nextID,
		OwnerID:     in.OwnerID,
		Name:        in.Name,
		Description: in.Description,
		Amount:      in.Amount,
		Category:    in.Category,
		Date:        in.Date,
		PaidAt:      copyTime(in.PaidAt),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return st.nextID, nil
}

func (st *state) PatchExpense(_ context.Context, id int64, in core.ExpenseInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	e, ok := st.expenses[id]
	if !ok || e.OwnerID != in.OwnerID {
		return notFound("expense", id)
	}
	e.Name, e.Description, e.Amount, e.Category, e.Date = in.Name, in.Description, in.Amount, in.Category, in.Date
	e.PaidAt = copyTime(in.PaidAt)
	e.UpdatedAt = st.now()
	st.expenses[id] = e
	return nil
}

func (st *state) SetPaid(_ context.Context, ownerID string, id int64, paidAt *time.Time) error {
	e, ok := st.expenses[id]
	if !ok || e.OwnerID != ownerID {
		return notFound("expense", id)
	}
	e.PaidAt = copyTime(paidAt)
	e.UpdatedAt = st.now()
	st.expenses[id] = e
	return nil
}

func (st *state) DeleteExpense(_ context.Context, id int64) error {
	if _, ok := st.expenses[id]; !ok {
		return notFound("expense", id)
	}
	delete(st.expenses, id)
	return nil
}

func (st *state) GetExpense(_ context.Context, ownerID string, id int64) (core.Expense, error) {
	e, ok := st.expenses[id]
	if !ok || e.OwnerID != ownerID {
		return core.Expense{}, notFound("expense", id)
	}
	e.PaidAt = copyTime(e.PaidAt)
	return e, nil
}

type filter struct {
	owner    string
	category string
	search   string
	from, to *time.Time
}

func (f filter) match(e core.Expense) bool {
	if e.OwnerID != f.owner {
		return false
	}
	if f.category != "" && e.Category != f.category {
		return false
	}
	if f.search != "" && e.Name != f.search && e.Description != f.search && e.Category != f.search {
		return false
	}
	if f.from != nil && e.Date.Before(*f.from) {
		return false
	}
	if f.to != nil && !e.Date.Before(*f.to) {
		return false
	}
	return true
}

func (st *state) selectExpenses(f filter, orderBy ports.OrderBy, desc bool) []core.Expense {
	out := make([]core.Expense, 0)
	for _, e := range st.expenses {
		if f.match(e) {
			e.PaidAt = copyTime(e.PaidAt)
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b core.Expense) int {
		var c int
		if orderBy == ports.OrderByAmount {
			c = cmpInt(a.Amount.Cents, b.Amount.Cents)
		} else {
			c = a.Date.Compare(b.Date)
		}
		if c == 0 {
			c = cmpInt(a.ID, b.ID)
		}
		if desc {
			return -c
		}
		return c
	})
	return out
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (st *state) QueryExpenses(_ context.Context, q ports.ExpenseQuery) (ports.Page, error) {
	offset, err := ports.DecodeCursor(q.Cursor)
	if err != nil {
		return ports.Page{}, err
	}
	limit := ports.ClampLimit(q.Limit)
	all := st.selectExpenses(filter{owner: q.OwnerID, search: q.Search, from: q.From, to: q.To}, q.OrderBy, q.Desc)

	if offset > len(all) {
		offset = len(all)
	}
	end := min(offset+limit, len(all))
	page := ports.Page{Expenses: all[offset:end], IsDone: end >= len(all)}
	if !page.IsDone {
		page.ContinueCursor = ports.EncodeCursor(end)
	}
	return page, nil
}

func (st *state) ListExpenses(_ context.Context, ownerID string, from, to *time.Time) ([]core.Expense, error) {
	return st.selectExpenses(filter{owner: ownerID, from: from, to: to}, ports.OrderByDate, false), nil
}

func (st *state) ListByCategory(_ context.Context, ownerID, category string, from, to *time.Time) ([]core.Expense, error) {
	return st.selectExpenses(filter{owner: ownerID, category: category, from: from, to: to}, ports.OrderByDate, false), nil
}

func (st *state) UpsertUser(_ context.Context, u core.User) error {
	if strings.TrimSpace(u.ID) == "" {
		return core.ErrEmptyOwner
	}
	st.users[u.ID] = u
	return nil
}

func (st *state) InsertFile(_ context.Context, f core.ExpenseFile) (int64, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}
	for _, existing := range st.files {
		if existing.BlobRef == f.BlobRef {
			return 0, fmt.Errorf("%w: storage id already registered", core.ErrInvalidInput)
		}
	}
	st.nextFileID++
	f.ID = st.nextFileID
	f.CreatedAt = st.now()
	st.files[f.ID] = f
	return f.ID, nil
}

func (st *state) GetFile(_ context.Context, ownerID string, id int64) (core.ExpenseFile, error) {
	f, ok := st.files[id]
	if !ok || f.OwnerID != ownerID {
		return core.ExpenseFile{}, notFound("file", id)
	}
	return f, nil
}

func (st *state) sortedFiles(keep func(core.ExpenseFile) bool) []core.ExpenseFile {
	out := make([]core.ExpenseFile, 0)
	for _, f := range st.files {
		if keep(f) {
			out = append(out, f)
		}
	}
	slices.SortFunc(out, func(a, b core.ExpenseFile) int { return cmpInt(a.ID, b.ID) })
	return out
}

func (st *state) ListFiles(_ context.Context, ownerID string, expenseID int64) ([]core.ExpenseFile, error) {
	return st.sortedFiles(func(f core.ExpenseFile) bool {
		return f.ExpenseID == expenseID && f.OwnerID == ownerID
	}), nil
}

func (st *state) DeleteFile(_ context.Context, id int64) error {
	if _, ok := st.files[id]; !ok {
		return notFound("file", id)
	}
	delete(st.files, id)
	return nil
}

func (st *state) DeleteFilesByExpense(_ context.Context, expenseID int64) ([]core.ExpenseFile, error) {
	out := st.sortedFiles(func(f core.ExpenseFile) bool { return f.ExpenseID == expenseID })
	for _, f := range out {
		delete(st.files, f.ID)
	}
	return out, nil
}

func (st *state) ListOrphanFiles(_ context.Context, limit int) ([]core.ExpenseFile, error) {
	out := st.sortedFiles(func(f core.ExpenseFile) bool {
		_, ok := st.expenses[f.ExpenseID]
		return !ok
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (st *state) AddTombstone(_ context.Context, t core.BlobTombstone) error {
	if t.BlobRef == "" {
		return fmt.Errorf("%w: blob ref", core.ErrInvalidInput)
	}
	if existing, ok := st.tombstones[t.BlobRef]; ok {
		t.Attempts = existing.Attempts
		t.CreatedAt = existing.CreatedAt
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = st.now()
	}
	st.tombstones[t.BlobRef] = t
	return nil
}

func (st *state) ListTombstones(_ context.Context, limit int) ([]core.BlobTombstone, error) {
	out := slices.Collect(maps.Values(st.tombstones))
	slices.SortFunc(out, func(a, b core.BlobTombstone) int {
		if c := a.Attempts - b.Attempts; c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (st *state) RemoveTombstone(_ context.Context, blobRef string) error {
	delete(st.tombstones, blobRef)
	return nil
}

func (st *state) BumpTombstone(_ context.Context, blobRef, lastErr string) error {
	t, ok := st.tombstones[blobRef]
	if !ok {
		return fmt.Errorf("tombstone %s: %w", blobRef, core.ErrNotFound)
	}
	t.Attempts++
	t.LastError = lastErr
	st.tombstones[blobRef] = t
	return nil
}
