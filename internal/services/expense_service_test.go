package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/core"
	"gastos/internal/memory"
	"gastos/internal/ports"
)

type expenseFixture struct {
	store   *memory.Store
	blobs   *fakeBlobs
	events  *recordingPublisher
	changed []string
	svc     *ExpenseService
}

func newExpenseFixture(t *testing.T, store ports.Store) *expenseFixture {
	t.Helper()
	f := &expenseFixture{blobs: newFakeBlobs(), events: &recordingPublisher{}}
	if store == nil {
		f.store = memory.New()
		store = f.store
	}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	f.svc = NewExpenseService(ExpenseServiceConfig{
		Store:          store,
		Blobs:          f.blobs,
		Events:         f.events,
		OnChange:       func(owner string) { f.changed = append(f.changed, owner) },
		MaxOccurrences: 31,
		Concurrency:    3,
		Now:            func() time.Time { return now },
	})
	return f
}

func TestExpenseService_CreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	f := newExpenseFixture(t, nil)

	e, err := f.svc.Create(ctx, input("u1", "Rent", "Housing", 120000, day(2024, 3, 1)))
	require.NoError(t, err)
	assert.NotZero(t, e.ID)

	_, err = f.svc.Get(ctx, "u2", e.ID)
	assert.ErrorIs(t, err, core.ErrNotFound, "other owners cannot read the expense")

	paid, err := f.svc.SetPaid(ctx, "u1", e.ID, true)
	require.NoError(t, err)
	require.NotNil(t, paid.PaidAt)

	edit := input("u1", "Rent March", "Housing", 125000, day(2024, 3, 2))
	updated, err := f.svc.Update(ctx, e.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, "Rent March", updated.Name)
	assert.Equal(t, int64(125000), updated.Amount.Cents)
	assert.True(t, updated.IsPaid(), "edits keep the paid state")

	unpaid, err := f.svc.SetPaid(ctx, "u1", e.ID, false)
	require.NoError(t, err)
	assert.Nil(t, unpaid.PaidAt)

	assert.Equal(t, []core.EventType{
		core.EventExpenseCreated, core.EventExpenseUpdated, core.EventExpenseUpdated, core.EventExpenseUpdated,
	}, f.events.types())
	assert.Equal(t, []string{"u1", "u1", "u1", "u1"}, f.changed)
}

func TestExpenseService_CreateRejectsInvalidInput(t *testing.T) {
	f := newExpenseFixture(t, nil)
	tests := []struct {
		name string
		in   core.ExpenseInput
		want error
	}{
		{"negative amount", input("u1", "Rent", "Housing", -1, day(2024, 1, 1)), core.ErrNegativeAmount},
		{"empty name", input("u1", " ", "Housing", 1, day(2024, 1, 1)), core.ErrEmptyName},
		{"empty category", input("u1", "Rent", "", 1, day(2024, 1, 1)), core.ErrEmptyCategory},
		{"missing date", input("u1", "Rent", "Housing", 1, time.Time{}), core.ErrInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, core.ErrInvalidInput)
		})
	}
	assert.Empty(t, f.events.types())
}

func TestExpenseService_PublishFailureDoesNotFailRequest(t *testing.T) {
	f := newExpenseFixture(t, nil)
	f.events.err = errors.New("broker down")

	_, err := f.svc.Create(context.Background(), input("u1", "Coffee", "Food", 450, day(2024, 1, 1)))
	assert.NoError(t, err)
}

func TestExpenseService_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	f := newExpenseFixture(t, nil)

	e, err := f.svc.Create(ctx, input("u1", "Laptop", "Work", 250000, day(2024, 2, 10)))
	require.NoError(t, err)
	for _, ref := range []string{"blob-a", "blob-b"} {
		f.blobs.data[ref] = []byte("x")
		_, err := f.store.InsertFile(ctx, core.ExpenseFile{
			OwnerID: "u1", ExpenseID: e.ID, BlobRef: ref, ContentType: "application/pdf", Filename: ref + ".pdf",
		})
		require.NoError(t, err)
	}

	assert.ErrorIs(t, f.svc.Delete(ctx, "u2", e.ID), core.ErrNotFound)

	require.NoError(t, f.svc.Delete(ctx, "u1", e.ID))
	_, err = f.store.GetExpense(ctx, "u1", e.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	files, err := f.store.ListFiles(ctx, "u1", e.ID)
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.ElementsMatch(t, []string{"blob-a", "blob-b"}, f.blobs.deleted)

	evs := f.events.events
	last := evs[len(evs)-1]
	assert.Equal(t, core.EventExpenseDeleted, last.Type)
	assert.Nil(t, last.Expense)
}

func TestExpenseService_DeleteRecordsTombstoneOnBlobFailure(t *testing.T) {
	ctx := context.Background()
	f := newExpenseFixture(t, nil)
	f.blobs.setFailDelete(true)

	e, err := f.svc.Create(ctx, input("u1", "Laptop", "Work", 250000, day(2024, 2, 10)))
	require.NoError(t, err)
	_, err = f.store.InsertFile(ctx, core.ExpenseFile{
		OwnerID: "u1", ExpenseID: e.ID, BlobRef: "blob-a", ContentType: "image/png", Filename: "r.png",
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, "u1", e.ID), "a failed blob delete does not fail the request")

	tombs, err := f.store.ListTombstones(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tombs, 1)
	assert.Equal(t, "blob-a", tombs[0].BlobRef)
	assert.Contains(t, tombs[0].LastError, errBlobDown.Error())
}

func TestExpenseService_CreateRecurring(t *testing.T) {
	ctx := context.Background()
	f := newExpenseFixture(t, nil)
	req := core.RecurrenceRequest{
		Template: core.ExpenseTemplate{OwnerID: "u1", Name: "Gym", Amount: core.Money{Cents: 3000}, Category: "Health"},
		Cadence:  core.Daily,
		Start:    day(2024, 5, 1),
		End:      day(2024, 5, 7),
	}

	res, err := f.svc.CreateRecurring(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, res.Failed)
	require.Len(t, res.Created, 7)
	for i, c := range res.Created {
		assert.Equal(t, day(2024, 5, 1+i), c.Date)
	}

	// every occurrence comes back from a range query on the same window
	to := day(2024, 5, 8)
	stored, err := f.store.ListExpenses(ctx, "u1", &req.Start, &to)
	require.NoError(t, err)
	assert.Len(t, stored, 7)
	assert.Len(t, f.events.types(), 7)
	assert.Equal(t, []string{"u1"}, f.changed, "one invalidation per batch")
}

func TestExpenseService_CreateRecurringReportsEachFailure(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{Store: memory.New(), failOn: map[string]bool{"2024-05-02": true, "2024-05-04": true}}
	f := newExpenseFixture(t, flaky)
	req := core.RecurrenceRequest{
		Template: core.ExpenseTemplate{OwnerID: "u1", Name: "Gym", Amount: core.Money{Cents: 3000}, Category: "Health"},
		Cadence:  core.Daily,
		Start:    day(2024, 5, 1),
		End:      day(2024, 5, 5),
	}

	res, err := f.svc.CreateRecurring(ctx, req)
	require.NoError(t, err)
	require.Len(t, res.Created, 3)
	require.Len(t, res.Failed, 2)
	assert.Equal(t, day(2024, 5, 2), res.Failed[0].Date)
	assert.Equal(t, day(2024, 5, 4), res.Failed[1].Date)
	assert.ErrorIs(t, res.Failed[0].Err, core.ErrPersistence)
}

func TestExpenseService_RecurringLimits(t *testing.T) {
	f := newExpenseFixture(t, nil)
	tmpl := core.ExpenseTemplate{OwnerID: "u1", Name: "Gym", Amount: core.Money{Cents: 3000}, Category: "Health"}

	_, err := f.svc.CreateRecurring(context.Background(), core.RecurrenceRequest{
		Template: tmpl, Cadence: core.Daily, Start: day(2024, 1, 1), End: day(2024, 12, 31),
	})
	assert.ErrorIs(t, err, core.ErrTooManyOccurrences)

	_, err = f.svc.CreateRecurring(context.Background(), core.RecurrenceRequest{
		Template: tmpl, Cadence: "hourly", Start: day(2024, 1, 1), End: day(2024, 1, 2),
	})
	assert.ErrorIs(t, err, core.ErrInvalidCadence)

	dates, err := f.svc.Preview(core.RecurrenceRequest{
		Template: tmpl, Cadence: core.None, Start: day(2024, 3, 1), End: day(2024, 1, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(2024, 3, 1)}, dates)
}

func TestExpenseService_Query(t *testing.T) {
	ctx := context.Background()
	f := newExpenseFixture(t, nil)
	for i, cents := range []int64{500, 100, 300} {
		_, err := f.svc.Create(ctx, input("u1", "Item", "Misc", cents, day(2024, 1, 1+i)))
		require.NoError(t, err)
	}

	page, err := f.svc.Query(ctx, ports.ExpenseQuery{OwnerID: "u1", OrderBy: ports.OrderByAmount, Desc: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Expenses, 2)
	assert.Equal(t, int64(500), page.Expenses[0].Amount.Cents)
	assert.False(t, page.IsDone)

	next, err := f.svc.Query(ctx, ports.ExpenseQuery{OwnerID: "u1", OrderBy: ports.OrderByAmount, Desc: true, Limit: 2, Cursor: page.ContinueCursor})
	require.NoError(t, err)
	require.Len(t, next.Expenses, 1)
	assert.True(t, next.IsDone)

	_, err = f.svc.Query(ctx, ports.ExpenseQuery{OwnerID: "u1", OrderBy: "by_name"})
	assert.True(t, strings.Contains(err.Error(), "order_by"))
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}
