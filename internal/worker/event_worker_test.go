package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/amqp"
	"gastos/internal/core"
)

type fakeMirror struct {
	mu       sync.Mutex
	appended []core.Expense
	removed  []int64
	err      error
}

func (m *fakeMirror) AppendExpense(_ context.Context, e core.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.appended = append(m.appended, e)
	return nil
}

func (m *fakeMirror) RemoveExpense(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.removed = append(m.removed, id)
	return nil
}

func message(typ core.EventType, id int64) *amqp.ExpenseEventMessage {
	ev := core.ExpenseEvent{Type: typ, ExpenseID: id, OwnerID: "u1"}
	if typ != core.EventExpenseDeleted {
		ev.Expense = &core.Expense{ID: id, OwnerID: "u1", Name: "Rent", Category: "Housing", Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	}
	return amqp.NewExpenseEventMessage(ev)
}

func TestEventWorker_HandleExpenseEvent(t *testing.T) {
	ctx := context.Background()
	mirror := &fakeMirror{}
	w := NewEventWorker(mirror, nil)

	require.NoError(t, w.HandleExpenseEvent(ctx, message(core.EventExpenseCreated, 1)))
	require.NoError(t, w.HandleExpenseEvent(ctx, message(core.EventExpenseUpdated, 1)))
	require.NoError(t, w.HandleExpenseEvent(ctx, message(core.EventExpenseDeleted, 1)))

	require.Len(t, mirror.appended, 2)
	assert.Equal(t, "Rent", mirror.appended[0].Name)
	assert.Equal(t, []int64{1}, mirror.removed)

	bad := message(core.EventExpenseCreated, 2)
	bad.Expense = nil
	assert.ErrorIs(t, w.HandleExpenseEvent(ctx, bad), amqp.ErrPermanent)

	unknown := message(core.EventExpenseDeleted, 3)
	unknown.Type = "expense.archived"
	assert.ErrorIs(t, w.HandleExpenseEvent(ctx, unknown), amqp.ErrPermanent)
}

func TestEventWorker_MirrorFailureIsReturned(t *testing.T) {
	mirror := &fakeMirror{err: errors.New("quota exceeded")}
	w := NewEventWorker(mirror, nil)

	err := w.HandleExpenseEvent(context.Background(), message(core.EventExpenseCreated, 5))
	assert.ErrorIs(t, err, mirror.err, "the consumer requeues on error")
	assert.NotErrorIs(t, err, amqp.ErrPermanent)
}

func TestEventWorker_NoMirror(t *testing.T) {
	w := NewEventWorker(nil, nil)
	assert.NoError(t, w.HandleExpenseEvent(context.Background(), message(core.EventExpenseCreated, 1)))
}

type fakeConsumer struct {
	msgs []*amqp.ExpenseEventMessage
}

func (c *fakeConsumer) ConsumeExpenseEvents(ctx context.Context, handler amqp.Handler) error {
	for _, m := range c.msgs {
		if err := handler(ctx, m); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

type fakeSweeper struct {
	started, stopped bool
}

func (s *fakeSweeper) Start(context.Context) error { s.started = true; return nil }
func (s *fakeSweeper) Stop(context.Context) error  { s.stopped = true; return nil }

func TestEventWorker_Run(t *testing.T) {
	mirror := &fakeMirror{}
	w := NewEventWorker(mirror, nil)
	consumer := &fakeConsumer{msgs: []*amqp.ExpenseEventMessage{message(core.EventExpenseCreated, 1)}}
	sweeper := &fakeSweeper{}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, w.Run(ctx, consumer, sweeper))
	assert.True(t, sweeper.started)
	assert.True(t, sweeper.stopped)
	assert.Len(t, mirror.appended, 1)
}
