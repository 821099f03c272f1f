package worker

import (
	"context"
	"errors"
	"fmt"

	"gastos/internal/amqp"
	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/ports"
)

// Consumer delivers expense events until ctx is done.
type Consumer interface {
	ConsumeExpenseEvents(ctx context.Context, handler amqp.Handler) error
}

// Sweeper runs periodic maintenance alongside the consumer.
type Sweeper interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// EventWorker applies expense events to the spreadsheet mirror.
type EventWorker struct {
	mirror ports.Mirror
	logger *log.Logger
}

// NewEventWorker accepts a nil mirror, in which case events are acknowledged and
// dropped.
func NewEventWorker(mirror ports.Mirror, logger *log.Logger) *EventWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &EventWorker{mirror: mirror, logger: logger.WithComponent(log.ComponentWorker)}
}

// HandleExpenseEvent implements amqp.Handler.
func (w *EventWorker) HandleExpenseEvent(ctx context.Context, msg *amqp.ExpenseEventMessage) error {
	ev := msg.Event()
	logger := w.logger.With(log.FieldExpenseID, ev.ExpenseID, "type", ev.Type)

	if w.mirror == nil {
		logger.DebugContext(ctx, "No mirror configured, skipping event")
		return nil
	}

	switch ev.Type {
	case core.EventExpenseCreated, core.EventExpenseUpdated:
		if ev.Expense == nil {
			return fmt.Errorf("%w: %s event without expense", amqp.ErrPermanent, ev.Type)
		}
		if err := w.mirror.AppendExpense(ctx, *ev.Expense); err != nil {
			return fmt.Errorf("mirror expense %d: %w", ev.ExpenseID, err)
		}
	case core.EventExpenseDeleted:
		if err := w.mirror.RemoveExpense(ctx, ev.ExpenseID); err != nil {
			return fmt.Errorf("remove mirrored expense %d: %w", ev.ExpenseID, err)
		}
	default:
		return fmt.Errorf("%w: unknown event type %q", amqp.ErrPermanent, ev.Type)
	}

	logger.InfoContext(ctx, "Mirrored expense event", log.FieldOperation, log.OpMirror)
	return nil
}

// Run consumes events and keeps the sweeper running until ctx is cancelled.
// Cancellation is a clean shutdown and returns nil.
func (w *EventWorker) Run(ctx context.Context, consumer Consumer, sweeper Sweeper) error {
	if sweeper != nil {
		if err := sweeper.Start(ctx); err != nil {
			return fmt.Errorf("start sweeper: %w", err)
		}
		defer func() {
			if err := sweeper.Stop(context.WithoutCancel(ctx)); err != nil {
				w.logger.Warn("Sweeper stop failed", log.FieldError, err)
			}
		}()
	}

	w.logger.InfoContext(ctx, "Event worker started", log.FieldOperation, log.OpStartup)
	err := consumer.ConsumeExpenseEvents(ctx, w.HandleExpenseEvent)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		w.logger.Info("Event worker stopped", log.FieldOperation, log.OpShutdown)
		return nil
	}
	return err
}
