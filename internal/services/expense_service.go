package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/ports"
)

const (
	DefaultMaxOccurrences = 1000
	DefaultConcurrency    = 4
)

// ExpenseServiceConfig wires the collaborators of an ExpenseService. Events and
// OnChange are optional.
type ExpenseServiceConfig struct {
	Store  ports.Store
	Blobs  ports.BlobStore
	Events ports.EventPublisher
	Logger *log.Logger

	// OnChange runs after every committed mutation of ownerID's expenses.
	OnChange func(ownerID string)

	MaxOccurrences int
	Concurrency    int
	Now            func() time.Time
}

// ExpenseService orchestrates expense mutations across the store, the blob store and
// the event bus. The store is the source of truth; events are best effort.
type ExpenseService struct {
	store    ports.Store
	blobs    ports.BlobStore
	events   ports.EventPublisher
	logger   *log.Logger
	onChange func(string)

	maxOccurrences int
	concurrency    int
	now            func() time.Time
}

func NewExpenseService(cfg ExpenseServiceConfig) *ExpenseService {
	s := &ExpenseService{
		store:          cfg.Store,
		blobs:          cfg.Blobs,
		events:         cfg.Events,
		logger:         cfg.Logger,
		onChange:       cfg.OnChange,
		maxOccurrences: cfg.MaxOccurrences,
		concurrency:    cfg.Concurrency,
		now:            cfg.Now,
	}
	if s.logger == nil {
		s.logger = log.Discard()
	}
	s.logger = s.logger.WithComponent(log.ComponentExpense)
	if s.maxOccurrences <= 0 {
		s.maxOccurrences = DefaultMaxOccurrences
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultConcurrency
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *ExpenseService) Create(ctx context.Context, in core.ExpenseInput) (core.Expense, error) {
	if err := in.Validate(); err != nil {
		return core.Expense{}, err
	}
	id, err := s.store.InsertExpense(ctx, in)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	e, err := s.store.GetExpense(ctx, in.OwnerID, id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("reload expense: %w", err)
	}

	s.logger.InfoContext(ctx, "Expense created",
		log.NewFields().WithUser(in.OwnerID).WithExpense(e.ID, e.Name, e.Amount.Cents, e.Category).ToSlice()...)
	s.changed(in.OwnerID)
	s.publish(ctx, core.EventExpenseCreated, e)
	return e, nil
}

func (s *ExpenseService) Get(ctx context.Context, ownerID string, id int64) (core.Expense, error) {
	e, err := s.store.GetExpense(ctx, ownerID, id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (s *ExpenseService) Query(ctx context.Context, q ports.ExpenseQuery) (ports.Page, error) {
	if q.OwnerID == "" {
		return ports.Page{}, core.ErrEmptyOwner
	}
	if q.OrderBy == "" {
		q.OrderBy = ports.OrderByDate
	}
	if q.OrderBy != ports.OrderByDate && q.OrderBy != ports.OrderByAmount {
		return ports.Page{}, fmt.Errorf("%w: order_by %q", core.ErrInvalidInput, q.OrderBy)
	}
	q.Limit = ports.ClampLimit(q.Limit)
	page, err := s.store.QueryExpenses(ctx, q)
	if err != nil {
		return ports.Page{}, fmt.Errorf("query expenses: %w", err)
	}
	return page, nil
}

// Update replaces the editable fields of an expense. The paid state is kept; use
// SetPaid to change it.
func (s *ExpenseService) Update(ctx context.Context, id int64, in core.ExpenseInput) (core.Expense, error) {
	existing, err := s.store.GetExpense(ctx, in.OwnerID, id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	in.PaidAt = existing.PaidAt
	if err := in.Validate(); err != nil {
		return core.Expense{}, err
	}
	if err := s.store.PatchExpense(ctx, id, in); err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	e, err := s.store.GetExpense(ctx, in.OwnerID, id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("reload expense: %w", err)
	}

	s.changed(in.OwnerID)
	s.publish(ctx, core.EventExpenseUpdated, e)
	return e, nil
}

// SetPaid stamps the expense as paid now, or clears the stamp.
func (s *ExpenseService) SetPaid(ctx context.Context, ownerID string, id int64, paid bool) (core.Expense, error) {
	var paidAt *time.Time
	if paid {
		now := s.now().UTC()
		paidAt = &now
	}
	if err := s.store.SetPaid(ctx, ownerID, id, paidAt); err != nil {
		return core.Expense{}, fmt.Errorf("set paid: %w", err)
	}
	e, err := s.store.GetExpense(ctx, ownerID, id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("reload expense: %w", err)
	}

	s.changed(ownerID)
	s.publish(ctx, core.EventExpenseUpdated, e)
	return e, nil
}

// Delete removes the expense and its file rows in one transaction, then deletes
// the blobs. A blob that cannot be deleted is left to the reconciler.
func (s *ExpenseService) Delete(ctx context.Context, ownerID string, id int64) error {
	e, err := s.store.GetExpense(ctx, ownerID, id)
	if err != nil {
		return fmt.Errorf("get expense: %w", err)
	}

	var files []core.ExpenseFile
	err = s.store.WithTx(ctx, func(tx ports.Stores) error {
		var err error
		if files, err = tx.DeleteFilesByExpense(ctx, id); err != nil {
			return fmt.Errorf("delete files: %w", err)
		}
		if err := tx.DeleteExpense(ctx, id); err != nil {
			return fmt.Errorf("delete expense: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, f := range files {
		removeBlob(ctx, s.store, s.blobs, s.logger, f.BlobRef, fmt.Sprintf("expense %d deleted", id))
	}

	s.logger.InfoContext(ctx, "Expense deleted",
		log.FieldUserID, ownerID,
		log.FieldExpenseID, id,
		log.FieldCount, len(files))
	s.changed(ownerID)
	s.publish(ctx, core.EventExpenseDeleted, e)
	return nil
}

type (
	CreatedOccurrence struct {
		ID   int64
		Date time.Time
	}

	FailedOccurrence struct {
		Date time.Time
		Err  error
	}

	// RecurringResult reports every occurrence, in chronological order.
	RecurringResult struct {
		Created []CreatedOccurrence
		Failed  []FailedOccurrence
	}
)

// Preview returns the dates CreateRecurring would persist.
func (s *ExpenseService) Preview(req core.RecurrenceRequest) ([]time.Time, error) {
	if err := s.checkOccurrences(req); err != nil {
		return nil, err
	}
	seq, err := core.Recurrences(req)
	if err != nil {
		return nil, err
	}
	dates := make([]time.Time, 0)
	for in := range seq {
		dates = append(dates, in.Date)
	}
	return dates, nil
}

// CreateRecurring persists every occurrence of req. Occurrences are saved
// independently: a failure is recorded and the rest continue.
func (s *ExpenseService) CreateRecurring(ctx context.Context, req core.RecurrenceRequest) (RecurringResult, error) {
	if err := s.checkOccurrences(req); err != nil {
		return RecurringResult{}, err
	}
	occurrences, err := core.GenerateRecurrences(req)
	if err != nil {
		return RecurringResult{}, err
	}

	ids := make([]int64, len(occurrences))
	errs := make([]error, len(occurrences))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, in := range occurrences {
		g.Go(func() error {
			ids[i], errs[i] = s.store.InsertExpense(ctx, in)
			return nil
		})
	}
	_ = g.Wait()

	var res RecurringResult
	for i, in := range occurrences {
		if errs[i] != nil {
			s.logger.ErrorContext(ctx, "Failed to save occurrence",
				log.NewFields().WithUser(in.OwnerID).WithDate(in.Date).WithError(errs[i], core.Kind(errs[i])).ToSlice()...)
			res.Failed = append(res.Failed, FailedOccurrence{Date: in.Date, Err: errs[i]})
			continue
		}
		res.Created = append(res.Created, CreatedOccurrence{ID: ids[i], Date: in.Date})
	}

	s.logger.InfoContext(ctx, "Recurring expenses created",
		log.FieldUserID, req.Template.OwnerID,
		log.FieldCadence, req.Cadence,
		"created", len(res.Created),
		"failed", len(res.Failed))

	if len(res.Created) > 0 {
		s.changed(req.Template.OwnerID)
	}
	for _, c := range res.Created {
		e, err := s.store.GetExpense(ctx, req.Template.OwnerID, c.ID)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping event for unreadable occurrence", log.FieldExpenseID, c.ID, log.FieldError, err)
			continue
		}
		s.publish(ctx, core.EventExpenseCreated, e)
	}
	return res, nil
}

func (s *ExpenseService) checkOccurrences(req core.RecurrenceRequest) error {
	n, err := core.CountRecurrences(req, s.maxOccurrences)
	if err != nil {
		return err
	}
	if n > s.maxOccurrences {
		return fmt.Errorf("%w: limit is %d", core.ErrTooManyOccurrences, s.maxOccurrences)
	}
	return nil
}

func (s *ExpenseService) changed(ownerID string) {
	if s.onChange != nil {
		s.onChange(ownerID)
	}
}

// publish never fails the caller: the expense is already committed.
func (s *ExpenseService) publish(ctx context.Context, typ core.EventType, e core.Expense) {
	if s.events == nil {
		return
	}
	ev := core.ExpenseEvent{Type: typ, ExpenseID: e.ID, OwnerID: e.OwnerID, OccurredAt: s.now().UTC()}
	if typ != core.EventExpenseDeleted {
		ev.Expense = &e
	}
	if err := s.events.PublishExpenseEvent(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish expense event",
			log.FieldOperation, log.OpPublish,
			log.FieldExpenseID, e.ID,
			log.FieldError, err)
	}
}

// removeBlob deletes a blob and records a tombstone when that fails.
func removeBlob(ctx context.Context, tombstones ports.TombstoneStore, blobs ports.BlobStore, logger *log.Logger, ref, reason string) {
	if blobs == nil {
		return
	}
	err := blobs.Delete(ctx, ref)
	if err == nil {
		return
	}
	logger.WarnContext(ctx, "Blob delete failed, scheduling retry", log.FieldBlobRef, ref, log.FieldError, err)
	t := core.BlobTombstone{BlobRef: ref, Reason: reason, LastError: err.Error()}
	if terr := tombstones.AddTombstone(context.WithoutCancel(ctx), t); terr != nil {
		logger.ErrorContext(ctx, "Failed to record blob tombstone", log.FieldBlobRef, ref, log.FieldError, terr)
	}
}
