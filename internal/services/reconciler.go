package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/ports"
)

// ReconcilerConfig holds configuration for the reconciler.
type ReconcilerConfig struct {
	// Interval between sweeps (default: 10m).
	Interval time.Duration

	// BatchSize caps tombstones and orphan rows handled per sweep (default: 50).
	BatchSize int
}

func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Interval:  10 * time.Minute,
		BatchSize: 50,
	}
}

// ReconcileReport summarizes one sweep.
type ReconcileReport struct {
	BlobsDeleted   int
	BlobsRetrying  int
	OrphansRemoved int
}

// Reconciler retries failed blob deletions and removes file rows whose expense
// is gone.
type Reconciler struct {
	store  ports.Store
	blobs  ports.BlobStore
	config ReconcilerConfig
	logger *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReconciler(store ports.Store, blobs ports.BlobStore, config ReconcilerConfig, logger *log.Logger) *Reconciler {
	def := DefaultReconcilerConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Reconciler{
		store:  store,
		blobs:  blobs,
		config: config,
		logger: logger.WithComponent(log.ComponentReconcile),
	}
}

// Sweep runs one reconciliation pass.
func (r *Reconciler) Sweep(ctx context.Context) (ReconcileReport, error) {
	var rep ReconcileReport

	tombstones, err := r.store.ListTombstones(ctx, r.config.BatchSize)
	if err != nil {
		return rep, fmt.Errorf("list tombstones: %w", err)
	}
	var errs []error
	for _, t := range tombstones {
		if err := r.blobs.Delete(ctx, t.BlobRef); err != nil {
			rep.BlobsRetrying++
			if berr := r.store.BumpTombstone(ctx, t.BlobRef, err.Error()); berr != nil {
				errs = append(errs, fmt.Errorf("bump tombstone %s: %w", t.BlobRef, berr))
			}
			r.logger.WarnContext(ctx, "Blob delete retry failed",
				log.FieldBlobRef, t.BlobRef,
				"attempts", t.Attempts+1,
				log.FieldError, err)
			continue
		}
		if err := r.store.RemoveTombstone(ctx, t.BlobRef); err != nil {
			errs = append(errs, fmt.Errorf("remove tombstone %s: %w", t.BlobRef, err))
			continue
		}
		rep.BlobsDeleted++
	}

	orphans, err := r.store.ListOrphanFiles(ctx, r.config.BatchSize)
	if err != nil {
		return rep, errors.Join(append(errs, fmt.Errorf("list orphan files: %w", err))...)
	}
	for _, f := range orphans {
		if err := r.store.DeleteFile(ctx, f.ID); err != nil && !errors.Is(err, core.ErrNotFound) {
			errs = append(errs, fmt.Errorf("delete orphan file %d: %w", f.ID, err))
			continue
		}
		removeBlob(ctx, r.store, r.blobs, r.logger, f.BlobRef, fmt.Sprintf("orphan of expense %d", f.ExpenseID))
		rep.OrphansRemoved++
	}

	if rep != (ReconcileReport{}) {
		r.logger.InfoContext(ctx, "Reconciliation sweep complete",
			"blobs_deleted", rep.BlobsDeleted,
			"blobs_retrying", rep.BlobsRetrying,
			"orphans_removed", rep.OrphansRemoved)
	}
	return rep, errors.Join(errs...)
}

// Start sweeps once immediately and then on every interval until Stop or ctx is
// done. Returns an error if already running.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reconciler is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.runLoop(ctx)

	r.logger.InfoContext(ctx, "Reconciler started",
		"interval", r.config.Interval,
		"batch_size", r.config.BatchSize)
	return nil
}

// Stop signals the loop and waits for the current sweep to finish.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
	case <-ctx.Done():
		r.logger.WarnContext(ctx, "Reconciler stop timed out")
		return ctx.Err()
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	return nil
}

func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Reconciler) runLoop(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.Sweep(ctx); err != nil {
			r.logger.ErrorContext(ctx, "Reconciliation sweep failed", log.FieldError, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
		}
	}
}
