package scheduler

import (
	"context"
	"errors"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shopmargin/backend/internal/application/reconcile"
	"github.com/shopmargin/backend/internal/domain/merchant"
	"github.com/shopmargin/backend/internal/domain/shared"
	"github.com/shopmargin/backend/internal/domain/sync"
)

// ---------------------------------------------------------------------------
// Collaborator interfaces
// ---------------------------------------------------------------------------

// PlatformSource is everything the reconcilers need from one store's API
type PlatformSource interface {
	reconcile.CatalogSource
	reconcile.OrderSource
}

// SourceResolver resolves the API source for a merchant
type SourceResolver interface {
	ForMerchant(m *merchant.Merchant) (PlatformSource, error)
}

// CatalogReconciler runs one full catalog pass
type CatalogReconciler interface {
	Reconcile(ctx context.Context, m *merchant.Merchant, settings *merchant.AppSettings, source reconcile.CatalogSource, limit int) reconcile.Outcome
}

// OrderReconciler runs one incremental order pass
type OrderReconciler interface {
	Reconcile(ctx context.Context, m *merchant.Merchant, settings *merchant.AppSettings, source reconcile.OrderSource, watermark *time.Time, limit int) reconcile.Outcome
}

// MarginTrigger is invoked after a successful order run to recompute the
// merchant's margin window and emit its outcome event. Implementations
// must not fail the run: margin problems are reported, not retried here.
type MarginTrigger interface {
	AfterOrderSync(ctx context.Context, m *merchant.Merchant, settings *merchant.AppSettings, run *sync.Run) []shared.DomainEvent
}

// RunRecorder persists a terminal run together with its outcome events,
// atomically. The events go to the outbox in the same transaction.
type RunRecorder interface {
	SaveRunWithEvents(ctx context.Context, run *sync.Run, events ...shared.DomainEvent) error
}

// SyncLock extends single-flight across instances. Nil-able: a single
// instance deployment runs without one.
type SyncLock interface {
	Acquire(ctx context.Context, merchantID uuid.UUID, kind sync.Kind, runID uuid.UUID, ttl time.Duration) (bool, error)
	Release(ctx context.Context, merchantID uuid.UUID, kind sync.Kind, runID uuid.UUID) error
}

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

// Config holds scheduler configuration
type Config struct {
	Workers    int
	QueueSize  int
	RunTimeout time.Duration
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		Workers:    4,
		QueueSize:  100,
		RunTimeout: 15 * time.Minute,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Workers <= 0 || c.QueueSize <= 0 || c.RunTimeout <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ---------------------------------------------------------------------------
// Scheduler
// ---------------------------------------------------------------------------

// flightKey identifies the single-flight slot for a merchant and sync kind
type flightKey struct {
	merchantID uuid.UUID
	kind       sync.Kind
}

// RequestResult reports how an intake request landed
type RequestResult struct {
	Run *sync.Run
	// Coalesced is true when an equivalent run was already pending or
	// running and no new run was created
	Coalesced bool
}

// Scheduler is the single intake point for sync work. Cron firings and
// manual triggers go through the same Request path, which enforces one
// in-flight run per (merchant, kind): duplicates coalesce onto the
// existing run instead of queueing behind it.
type Scheduler struct {
	config       Config
	merchantRepo merchant.Repository
	settingsRepo merchant.SettingsRepository
	runRepo      sync.RunRepository
	sources      SourceResolver
	catalog      CatalogReconciler
	orders       OrderReconciler
	margins      MarginTrigger
	recorder     RunRecorder
	lock         SyncLock
	logger       *zap.Logger

	jobs      chan *sync.Run
	cancel    context.CancelFunc
	wg        stdsync.WaitGroup
	mu        stdsync.Mutex
	isRunning bool

	flightMu stdsync.Mutex
	inflight map[flightKey]*flight
}

// flight tracks one in-flight run. cancel is nil until a worker picks the
// run up; cancelled covers the queued window before that.
type flight struct {
	run       *sync.Run
	cancel    context.CancelFunc
	cancelled bool
}

// NewScheduler creates a scheduler. lock may be nil for single-instance
// deployments; margins may be nil to disable margin recomputation.
func NewScheduler(
	config Config,
	merchantRepo merchant.Repository,
	settingsRepo merchant.SettingsRepository,
	runRepo sync.RunRepository,
	sources SourceResolver,
	catalog CatalogReconciler,
	orders OrderReconciler,
	margins MarginTrigger,
	recorder RunRecorder,
	lock SyncLock,
	logger *zap.Logger,
) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		config:       config,
		merchantRepo: merchantRepo,
		settingsRepo: settingsRepo,
		runRepo:      runRepo,
		sources:      sources,
		catalog:      catalog,
		orders:       orders,
		margins:      margins,
		recorder:     recorder,
		lock:         lock,
		logger:       logger,
		jobs:         make(chan *sync.Run, config.QueueSize),
		inflight:     make(map[flightKey]*flight),
	}, nil
}

// Start starts the worker pool
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("sync scheduler started",
		zap.Int("workers", s.config.Workers),
		zap.Duration("run_timeout", s.config.RunTimeout),
	)
	return nil
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	close(s.jobs)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("sync scheduler stop timed out")
		return ctx.Err()
	}
}

// Running reports whether the scheduler is accepting work
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// InFlight returns the number of runs currently pending or running
func (s *Scheduler) InFlight() int {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	return len(s.inflight)
}

// Request asks for a sync of one kind for one merchant. If an equivalent
// run is already in flight the existing run is returned with Coalesced
// set and the new request's limit is ignored; otherwise a new run is
// created, persisted and queued. A positive limit caps the page size for
// the run; zero uses the platform client's configured size.
func (s *Scheduler) Request(ctx context.Context, merchantID uuid.UUID, kind sync.Kind, trigger sync.Trigger, limit int) (*RequestResult, error) {
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}

	s.mu.Lock()
	running := s.isRunning
	s.mu.Unlock()
	if !running {
		return nil, ErrSchedulerNotRunning
	}

	m, err := s.merchantRepo.FindByID(ctx, merchantID)
	if err != nil {
		return nil, err
	}

	key := flightKey{merchantID: m.ID, kind: kind}

	s.flightMu.Lock()
	if existing, ok := s.inflight[key]; ok {
		s.flightMu.Unlock()
		return &RequestResult{Run: existing.run, Coalesced: true}, nil
	}
	run := sync.NewRun(m.ID, kind, trigger)
	run.PageLimit = limit
	s.inflight[key] = &flight{run: run}
	s.flightMu.Unlock()

	if err := s.runRepo.Create(ctx, run); err != nil {
		s.clearFlight(key)
		return nil, err
	}

	select {
	case s.jobs <- run:
		s.logger.Debug("sync run queued",
			zap.String("run_id", run.ID.String()),
			zap.String("merchant_id", m.ID.String()),
			zap.String("kind", string(kind)),
			zap.String("trigger", string(trigger)),
		)
		return &RequestResult{Run: run}, nil
	default:
		s.clearFlight(key)
		run.Fail(ErrQueueFull.Error())
		if updateErr := s.runRepo.Update(ctx, run); updateErr != nil {
			s.logger.Error("failed to record queue-full run", zap.Error(updateErr))
		}
		return nil, ErrQueueFull
	}
}

// CancelRun requests cooperative cancellation of the in-flight run for a
// merchant and kind. Returns false when nothing is in flight. A run that
// already finished its pages keeps its final status.
func (s *Scheduler) CancelRun(merchantID uuid.UUID, kind sync.Kind) bool {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	f, ok := s.inflight[flightKey{merchantID: merchantID, kind: kind}]
	if !ok {
		return false
	}
	f.cancelled = true
	if f.cancel != nil {
		f.cancel()
	}
	return true
}

func (s *Scheduler) clearFlight(key flightKey) {
	s.flightMu.Lock()
	delete(s.inflight, key)
	s.flightMu.Unlock()
}

// armFlight installs the run's cancel func so CancelRun can reach it.
// Returns false when the run was cancelled while still queued.
func (s *Scheduler) armFlight(key flightKey, cancel context.CancelFunc) bool {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	f, ok := s.inflight[key]
	if !ok {
		return true
	}
	if f.cancelled {
		return false
	}
	f.cancel = cancel
	return true
}

func (s *Scheduler) wasCancelled(key flightKey) bool {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	f, ok := s.inflight[key]
	return ok && f.cancelled
}

// worker processes runs from the queue
func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case run, ok := <-s.jobs:
			if !ok {
				return
			}
			s.processRun(ctx, run, workerID)
		}
	}
}

// processRun executes one sync run end to end
func (s *Scheduler) processRun(ctx context.Context, run *sync.Run, workerID int) {
	key := flightKey{merchantID: run.MerchantID, kind: run.Kind}
	defer s.clearFlight(key)

	m, err := s.merchantRepo.FindByID(ctx, run.MerchantID)
	if err != nil {
		s.finishRun(ctx, run, nil, "merchant lookup failed: "+err.Error())
		return
	}
	settings, err := s.settingsRepo.FindByMerchant(ctx, m.ID)
	if err != nil {
		s.finishRun(ctx, run, m, "settings lookup failed: "+err.Error())
		return
	}
	source, err := s.sources.ForMerchant(m)
	if err != nil {
		s.finishRun(ctx, run, m, "platform client unavailable: "+err.Error())
		return
	}

	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, m.ID, run.Kind, run.ID, s.config.RunTimeout+time.Minute)
		if err != nil {
			s.finishRun(ctx, run, m, "sync lock unavailable: "+err.Error())
			return
		}
		if !acquired {
			run.Cancel()
			run.Error = "another instance is already syncing this merchant"
			if err := s.recorder.SaveRunWithEvents(ctx, run); err != nil {
				s.logger.Error("failed to record cancelled run", zap.Error(err))
			}
			return
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx), m.ID, run.Kind, run.ID); err != nil {
				s.logger.Warn("failed to release sync lock", zap.Error(err))
			}
		}()
	}

	run.Start()
	if err := s.runRepo.Update(ctx, run); err != nil {
		s.logger.Error("failed to mark run running", zap.Error(err))
	}

	s.logger.Info("processing sync run",
		zap.Int("worker_id", workerID),
		zap.String("run_id", run.ID.String()),
		zap.String("merchant_id", m.ID.String()),
		zap.String("kind", string(run.Kind)),
	)

	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	if !s.armFlight(key, cancel) {
		run.Cancel()
		run.Error = "cancelled before execution"
		if err := s.recorder.SaveRunWithEvents(ctx, run, sync.NewRunCompletedEvent(run)); err != nil {
			s.logger.Error("failed to record cancelled run", zap.Error(err))
		}
		return
	}

	var outcome reconcile.Outcome
	switch run.Kind {
	case sync.KindProducts:
		outcome = s.catalog.Reconcile(runCtx, m, settings, source, run.PageLimit)
	case sync.KindOrders:
		watermark, err := s.runRepo.LastWatermark(runCtx, m.ID, sync.KindOrders)
		if err != nil {
			s.finishRun(ctx, run, m, "watermark lookup failed: "+err.Error())
			return
		}
		outcome = s.orders.Reconcile(runCtx, m, settings, source, watermark, run.PageLimit)
	}

	for _, note := range outcome.Exceptions {
		run.AddException(note.Kind, note.ExternalID, note.Message)
	}

	switch {
	case outcome.Err == nil:
		run.Complete(outcome.Created, outcome.Updated, outcome.SoftDeleted, outcome.Pages, outcome.Watermark)
	case s.wasCancelled(key):
		// Cancelled runs keep the previous watermark regardless of progress
		run.Cancel()
		run.Error = outcome.Err.Error()
	case errors.Is(outcome.Err, context.DeadlineExceeded):
		// A timed-out run cannot trust its last page boundary
		run.Fail(outcome.Err.Error())
	case outcome.Pages > 0:
		run.CompletePartial(outcome.Created, outcome.Updated, outcome.Pages, outcome.Watermark, outcome.Err.Error())
	default:
		run.Fail(outcome.Err.Error())
	}

	events := []shared.DomainEvent{sync.NewRunCompletedEvent(run)}
	if run.Kind == sync.KindOrders && run.Status == sync.StatusSuccess && s.margins != nil {
		events = append(events, s.margins.AfterOrderSync(ctx, m, settings, run)...)
	}

	if err := s.recorder.SaveRunWithEvents(ctx, run, events...); err != nil {
		s.logger.Error("failed to record run outcome",
			zap.String("run_id", run.ID.String()),
			zap.Error(err),
		)
		return
	}

	s.logger.Info("sync run finished",
		zap.Int("worker_id", workerID),
		zap.String("run_id", run.ID.String()),
		zap.String("merchant_id", m.ID.String()),
		zap.String("kind", string(run.Kind)),
		zap.String("status", string(run.Status)),
		zap.Int("pages", run.Pages),
		zap.Int("created", run.Created),
		zap.Int("updated", run.Updated),
		zap.Int("soft_deleted", run.SoftDeleted),
		zap.Int("exceptions", len(run.Exceptions)),
	)
}

// finishRun fails a run for an infrastructure error that happened before
// the reconciler could start
func (s *Scheduler) finishRun(ctx context.Context, run *sync.Run, m *merchant.Merchant, message string) {
	run.Fail(message)
	if err := s.recorder.SaveRunWithEvents(ctx, run, sync.NewRunCompletedEvent(run)); err != nil {
		s.logger.Error("failed to record failed run",
			zap.String("run_id", run.ID.String()),
			zap.Error(err),
		)
	}
	fields := []zap.Field{
		zap.String("run_id", run.ID.String()),
		zap.String("error", message),
	}
	if m != nil {
		fields = append(fields, zap.String("merchant_id", m.ID.String()))
	}
	s.logger.Error("sync run failed before execution", fields...)
}
