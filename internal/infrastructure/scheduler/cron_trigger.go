package scheduler

import (
	"context"
	"errors"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/shopmargin/backend/internal/domain/merchant"
	"github.com/shopmargin/backend/internal/domain/sync"
)

// cronParser accepts the standard five-field form, descriptors like
// @hourly, and an optional leading seconds field
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// CronTriggerConfig holds configuration for the cron trigger
type CronTriggerConfig struct {
	// CheckInterval is how often due schedules are evaluated
	CheckInterval time.Duration
	// RefreshInterval is how often merchant schedules are reloaded
	RefreshInterval time.Duration
}

// DefaultCronTriggerConfig returns default configuration
func DefaultCronTriggerConfig() CronTriggerConfig {
	return CronTriggerConfig{
		CheckInterval:   30 * time.Second,
		RefreshInterval: 5 * time.Minute,
	}
}

// scheduleEntry is one merchant/kind cron schedule with its next firing
type scheduleEntry struct {
	merchantID uuid.UUID
	shopDomain string
	kind       sync.Kind
	schedule   cron.Schedule
	next       time.Time
}

// CronTrigger fires scheduled syncs. Each merchant's settings carry cron
// expressions per sync kind, five-field or six-field with a leading
// seconds column; the trigger reloads them periodically so edits take
// effect without a restart. Firings go through the scheduler's normal
// intake, so a cron firing that overlaps a manual run coalesces instead
// of stacking.
type CronTrigger struct {
	config       CronTriggerConfig
	scheduler    *Scheduler
	merchantRepo merchant.Repository
	settingsRepo merchant.SettingsRepository
	logger       *zap.Logger

	cancel    context.CancelFunc
	wg        stdsync.WaitGroup
	mu        stdsync.Mutex
	isRunning bool

	entriesMu stdsync.Mutex
	entries   []*scheduleEntry
}

// NewCronTrigger creates a cron trigger
func NewCronTrigger(
	config CronTriggerConfig,
	scheduler *Scheduler,
	merchantRepo merchant.Repository,
	settingsRepo merchant.SettingsRepository,
	logger *zap.Logger,
) *CronTrigger {
	return &CronTrigger{
		config:       config,
		scheduler:    scheduler,
		merchantRepo: merchantRepo,
		settingsRepo: settingsRepo,
		logger:       logger,
	}
}

// Start starts the trigger loop
func (c *CronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if err := c.refresh(ctx); err != nil {
		c.logger.Warn("initial schedule load failed, will retry", zap.Error(err))
	}

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("sync cron trigger started",
		zap.Duration("check_interval", c.config.CheckInterval),
		zap.Duration("refresh_interval", c.config.RefreshInterval),
	)
	return nil
}

// Stop stops the trigger loop
func (c *CronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("sync cron trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CronTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	check := time.NewTicker(c.config.CheckInterval)
	defer check.Stop()
	refresh := time.NewTicker(c.config.RefreshInterval)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-refresh.C:
			if err := c.refresh(ctx); err != nil {
				c.logger.Error("failed to refresh schedules", zap.Error(err))
			}
		case <-check.C:
			c.fireDue(ctx)
		}
	}
}

// refresh rebuilds the schedule table from merchant settings. Next firing
// times carry over for unchanged schedules so a reload never causes an
// immediate spurious firing.
func (c *CronTrigger) refresh(ctx context.Context) error {
	merchants, err := c.merchantRepo.FindAllActive(ctx)
	if err != nil {
		return err
	}

	previous := make(map[flightKey]time.Time)
	c.entriesMu.Lock()
	for _, e := range c.entries {
		previous[flightKey{merchantID: e.merchantID, kind: e.kind}] = e.next
	}
	c.entriesMu.Unlock()

	now := time.Now()
	entries := make([]*scheduleEntry, 0, 2*len(merchants))
	for i := range merchants {
		m := &merchants[i]
		settings, err := c.settingsRepo.FindByMerchant(ctx, m.ID)
		if err != nil {
			c.logger.Warn("skipping merchant without readable settings",
				zap.String("merchant_id", m.ID.String()),
				zap.Error(err),
			)
			continue
		}

		for kind, spec := range map[sync.Kind]string{
			sync.KindProducts: settings.ProductsSyncCron,
			sync.KindOrders:   settings.OrdersSyncCron,
		} {
			if spec == "" {
				continue
			}
			schedule, err := cronParser.Parse(spec)
			if err != nil {
				c.logger.Warn("invalid cron expression",
					zap.String("merchant_id", m.ID.String()),
					zap.String("kind", string(kind)),
					zap.String("spec", spec),
					zap.Error(err),
				)
				continue
			}

			entry := &scheduleEntry{
				merchantID: m.ID,
				shopDomain: m.ShopDomain,
				kind:       kind,
				schedule:   schedule,
				next:       schedule.Next(now),
			}
			if prev, ok := previous[flightKey{merchantID: m.ID, kind: kind}]; ok && prev.After(now) {
				entry.next = prev
			}
			entries = append(entries, entry)
		}
	}

	c.entriesMu.Lock()
	c.entries = entries
	c.entriesMu.Unlock()

	c.logger.Debug("schedules refreshed", zap.Int("entries", len(entries)))
	return nil
}

// fireDue requests a sync for every schedule whose time has come
func (c *CronTrigger) fireDue(ctx context.Context) {
	now := time.Now()

	c.entriesMu.Lock()
	due := make([]*scheduleEntry, 0)
	for _, e := range c.entries {
		if !e.next.After(now) {
			due = append(due, e)
			e.next = e.schedule.Next(now)
		}
	}
	c.entriesMu.Unlock()

	for _, e := range due {
		result, err := c.scheduler.Request(ctx, e.merchantID, e.kind, sync.TriggerCron, 0)
		if err != nil {
			if errors.Is(err, ErrQueueFull) || errors.Is(err, ErrSchedulerNotRunning) {
				c.logger.Warn("cron sync not queued",
					zap.String("shop_domain", e.shopDomain),
					zap.String("kind", string(e.kind)),
					zap.Error(err),
				)
				continue
			}
			c.logger.Error("cron sync request failed",
				zap.String("shop_domain", e.shopDomain),
				zap.String("kind", string(e.kind)),
				zap.Error(err),
			)
			continue
		}
		if result.Coalesced {
			c.logger.Debug("cron firing coalesced into in-flight run",
				zap.String("shop_domain", e.shopDomain),
				zap.String("kind", string(e.kind)),
				zap.String("run_id", result.Run.ID.String()),
			)
		}
	}
}
