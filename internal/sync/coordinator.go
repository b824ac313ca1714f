package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-sync/internal/model"
	"github.com/jwalitptl/clinic-sync/internal/repository"
	"github.com/jwalitptl/clinic-sync/pkg/clock"
	apperrors "github.com/jwalitptl/clinic-sync/pkg/errors"
	"github.com/jwalitptl/clinic-sync/pkg/logger"
	"github.com/jwalitptl/clinic-sync/pkg/metrics"
)

// CoordinatorConfig tunes batch sizes and pull pacing.
type CoordinatorConfig struct {
	BatchSize     int
	PullRateLimit rate.Limit
	PullBurst     int
}

func (c CoordinatorConfig) withDefaults() CoordinatorConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.PullRateLimit <= 0 {
		c.PullRateLimit = rate.Every(200 * time.Millisecond)
	}
	if c.PullBurst <= 0 {
		c.PullBurst = 1
	}
	return c
}

// Coordinator runs push-then-pull cycles per resource. Cycles for the same
// resource are serialized with a per-resource lock, so an interval tick and a
// manually triggered sync can never interleave their status transitions.
//
// Status ownership: the coordinator is the only writer of IN_FLIGHT and of
// the IN_FLIGHT to DONE transition. Local edits may flip any record back to
// PENDING at any time; the from-status guard on MarkStatus makes that edit
// win over a concurrent acknowledgment.
type Coordinator struct {
	api       API
	tokens    repository.TokenRepository
	resources []Resource
	cfg       CoordinatorConfig
	limiter   *rate.Limiter
	clock     clock.Clock
	metrics   *metrics.Metrics
	log       *logger.Logger

	mu    gosync.Mutex
	locks map[string]*gosync.Mutex
}

func NewCoordinator(api API, tokens repository.TokenRepository, resources []Resource, cfg CoordinatorConfig, clk clock.Clock, m *metrics.Metrics, log *logger.Logger) *Coordinator {
	cfg = cfg.withDefaults()
	return &Coordinator{
		api:       api,
		tokens:    tokens,
		resources: resources,
		cfg:       cfg,
		limiter:   rate.NewLimiter(cfg.PullRateLimit, cfg.PullBurst),
		clock:     clk,
		metrics:   m,
		log:       log.WithComponent("sync"),
		locks:     make(map[string]*gosync.Mutex),
	}
}

// Resources returns the resources in the given sync group, or all resources
// when group is empty.
func (c *Coordinator) Resources(group model.SyncGroup) []Resource {
	if group == "" {
		return c.resources
	}
	var out []Resource
	for _, r := range c.resources {
		if r.SyncGroup() == group {
			out = append(out, r)
		}
	}
	return out
}

// SyncGroup pushes then pulls every resource in the group. Each resource
// fails or succeeds independently; the first error is returned after all
// resources have been attempted.
func (c *Coordinator) SyncGroup(ctx context.Context, group model.SyncGroup) error {
	var firstErr error
	for _, r := range c.Resources(group) {
		if err := c.Sync(ctx, r); err != nil {
			c.log.Error().Err(err).Str("resource", r.Name()).Msg("sync cycle failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Sync runs one push-then-pull cycle for a single resource.
func (c *Coordinator) Sync(ctx context.Context, r Resource) error {
	lock := c.resourceLock(r.Name())
	lock.Lock()
	defer lock.Unlock()

	if err := c.push(ctx, r); err != nil {
		c.metrics.SyncFailures.WithLabelValues(r.Name(), "push").Inc()
		return fmt.Errorf("failed to push %s: %w", r.Name(), err)
	}
	if err := c.pull(ctx, r); err != nil {
		c.metrics.SyncFailures.WithLabelValues(r.Name(), "pull").Inc()
		return fmt.Errorf("failed to pull %s: %w", r.Name(), err)
	}
	return nil
}

func (c *Coordinator) resourceLock(name string) *gosync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[name]
	if !ok {
		lock = &gosync.Mutex{}
		c.locks[name] = lock
	}
	return lock
}

// push uploads PENDING records in batches until a batch comes back short or
// a push acknowledges nothing. Batches are marked IN_FLIGHT before the
// network call; on success only records still IN_FLIGHT become DONE, so a
// record edited mid-flight stays PENDING and is re-uploaded next cycle. On
// any failure the whole batch is reverted to PENDING.
func (c *Coordinator) push(ctx context.Context, r Resource) error {
	for {
		ids, payloads, err := r.Pending(ctx, c.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to load pending batch: %w", err)
		}
		if len(ids) == 0 {
			c.metrics.PendingRecords.WithLabelValues(r.Name()).Set(0)
			return nil
		}

		if _, err := r.MarkStatus(ctx, ids, model.SyncStatusPending, model.SyncStatusInFlight); err != nil {
			return fmt.Errorf("failed to mark batch in flight: %w", err)
		}

		start := c.clock.Now()
		resp, err := c.api.Push(ctx, r.Name(), payloads)
		c.metrics.PushLatency.WithLabelValues(r.Name()).Observe(c.clock.Now().Sub(start).Seconds())
		if err != nil {
			if _, revertErr := r.MarkStatus(ctx, ids, model.SyncStatusInFlight, model.SyncStatusPending); revertErr != nil {
				c.log.Error().Err(revertErr).Str("resource", r.Name()).Msg("failed to revert batch after push failure")
			}
			return err
		}

		accepted := c.settle(ctx, r, ids, resp.Rejected)
		c.metrics.RecordsPushed.WithLabelValues(r.Name()).Add(float64(accepted))

		// A full batch with nothing acknowledged would be re-fetched
		// unchanged; leave those rows for the next cycle.
		if accepted == 0 || len(ids) < c.cfg.BatchSize {
			return nil
		}
	}
}

// settle acknowledges accepted records and returns rejected ones to PENDING.
// Returns the number of records acknowledged.
func (c *Coordinator) settle(ctx context.Context, r Resource, pushed []uuid.UUID, rejected []RejectedRecord) int64 {
	rejectedSet := make(map[uuid.UUID]struct{}, len(rejected))
	for _, rej := range rejected {
		rejectedSet[rej.ID] = struct{}{}
		c.log.Warn().
			Str("resource", r.Name()).
			Str("id", rej.ID.String()).
			Str("reason", rej.Reason).
			Msg("server rejected record")
	}
	c.metrics.PushRejections.WithLabelValues(r.Name()).Add(float64(len(rejected)))

	accepted := make([]uuid.UUID, 0, len(pushed))
	var retry []uuid.UUID
	for _, id := range pushed {
		if _, ok := rejectedSet[id]; ok {
			retry = append(retry, id)
			continue
		}
		accepted = append(accepted, id)
	}

	var done int64
	if len(accepted) > 0 {
		n, err := r.MarkStatus(ctx, accepted, model.SyncStatusInFlight, model.SyncStatusDone)
		if err != nil {
			c.log.Error().Err(err).Str("resource", r.Name()).Msg("failed to acknowledge pushed records")
		}
		done = n
	}
	if len(retry) > 0 {
		if _, err := r.MarkStatus(ctx, retry, model.SyncStatusInFlight, model.SyncStatusPending); err != nil {
			c.log.Error().Err(err).Str("resource", r.Name()).Msg("failed to requeue rejected records")
		}
	}
	return done
}

// pull requests pages from the last persisted token, applies each page, and
// only then persists the page's token. A crash between apply and persist
// replays the page; the merge upsert is idempotent so replays are harmless.
// A page that fails to apply aborts the cycle without advancing the token.
func (c *Coordinator) pull(ctx context.Context, r Resource) error {
	token, err := c.tokens.Get(ctx, r.Name())
	if err != nil {
		return fmt.Errorf("failed to load pull token: %w", err)
	}

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		start := c.clock.Now()
		page, err := c.api.Pull(ctx, r.Name(), token, c.cfg.BatchSize)
		if err != nil {
			return err
		}

		applied, err := r.ApplyPage(ctx, page.Records)
		c.metrics.PullLatency.WithLabelValues(r.Name()).Observe(c.clock.Now().Sub(start).Seconds())
		if err != nil {
			return apperrors.NewPullApply(r.Name(), err)
		}
		c.metrics.RecordsPulled.WithLabelValues(r.Name()).Add(float64(applied))

		if err := c.tokens.Set(ctx, r.Name(), page.Token, c.clock.Now()); err != nil {
			return fmt.Errorf("failed to persist pull token: %w", err)
		}
		token = page.Token

		if !page.More {
			return nil
		}
	}
}
