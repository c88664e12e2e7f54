// Package scheduler runs the reconciliation jobs on cron schedules. Each run holds a redis lock so that only one
// instance of the service executes a given job at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"roomkey/config"
	"roomkey/internal/domains/reconciliation/model/dto"
	"roomkey/internal/domains/reconciliation/service"
	"roomkey/shared/cache"
	"roomkey/shared/failure"
	"roomkey/shared/timezone"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const lockKeyPrefix = "reconciliation:lock:"

var ErrJobRunning = failure.Conflict("job is already running")

type job func(ctx context.Context) (dto.JobResult, error)

type Scheduler struct {
	cron  *cron.Cron
	cache cache.RedisCache
	cfg   *config.Config
	jobs  map[string]job
	specs map[string]string
}

func New(reconciler service.Reconciler, cache cache.RedisCache, cfg *config.Config) *Scheduler {
	logger := cronLogger{}

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(timezone.GetLocation()),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		cache: cache,
		cfg:   cfg,
		jobs: map[string]job{
			dto.JobExpireCredentials: reconciler.ExpireCredentials,
			dto.JobPurgeOldRecords:   reconciler.PurgeOldRecords,
			dto.JobResyncFuture:      reconciler.ResyncFuture,
			dto.JobLockHealth:        reconciler.CheckLockHealth,
		},
		specs: map[string]string{
			dto.JobExpireCredentials: cfg.Reconciliation.ExpireSpec,
			dto.JobPurgeOldRecords:   cfg.Reconciliation.PurgeSpec,
			dto.JobResyncFuture:      cfg.Reconciliation.ResyncSpec,
			dto.JobLockHealth:        cfg.Reconciliation.LockHealthSpec,
		},
	}
}

// Location is the zone schedules are read in.
func (s *Scheduler) Location() *time.Location {
	return s.cron.Location()
}

// Start registers every job with a non-empty spec. It does nothing when reconciliation is disabled.
func (s *Scheduler) Start() error {
	if !s.cfg.Reconciliation.Enable {
		log.Warn().Msg("Reconciliation scheduler disabled")

		return nil
	}

	for _, name := range dto.Jobs {
		spec := s.specs[name]
		if spec == "" {
			log.Info().Str("job", name).Msg("No schedule configured, job only runs on demand")

			continue
		}

		if _, err := s.cron.AddFunc(spec, func() { s.runScheduled(name) }); err != nil {
			return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
		}

		log.Info().Str("job", name).Str("spec", spec).Msg("Reconciliation job scheduled")
	}

	s.cron.Start()

	return nil
}

// Stop waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	stopped := s.cron.Stop()

	select {
	case <-stopped.Done():
		log.Info().Msg("Reconciliation scheduler stopped")
	case <-ctx.Done():
		log.Warn().Msg("Reconciliation scheduler stopped before running jobs finished")
	}
}

func (s *Scheduler) runScheduled(name string) {
	res, err := s.Run(context.Background(), name)

	switch {
	case errors.Is(err, ErrJobRunning):
		log.Info().Str("job", name).Msg("Job held by another instance, skipping")
	case err != nil:
		log.Error().Err(err).Str("job", name).Msg("Reconciliation job failed")
	default:
		log.Debug().Str("job", name).Int("scanned", res.Scanned).Msg("Reconciliation job done")
	}
}

// Run executes one job now under the job lock. ErrJobRunning is returned when another run holds the lock.
func (s *Scheduler) Run(ctx context.Context, name string) (dto.JobResult, error) {
	run, ok := s.jobs[name]
	if !ok {
		return dto.JobResult{}, failure.NotFound(fmt.Sprintf("unknown job %s", name))
	}

	lease := time.Duration(s.cfg.Reconciliation.JobLockSeconds) * time.Second
	key := lockKeyPrefix + name
	owner := uuid.NewString()

	acquired, err := s.cache.Lock(ctx, key, owner, s.cfg.Reconciliation.JobLockSeconds)
	if err != nil {
		return dto.JobResult{}, fmt.Errorf("failed to acquire job lock: %w", err)
	}

	if !acquired {
		return dto.JobResult{}, ErrJobRunning
	}

	defer func() {
		if err := s.cache.Unlock(context.WithoutCancel(ctx), key, owner); err != nil {
			log.Error().Err(err).Str("job", name).Msg("failed to release job lock")
		}
	}()

	// A run never outlives its lock.
	runCtx, cancel := context.WithTimeout(ctx, lease)
	defer cancel()

	return run(runCtx)
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
