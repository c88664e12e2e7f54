package scheduler_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"roomkey/config"
	"roomkey/internal/domains/reconciliation/mocks"
	"roomkey/internal/domains/reconciliation/model/dto"
	"roomkey/internal/domains/reconciliation/scheduler"
	cacheMocks "roomkey/shared/cache/mocks"
	"roomkey/shared/failure"
	"roomkey/shared/timezone"
)

func setup(t *testing.T) (*mocks.MockReconciler, *cacheMocks.MockRedisCache, *config.Config) {
	t.Helper()

	ctrl := gomock.NewController(t)

	cfg := &config.Config{}
	cfg.Reconciliation.Enable = true
	cfg.Reconciliation.JobLockSeconds = 60

	return mocks.NewMockReconciler(ctrl), cacheMocks.NewMockRedisCache(ctrl), cfg
}

func TestScheduler_Run(t *testing.T) {
	t.Run("runs the job under its lock", func(t *testing.T) {
		reconciler, cache, cfg := setup(t)
		s := scheduler.New(reconciler, cache, cfg)

		var owner string

		cache.EXPECT().Lock(gomock.Any(), "reconciliation:lock:expire-credentials", gomock.Any(), 60).
			DoAndReturn(func(_ context.Context, _, o string, _ int) (bool, error) {
				owner = o

				return true, nil
			})
		reconciler.EXPECT().ExpireCredentials(gomock.Any()).
			DoAndReturn(func(ctx context.Context) (dto.JobResult, error) {
				deadline, ok := ctx.Deadline()
				assert.True(t, ok)
				assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)

				return dto.JobResult{Job: dto.JobExpireCredentials, Scanned: 4, Succeeded: 4}, nil
			})
		cache.EXPECT().Unlock(gomock.Any(), "reconciliation:lock:expire-credentials", gomock.Any()).
			DoAndReturn(func(_ context.Context, _, o string) error {
				assert.Equal(t, owner, o)

				return nil
			})

		res, err := s.Run(context.Background(), dto.JobExpireCredentials)

		require.NoError(t, err)
		assert.Equal(t, 4, res.Succeeded)
	})

	t.Run("lock held elsewhere", func(t *testing.T) {
		reconciler, cache, cfg := setup(t)
		s := scheduler.New(reconciler, cache, cfg)

		cache.EXPECT().Lock(gomock.Any(), "reconciliation:lock:purge-old-records", gomock.Any(), 60).Return(false, nil)

		_, err := s.Run(context.Background(), dto.JobPurgeOldRecords)

		require.ErrorIs(t, err, scheduler.ErrJobRunning)
		assert.Equal(t, http.StatusConflict, failure.GetCode(err))
	})

	t.Run("lock error", func(t *testing.T) {
		reconciler, cache, cfg := setup(t)
		s := scheduler.New(reconciler, cache, cfg)

		cache.EXPECT().Lock(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(false, errors.New("redis down"))

		_, err := s.Run(context.Background(), dto.JobResyncFuture)

		require.Error(t, err)
		assert.NotErrorIs(t, err, scheduler.ErrJobRunning)
	})

	t.Run("job error still releases the lock", func(t *testing.T) {
		reconciler, cache, cfg := setup(t)
		s := scheduler.New(reconciler, cache, cfg)

		cache.EXPECT().Lock(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
		reconciler.EXPECT().CheckLockHealth(gomock.Any()).Return(dto.JobResult{}, errors.New("gateway down"))
		cache.EXPECT().Unlock(gomock.Any(), "reconciliation:lock:lock-health", gomock.Any()).Return(nil)

		_, err := s.Run(context.Background(), dto.JobLockHealth)

		require.EqualError(t, err, "gateway down")
	})

	t.Run("unknown job", func(t *testing.T) {
		reconciler, cache, cfg := setup(t)
		s := scheduler.New(reconciler, cache, cfg)

		_, err := s.Run(context.Background(), "vacuum")

		assert.Equal(t, http.StatusNotFound, failure.GetCode(err))
	})
}

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name    string
		enable  bool
		spec    string
		wantErr bool
	}{
		{name: "disabled ignores schedules", enable: false, spec: "not a schedule"},
		{name: "valid schedule", enable: true, spec: "@hourly"},
		{name: "empty schedule runs on demand only", enable: true, spec: ""},
		{name: "invalid schedule", enable: true, spec: "every tuesday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reconciler, cache, cfg := setup(t)
			cfg.Reconciliation.Enable = tt.enable
			cfg.Reconciliation.ExpireSpec = tt.spec
			cfg.Reconciliation.PurgeSpec = "0 3 * * *"

			s := scheduler.New(reconciler, cache, cfg)

			err := s.Start()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), dto.JobExpireCredentials)

				return
			}

			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			s.Stop(ctx)
		})
	}
}

func TestScheduler_SchedulesInStudioZone(t *testing.T) {
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)

	previous := timezone.GetLocation()
	timezone.SetLocation(jakarta)
	t.Cleanup(func() { timezone.SetLocation(previous) })

	reconciler, cache, cfg := setup(t)
	s := scheduler.New(reconciler, cache, cfg)

	assert.Equal(t, jakarta, s.Location())
}
