package jobs_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convenios/internal/convenios/application"
	"convenios/internal/convenios/jobs"
)

type fakeService struct {
	sweeps     atomic.Int32
	reconciles atomic.Int32
	sweepErr   error
}

func (f *fakeService) DesactivarConveniosVencidos(ctx context.Context) (application.ResultadoBarrido, error) {
	f.sweeps.Add(1)
	return application.ResultadoBarrido{Total: 2, Revisados: 5}, f.sweepErr
}

func (f *fakeService) RecalcularTodos(ctx context.Context) (*application.ReporteReconciliacion, error) {
	f.reconciles.Add(1)
	return &application.ReporteReconciliacion{Procesados: 3, Corregidos: 1}, nil
}

func TestNewScheduler_RegistersConfiguredJobs(t *testing.T) {
	svc := &fakeService{}

	s, err := jobs.NewScheduler(svc, jobs.Config{SweepSchedule: "0 5 0 * * *"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Jobs(), "empty reconcile schedule stays unscheduled")

	s, err = jobs.NewScheduler(svc, jobs.Config{SweepSchedule: "0 5 0 * * *", ReconcileSchedule: "0 0 3 * * *"})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Jobs())
}

func TestNewScheduler_RejectsInvalidExpression(t *testing.T) {
	_, err := jobs.NewScheduler(&fakeService{}, jobs.Config{SweepSchedule: "not a cron"})
	assert.Error(t, err)
}

func TestScheduler_RunsJobs(t *testing.T) {
	svc := &fakeService{}
	s, err := jobs.NewScheduler(svc, jobs.Config{SweepSchedule: "@every 1s"})
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return svc.sweeps.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	assert.Zero(t, svc.reconciles.Load())
}

func TestRunner(t *testing.T) {
	t.Run("sweep returns the service result", func(t *testing.T) {
		svc := &fakeService{}
		result, err := jobs.NewRunner(svc, time.Second).RunSweep(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, result.Total)
	})

	t.Run("sweep propagates failures", func(t *testing.T) {
		svc := &fakeService{sweepErr: errors.New("db down")}
		_, err := jobs.NewRunner(svc, 0).RunSweep(context.Background())
		assert.EqualError(t, err, "db down")
	})

	t.Run("reconcile returns the report", func(t *testing.T) {
		svc := &fakeService{}
		report, err := jobs.NewRunner(svc, 0).RunReconcile(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Corregidos)
		assert.Equal(t, int32(1), svc.reconciles.Load())
	})
}
