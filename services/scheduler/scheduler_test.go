package schedsvc

import (
	"context"
	"io/ioutil"
	"log"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	logsvc "github.com/trezcool/academia/services/logger"
)

type overdueMarkerMock struct {
	asOf  time.Time
	count int64
	err   error
}

func (m *overdueMarkerMock) MarkOverdue(_ context.Context, asOf time.Time) (int64, error) {
	m.asOf = asOf
	return m.count, m.err
}

func newTestScheduler(t *testing.T, schedule string, fees OverdueMarker) (*Scheduler, error) {
	t.Helper()
	conf := &core.Config{TestMode: true, Scheduler: core.SchedulerConfig{FeeOverdueSchedule: schedule}}
	logger := logsvc.NewRollbarLogger(log.New(ioutil.Discard, "JOB : ", 0), conf)
	return NewScheduler(conf, logger, fees)
}

func TestNewScheduler(t *testing.T) {
	_, err := newTestScheduler(t, "@daily", &overdueMarkerMock{})
	assert.NoError(t, err)

	_, err = newTestScheduler(t, "every now and then", &overdueMarkerMock{})
	assert.Error(t, err)
}

func TestScheduler_MarkOverdueFees(t *testing.T) {
	now := time.Date(2024, time.May, 11, 0, 0, 0, 0, time.UTC)

	t.Run("marked", func(t *testing.T) {
		fees := &overdueMarkerMock{count: 3}
		s, err := newTestScheduler(t, "@daily", fees)
		require.NoError(t, err)
		s.now = func() time.Time { return now }

		n, err := s.MarkOverdueFees(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
		assert.Equal(t, now, fees.asOf)
	})

	t.Run("error", func(t *testing.T) {
		fees := &overdueMarkerMock{err: errors.New("connection refused")}
		s, err := newTestScheduler(t, "@daily", fees)
		require.NoError(t, err)

		n, err := s.MarkOverdueFees(context.Background())
		assert.Error(t, err)
		assert.Zero(t, n)
	})
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := newTestScheduler(t, "@daily", &overdueMarkerMock{})
	require.NoError(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
