package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/specdriver/logging"
)

// countingJob counts its runs.
type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

func TestNewTrigger(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{name: "daily at 2am", spec: "0 2 * * *"},
		{name: "every hour", spec: "0 * * * *"},
		{name: "every minute", spec: "* * * * *"},
		{name: "empty", spec: "", wantErr: true},
		{name: "wrong format", spec: "not a cron spec", wantErr: true},
		{name: "too few fields", spec: "0 2 *", wantErr: true},
		{name: "invalid value", spec: "60 2 * * *", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, err := NewTrigger(tt.spec, &countingJob{}, logging.Discard())
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidCronSpec)
				assert.Nil(t, trigger)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.spec, trigger.spec)
		})
	}
}

func TestTrigger_NextRun(t *testing.T) {
	trigger, err := NewTrigger("0 2 * * *", &countingJob{}, logging.Discard())
	require.NoError(t, err)
	trigger.now = func() time.Time { return time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC) }

	assert.True(t, time.Date(2024, 5, 2, 2, 0, 0, 0, time.UTC).Equal(trigger.NextRun()))
}

func TestTrigger_CancellationStopsLoop(t *testing.T) {
	job := &countingJob{}
	trigger, err := NewTrigger("0 2 1 1 *", job, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	trigger.Start(ctx)
	time.Sleep(10 * time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, int32(0), job.runs.Load())
}

func TestJobFunc(t *testing.T) {
	called := false
	var job Job = JobFunc(func() error {
		called = true
		return nil
	})

	require.NoError(t, job.Run())
	assert.True(t, called)
}
