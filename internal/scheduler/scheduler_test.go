package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd_RejectsBadJobs(t *testing.T) {
	s := New(zerolog.Nop())
	assert.Error(t, s.Add(Job{Name: "nil", Schedule: "@every 1s"}))
	assert.Error(t, s.Add(Job{Name: "bad", Schedule: "not a schedule", Run: func(context.Context) error { return nil }}))
	require.NoError(t, s.Add(Job{Name: "ok", Schedule: "@every 1m", Run: func(context.Context) error { return nil }}))
	assert.Equal(t, 1, s.Entries())
}

func TestRunOnce_ContinuesAfterFailure(t *testing.T) {
	s := New(zerolog.Nop())
	var calls int32
	job := Job{Name: "flaky", Timeout: time.Second, Run: func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return errors.New("boom")
	}}
	s.runOnce(job)
	s.runOnce(job)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestStop_CancelsJobContext(t *testing.T) {
	s := New(zerolog.Nop())
	s.Start()
	s.Stop()
	assert.Error(t, s.ctx.Err())
}
