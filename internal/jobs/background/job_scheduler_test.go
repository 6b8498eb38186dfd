package background

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magicbag/internal/services"
)

type countingPoller struct {
	calls atomic.Int32
	err   error
}

func (p *countingPoller) PollOnce(ctx context.Context) (*services.PollReport, error) {
	n := p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return &services.PollReport{Locations: int(n)}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJobScheduler_RunsImmediatelyAndOnDemand(t *testing.T) {
	poller := &countingPoller{}
	js, err := NewJobScheduler(poller, time.Hour, quietLogger())
	require.NoError(t, err)

	js.Start()
	defer func() { assert.NoError(t, js.Stop()) }()

	require.Eventually(t, func() bool { return js.Status().Runs == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, js.RunNow())
	require.Eventually(t, func() bool { return js.Status().Runs == 2 }, 5*time.Second, 10*time.Millisecond)

	status := js.Status()
	assert.Equal(t, "marketplace-poll", status.Name)
	assert.Equal(t, "1h0m0s", status.Interval)
	require.NotNil(t, status.LastReport)
	assert.Equal(t, 2, status.LastReport.Locations)
	assert.Empty(t, status.LastError)
}

func TestJobScheduler_RecordsFailure(t *testing.T) {
	poller := &countingPoller{err: errors.New("db down")}
	js, err := NewJobScheduler(poller, time.Hour, quietLogger())
	require.NoError(t, err)

	js.Start()
	defer func() { assert.NoError(t, js.Stop()) }()

	require.Eventually(t, func() bool { return js.Status().Runs == 1 }, 5*time.Second, 10*time.Millisecond)
	status := js.Status()
	assert.Equal(t, "db down", status.LastError)
	assert.Nil(t, status.LastReport)
}

func TestNewJobScheduler_RejectsNonPositiveInterval(t *testing.T) {
	_, err := NewJobScheduler(&countingPoller{}, 0, quietLogger())
	assert.Error(t, err)
}
