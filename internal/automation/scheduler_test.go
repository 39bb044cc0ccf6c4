package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAFERMOON/SAFERWINNING/internal/contest"
	"github.com/SAFERMOON/SAFERWINNING/internal/logging"
)

type stubTrigger struct {
	mu     sync.Mutex
	err    error
	calls  int
	caller contest.ParticipantID
	seeds  [][]byte
}

func (s *stubTrigger) PickWinner(ctx context.Context, caller contest.ParticipantID, seed []byte) (contest.DrawRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.caller = caller
	s.seeds = append(s.seeds, seed)
	if s.err != nil {
		return contest.DrawRequest{}, s.err
	}
	return contest.DrawRequest{ID: "req-1", Status: contest.DrawStatusPending}, nil
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New("not a schedule", "owner", &stubTrigger{}, logging.NewNop())
	assert.Error(t, err)

	_, err = New("@hourly", "owner", nil, nil)
	assert.Error(t, err)
}

func TestTriggerUsesOwnerAndTimeSeed(t *testing.T) {
	trigger := &stubTrigger{}
	s, err := New("@hourly", "owner", trigger, logging.NewNop())
	require.NoError(t, err)
	s.now = func() time.Time { return time.Unix(0, 42) }

	require.NoError(t, s.Trigger(context.Background()))
	assert.Equal(t, contest.ParticipantID("owner"), trigger.caller)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 42}, trigger.seeds[0])
}

func TestTriggerSkipsExpectedStates(t *testing.T) {
	for _, skip := range []error{contest.ErrNoEntries, contest.ErrDrawInProgress, contest.ErrContestClosed} {
		s, err := New("@hourly", "owner", &stubTrigger{err: skip}, logging.NewNop())
		require.NoError(t, err)
		assert.NoError(t, s.Trigger(context.Background()))
	}
}

func TestTriggerReportsFailures(t *testing.T) {
	s, err := New("@hourly", "owner", &stubTrigger{err: contest.ErrInsufficientFunding}, logging.NewNop())
	require.NoError(t, err)
	err = s.Trigger(context.Background())
	assert.True(t, errors.Is(err, contest.ErrInsufficientFunding))
}

func TestStartStop(t *testing.T) {
	s, err := New("@every 10ms", "owner", &stubTrigger{}, logging.NewNop())
	require.NoError(t, err)
	s.Start()
	time.Sleep(50 * time.Millisecond)
	s.Stop()
}
