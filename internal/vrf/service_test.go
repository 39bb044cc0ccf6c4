package vrf

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAFERMOON/SAFERWINNING/internal/contest"
	"github.com/SAFERMOON/SAFERWINNING/internal/logging"
)

type delivery struct {
	requestID string
	value     *uint256.Int
}

type recordingFulfiller struct {
	ch  chan delivery
	err error
}

func (f *recordingFulfiller) FulfillRandomness(ctx context.Context, requestID string, value *uint256.Int) error {
	f.ch <- delivery{requestID: requestID, value: value}
	return f.err
}

func newTestService(t *testing.T, secret string) *Service {
	t.Helper()
	svc, err := New(Config{SigningSecret: []byte(secret), Logger: logging.NewNop()})
	require.NoError(t, err)
	return svc
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRequestRequiresFunding(t *testing.T) {
	svc := newTestService(t, "secret")
	ctx := context.Background()
	svc.Register("contest", &recordingFulfiller{ch: make(chan delivery, 1)})

	_, err := svc.RequestRandomness(ctx, "contest", []byte("seed"), 10)
	assert.True(t, errors.Is(err, ErrInsufficientFunds))

	_, err = svc.RequestRandomness(ctx, "stranger", []byte("seed"), 0)
	assert.True(t, errors.Is(err, ErrUnknownConsumer))

	_, err = svc.Fund(ctx, "contest", 0)
	assert.Error(t, err)
}

func TestReservationHeldUntilFulfilled(t *testing.T) {
	svc := newTestService(t, "secret")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &recordingFulfiller{ch: make(chan delivery, 1)}
	svc.Register("contest", f)
	_, err := svc.Fund(ctx, "contest", 25)
	require.NoError(t, err)

	id, err := svc.RequestRandomness(ctx, "contest", []byte("seed"), 10)
	require.NoError(t, err)

	bal, _ := svc.Balance(ctx, "contest")
	assert.Equal(t, int64(15), bal)

	svc.Start(ctx)
	defer svc.Stop()

	select {
	case d := <-f.ch:
		assert.Equal(t, id, d.requestID)
		require.NotNil(t, d.value)
	case <-time.After(2 * time.Second):
		t.Fatal("no fulfillment delivered")
	}

	waitFor(t, func() bool {
		req, _ := svc.GetRequest(ctx, id)
		return req.Status == StatusFulfilled
	})
	bal, _ = svc.Balance(ctx, "contest")
	assert.Equal(t, int64(15), bal)
}

func TestFulfilledOutputVerifies(t *testing.T) {
	svc := newTestService(t, "secret")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &recordingFulfiller{ch: make(chan delivery, 1)}
	svc.Register("contest", f)
	_, _ = svc.Fund(ctx, "contest", 10)
	id, err := svc.RequestRandomness(ctx, "contest", []byte("seed"), 1)
	require.NoError(t, err)

	svc.Start(ctx)
	defer svc.Stop()
	d := <-f.ch

	waitFor(t, func() bool {
		req, _ := svc.GetRequest(ctx, id)
		return req.Status == StatusFulfilled
	})
	req, err := svc.GetRequest(ctx, id)
	require.NoError(t, err)

	proof, err := hex.DecodeString(req.Proof)
	require.NoError(t, err)
	output, err := hex.DecodeString(req.Output)
	require.NoError(t, err)
	pub, err := svc.PublicKey()
	require.NoError(t, err)

	assert.True(t, Verify(pub, requestInput(id, []byte("seed")), proof, output))
	assert.False(t, Verify(pub, requestInput(id, []byte("other")), proof, output))
	assert.Equal(t, new(uint256.Int).SetBytes(output), d.value)
}

func TestConsumerErrorStillConsumesFee(t *testing.T) {
	svc := newTestService(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &recordingFulfiller{ch: make(chan delivery, 1), err: errors.New("rejected")}
	svc.Register("contest", f)
	_, _ = svc.Fund(ctx, "contest", 10)
	id, err := svc.RequestRandomness(ctx, "contest", nil, 4)
	require.NoError(t, err)

	svc.Start(ctx)
	defer svc.Stop()
	<-f.ch

	waitFor(t, func() bool {
		req, _ := svc.GetRequest(ctx, id)
		return req.Status == StatusFailed
	})
	bal, _ := svc.Balance(ctx, "contest")
	assert.Equal(t, int64(6), bal)
}

func TestQueueFullReleasesReservation(t *testing.T) {
	svc, err := New(Config{QueueSize: 1})
	require.NoError(t, err)
	ctx := context.Background()
	svc.Register("contest", &recordingFulfiller{ch: make(chan delivery, 2)})
	_, _ = svc.Fund(ctx, "contest", 10)

	_, err = svc.RequestRandomness(ctx, "contest", nil, 3)
	require.NoError(t, err)
	_, err = svc.RequestRandomness(ctx, "contest", nil, 3)
	assert.True(t, errors.Is(err, ErrQueueFull))

	bal, _ := svc.Balance(ctx, "contest")
	assert.Equal(t, int64(7), bal)
}

func TestDerivedKeyIsDeterministic(t *testing.T) {
	a := newTestService(t, "same")
	b := newTestService(t, "same")
	c := newTestService(t, "different")

	pa, _ := a.PublicKey()
	pb, _ := b.PublicKey()
	pc, _ := c.PublicKey()
	assert.Equal(t, pa, pb)
	assert.NotEqual(t, pa, pc)
}

func TestContestDrawEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := newTestService(t, "secret")
	c, err := contest.New(contest.Config{
		Owner:                    "owner",
		Account:                  "contest",
		MaxEntriesPerParticipant: uint256.NewInt(1_000),
		DrawFee:                  5,
	}, &flatAsset{balances: map[contest.ParticipantID]uint64{"p1": 10, "p2": 10}}, nil, logging.NewNop())
	require.NoError(t, err)
	c.WithOracle(svc)
	svc.Register(c.Consumer(), c)
	_, _ = svc.Fund(ctx, c.Consumer(), 5)

	_, err = c.Deposit(ctx, "p1", uint256.NewInt(3))
	require.NoError(t, err)
	_, err = c.Deposit(ctx, "p2", uint256.NewInt(7))
	require.NoError(t, err)

	svc.Start(ctx)
	defer svc.Stop()

	draw, err := c.PickWinner(ctx, "owner", []byte("round-1"))
	require.NoError(t, err)

	waitFor(t, func() bool {
		d, err := c.Draw(ctx, draw.ID)
		return err == nil && d.Status == contest.DrawStatusFulfilled
	})
	settled, _ := c.Draw(ctx, draw.ID)
	assert.Contains(t, []contest.ParticipantID{"p1", "p2"}, settled.Winner)

	// The fee was spent, so a second draw cannot be funded.
	bal, _ := svc.Balance(ctx, c.Consumer())
	assert.Equal(t, int64(0), bal)
}

// flatAsset is a fee-free asset with 1:1 units.
type flatAsset struct {
	balances map[contest.ParticipantID]uint64
}

func (a *flatAsset) BalanceOf(ctx context.Context, p contest.ParticipantID) (*uint256.Int, error) {
	return uint256.NewInt(a.balances[p]), nil
}

func (a *flatAsset) Transfer(ctx context.Context, from, to contest.ParticipantID, amount *uint256.Int) error {
	if a.balances[from] < amount.Uint64() {
		return errors.New("insufficient")
	}
	a.balances[from] -= amount.Uint64()
	a.balances[to] += amount.Uint64()
	return nil
}

func (a *flatAsset) UnitsFromAmount(ctx context.Context, amount *uint256.Int) (*uint256.Int, error) {
	return amount.Clone(), nil
}

func (a *flatAsset) AmountFromUnits(ctx context.Context, units *uint256.Int) (*uint256.Int, error) {
	return units.Clone(), nil
}
