package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAFERMOON/SAFERWINNING/internal/contest"
	apperrors "github.com/SAFERMOON/SAFERWINNING/internal/errors"
)

func TestDrawRecordKeepsUnsetValuesNil(t *testing.T) {
	rec := toDrawRecord(contest.DrawRequest{
		ID:          "req-1",
		Status:      contest.DrawStatusPending,
		Reward:      uint256.NewInt(5),
		RequestedAt: time.Now().UTC(),
	})
	assert.Empty(t, rec.RandomValue)

	d, err := rec.draw()
	require.NoError(t, err)
	assert.Nil(t, d.RandomValue)
	assert.Nil(t, d.Normalized)
	assert.Equal(t, uint64(5), d.Reward.Uint64())
}

func TestEventRecordRejectsBadAmount(t *testing.T) {
	_, err := eventRecord{Seq: 1, Type: "deposit", Amount: "ten", EntriesDelta: "0", UnitsDelta: "0"}.event()
	assert.Error(t, err)
}

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping redis integration test")
	}
	ctx := context.Background()
	prefix := fmt.Sprintf("saferwinning-test-%d", time.Now().UnixNano())
	store, err := Open(ctx, Options{Addr: addr, Prefix: prefix})
	require.NoError(t, err)
	t.Cleanup(func() {
		keys, _ := store.client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			store.client.Del(ctx, keys...)
		}
		store.Close()
	})
	return store
}

func TestStoreIntegration(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	for seq := int64(1); seq <= 3; seq++ {
		require.NoError(t, store.AppendEvent(ctx, contest.Event{
			Seq:          seq,
			Type:         contest.EventDeposit,
			Participant:  "alice",
			Amount:       uint256.NewInt(uint64(seq)),
			EntriesDelta: uint256.NewInt(uint64(seq)),
			UnitsDelta:   uint256.NewInt(uint64(seq)),
			CreatedAt:    time.Now().UTC(),
		}))
	}
	err := store.AppendEvent(ctx, contest.Event{Seq: 7, Type: contest.EventDeposit})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	events, err := store.ListEvents(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(2), events[0].Seq)

	draw := contest.DrawRequest{ID: "req-1", Status: contest.DrawStatusPending, Reward: uint256.NewInt(1), RequestedAt: time.Now().UTC()}
	require.NoError(t, store.CreateDraw(ctx, draw))
	assert.Error(t, store.CreateDraw(ctx, draw))

	pending, err := store.ListDrawsByStatus(ctx, contest.DrawStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	draw.Status = contest.DrawStatusFulfilled
	draw.RandomValue = uint256.NewInt(9)
	require.NoError(t, store.UpdateDraw(ctx, draw))

	pending, err = store.ListDrawsByStatus(ctx, contest.DrawStatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	got, err := store.GetDraw(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), got.RandomValue.Uint64())

	_, err = store.GetDraw(ctx, "missing")
	assert.True(t, errors.Is(err, contest.ErrDrawNotFound))
}

func TestAssetStateIntegration(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	state, err := store.LoadAssetState(ctx)
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, store.SaveAssetState(ctx, []byte(`{"total_supply":"1"}`)))
	require.NoError(t, store.SaveAssetState(ctx, []byte(`{"total_supply":"2"}`)))
	state, err = store.LoadAssetState(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_supply":"2"}`, string(state))
}

func TestOpenFailsWithoutServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := Open(ctx, Options{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
