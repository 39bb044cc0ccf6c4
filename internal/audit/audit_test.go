package audit

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAFERMOON/SAFERWINNING/internal/asset"
	"github.com/SAFERMOON/SAFERWINNING/internal/contest"
	"github.com/SAFERMOON/SAFERWINNING/internal/httpapi"
	"github.com/SAFERMOON/SAFERWINNING/internal/httputil"
	"github.com/SAFERMOON/SAFERWINNING/internal/logging"
)

type fixedOracle struct{}

func (fixedOracle) Balance(ctx context.Context, consumer string) (int64, error) { return 100, nil }

func (fixedOracle) RequestRandomness(ctx context.Context, consumer string, seed []byte, fee int64) (string, error) {
	return "draw-1", nil
}

// newContest deposits 10, 30 and 60 entries for alice, bob and carol.
func newContest(t *testing.T) *contest.Contest {
	t.Helper()
	ctx := context.Background()

	token, err := asset.New(asset.Config{TotalSupply: uint256.NewInt(1_000_000), Genesis: "owner"}, logging.NewNop())
	require.NoError(t, err)

	c, err := contest.New(contest.Config{
		Owner:                    "owner",
		Account:                  "contest",
		MaxEntriesPerParticipant: uint256.NewInt(1_000),
		DrawFee:                  1,
	}, token, nil, logging.NewNop())
	require.NoError(t, err)
	c.WithOracle(fixedOracle{})

	for id, amount := range map[contest.ParticipantID]uint64{"alice": 10, "bob": 30, "carol": 60} {
		require.NoError(t, token.Transfer(ctx, "owner", id, uint256.NewInt(amount)))
	}
	for _, id := range []contest.ParticipantID{"alice", "bob", "carol"} {
		bal, err := token.BalanceOf(ctx, id)
		require.NoError(t, err)
		_, err = c.Deposit(ctx, id, bal)
		require.NoError(t, err)
	}
	return c
}

func TestPick(t *testing.T) {
	holdings := []Holding{
		{Index: 1, ID: "a", Entries: uint256.NewInt(10)},
		{Index: 2, ID: "b", Entries: uint256.NewInt(0)},
		{Index: 3, ID: "c", Entries: uint256.NewInt(5)},
	}
	tests := []struct {
		normalized uint64
		want       int
	}{
		{0, 0}, {9, 0}, {10, 2}, {14, 2}, {15, -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Pick(holdings, uint256.NewInt(tt.normalized)), "normalized %d", tt.normalized)
	}
}

func TestRunMatchesContestSelection(t *testing.T) {
	ctx := context.Background()
	c := newContest(t)
	reader := ContestReader{Contest: c}

	for _, v := range []uint64{0, 9, 10, 39, 40, 99, 100, 12345} {
		report, err := Run(ctx, reader, uint256.NewInt(v))
		require.NoError(t, err)
		assert.Equal(t, "100", contest.FormatAmount(report.TotalEntries))
		assert.Len(t, report.Holdings, 3)

		want, err := c.WinningIndex(ctx, uint256.NewInt(v))
		require.NoError(t, err)
		assert.Equal(t, want, report.PickIndex, "value %d", v)
		assert.Nil(t, report.Recorded)
	}
}

func TestRunDrawsRandomValue(t *testing.T) {
	report, err := Run(context.Background(), ContestReader{Contest: newContest(t)}, nil)
	require.NoError(t, err)
	require.NotNil(t, report.Value)
	assert.True(t, report.Normalized.Lt(report.TotalEntries))
	assert.NotEmpty(t, report.Pick)
}

func TestRunWithoutEntries(t *testing.T) {
	token, err := asset.New(asset.Config{TotalSupply: uint256.NewInt(1), Genesis: "owner"}, nil)
	require.NoError(t, err)
	c, err := contest.New(contest.Config{Owner: "owner", Account: "contest", MaxEntriesPerParticipant: uint256.NewInt(1)}, token, nil, nil)
	require.NoError(t, err)

	_, err = Run(context.Background(), ContestReader{Contest: c}, uint256.NewInt(1))
	assert.ErrorIs(t, err, contest.ErrNoEntries)
}

func TestRecordedWinnerAgrees(t *testing.T) {
	ctx := context.Background()
	c := newContest(t)

	_, err := c.PickWinner(ctx, "owner", nil)
	require.NoError(t, err)
	value := uint256.NewInt(1_000_042)
	require.NoError(t, c.FulfillRandomness(ctx, "draw-1", value))

	for name, reader := range map[string]Reader{
		"in-process": ContestReader{Contest: c},
		"http":       serveContest(t, c),
	} {
		t.Run(name, func(t *testing.T) {
			winner, err := reader.LatestWinner(ctx)
			require.NoError(t, err)
			require.NotNil(t, winner)
			assert.Equal(t, "draw-1", winner.RequestID)
			require.NotNil(t, winner.RandomValue)
			assert.True(t, winner.RandomValue.Eq(value))

			report, err := Run(ctx, reader, winner.RandomValue)
			require.NoError(t, err)
			assert.True(t, report.Agrees(), "pick %s recorded %s", report.Pick, report.Recorded.Participant)
		})
	}
}

func TestHTTPReaderScan(t *testing.T) {
	c := newContest(t)
	holdings, total, err := Scan(context.Background(), serveContest(t, c))
	require.NoError(t, err)
	assert.Len(t, holdings, 3)
	assert.Equal(t, "100", contest.FormatAmount(total))
}

// A contest larger than the default rate limit burst still audits: the client
// waits out 429 responses instead of failing the scan.
func TestHTTPReaderScanAtDefaultRateLimit(t *testing.T) {
	ctx := context.Background()
	token, err := asset.New(asset.Config{TotalSupply: uint256.NewInt(1_000_000), Genesis: "owner"}, logging.NewNop())
	require.NoError(t, err)
	c, err := contest.New(contest.Config{
		Owner:                    "owner",
		Account:                  "contest",
		MaxEntriesPerParticipant: uint256.NewInt(1_000),
	}, token, nil, logging.NewNop())
	require.NoError(t, err)

	const participants = 45
	for i := 1; i <= participants; i++ {
		id := contest.ParticipantID(fmt.Sprintf("p%02d", i))
		require.NoError(t, token.Transfer(ctx, "owner", id, uint256.NewInt(uint64(i))))
		_, err := c.Deposit(ctx, id, uint256.NewInt(uint64(i)))
		require.NoError(t, err)
	}

	reader := serveContestWith(t, c, httpapi.Options{})
	holdings, total, err := Scan(ctx, reader)
	require.NoError(t, err)
	assert.Len(t, holdings, participants)
	assert.Equal(t, uint64(participants*(participants+1)/2), total.Uint64())

	report, err := Run(ctx, reader, uint256.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, contest.ParticipantID("p01"), report.Pick)
}

func serveContest(t *testing.T, c *contest.Contest) *HTTPReader {
	return serveContestWith(t, c, httpapi.Options{RateLimit: 10_000})
}

func serveContestWith(t *testing.T, c *contest.Contest, opts httpapi.Options) *HTTPReader {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := httptest.NewServer(httpapi.New(c, nil, nil, logging.NewNop(), opts).Router(ctx))
	t.Cleanup(srv.Close)
	return NewHTTPReader(httputil.NewServiceClient(httputil.ServiceClientConfig{BaseURL: srv.URL}))
}
