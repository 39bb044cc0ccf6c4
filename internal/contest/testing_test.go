package contest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/SAFERMOON/SAFERWINNING/internal/logging"
)

const (
	testOwner   ParticipantID = "owner"
	testAccount ParticipantID = "contest"
)

// tb is the subset of testing.TB that *rapid.T also satisfies.
type tb interface {
	Helper()
	Fatalf(format string, args ...interface{})
}

func u(x uint64) *uint256.Int { return uint256.NewInt(x) }

// feeAsset is a fee-on-transfer ledger. unitsPerAmount scales internal units
// so conversions are exercised.
type feeAsset struct {
	mu             sync.Mutex
	balances       map[ParticipantID]uint256.Int
	feeBP          uint64
	unitsPerAmount uint64
	transferErr    error
	onTransfer     func(ctx context.Context)
}

func newFeeAsset(feeBP uint64) *feeAsset {
	return &feeAsset{
		balances:       make(map[ParticipantID]uint256.Int),
		feeBP:          feeBP,
		unitsPerAmount: 1000,
	}
}

func (a *feeAsset) mint(p ParticipantID, amount uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.balances[p]
	b.Add(&b, u(amount))
	a.balances[p] = b
}

func (a *feeAsset) BalanceOf(ctx context.Context, p ParticipantID) (*uint256.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b := a.balances[p]
	return b.Clone(), nil
}

func (a *feeAsset) Transfer(ctx context.Context, from, to ParticipantID, amount *uint256.Int) error {
	if a.onTransfer != nil {
		a.onTransfer(ctx)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.transferErr != nil {
		return a.transferErr
	}
	fb := a.balances[from]
	if fb.Lt(amount) {
		return errors.New("amount exceeds balance")
	}
	fee := new(uint256.Int).Mul(amount, u(a.feeBP))
	fee.Div(fee, u(10000))
	fb.Sub(&fb, amount)
	a.balances[from] = fb
	tb := a.balances[to]
	tb.Add(&tb, new(uint256.Int).Sub(amount, fee))
	a.balances[to] = tb
	return nil
}

func (a *feeAsset) UnitsFromAmount(ctx context.Context, amount *uint256.Int) (*uint256.Int, error) {
	return new(uint256.Int).Mul(amount, u(a.unitsPerAmount)), nil
}

func (a *feeAsset) AmountFromUnits(ctx context.Context, units *uint256.Int) (*uint256.Int, error) {
	return new(uint256.Int).Div(units, u(a.unitsPerAmount)), nil
}

type fakeOracle struct {
	mu        sync.Mutex
	balance   int64
	requested []string
	seeds     [][]byte
	onRequest func(ctx context.Context, id string)
}

func (o *fakeOracle) Balance(ctx context.Context, consumer string) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.balance, nil
}

func (o *fakeOracle) RequestRandomness(ctx context.Context, consumer string, seed []byte, fee int64) (string, error) {
	o.mu.Lock()
	o.balance -= fee
	id := fmt.Sprintf("req-%d", len(o.requested)+1)
	o.requested = append(o.requested, id)
	o.seeds = append(o.seeds, seed)
	cb := o.onRequest
	o.mu.Unlock()
	if cb != nil {
		cb(ctx, id)
	}
	return id, nil
}

type harness struct {
	contest *Contest
	asset   *feeAsset
	oracle  *fakeOracle
	store   *MemoryStore
}

func testConfig() Config {
	return Config{
		Owner:                    testOwner,
		Account:                  testAccount,
		MaxEntriesPerParticipant: u(1_000_000),
		MinDepositEntries:        u(0),
		RewardAmount:             u(0),
		DrawFee:                  10,
		RoundMode:                RoundModeSingle,
	}
}

func newHarness(t tb, cfg Config, feeBP uint64) *harness {
	t.Helper()
	asset := newFeeAsset(feeBP)
	store := NewMemoryStore()
	c, err := New(cfg, asset, store, logging.NewNop())
	if err != nil {
		t.Fatalf("new contest: %v", err)
	}
	oracle := &fakeOracle{}
	c.WithOracle(oracle)
	return &harness{contest: c, asset: asset, oracle: oracle, store: store}
}

func (h *harness) deposit(t tb, p ParticipantID, amount uint64) *uint256.Int {
	t.Helper()
	h.asset.mint(p, amount)
	net, err := h.contest.Deposit(context.Background(), p, u(amount))
	if err != nil {
		t.Fatalf("deposit %s %d: %v", p, amount, err)
	}
	return net
}

// flakyStore fails journal appends on demand. With lostAck set, an append is
// stored but still reported as failed, as after a timeout on commit.
type flakyStore struct {
	*MemoryStore
	mu        sync.Mutex
	appendErr error
	lostAck   bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: NewMemoryStore()}
}

func (s *flakyStore) fail(err error, lostAck bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendErr = err
	s.lostAck = lostAck
}

func (s *flakyStore) AppendEvent(ctx context.Context, ev Event) error {
	s.mu.Lock()
	err, lost := s.appendErr, s.lostAck
	s.mu.Unlock()
	if err == nil {
		return s.MemoryStore.AppendEvent(ctx, ev)
	}
	if lost {
		if stored := s.MemoryStore.AppendEvent(ctx, ev); stored != nil {
			return stored
		}
	}
	return err
}
