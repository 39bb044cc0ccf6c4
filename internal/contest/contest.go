// Package contest implements a weighted-draw deposit contest: a ledger of
// entries under a fee-on-transfer asset, a bounded top-10 ranking and a
// two-phase winner draw backed by an asynchronous randomness oracle.
package contest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"

	apperrors "github.com/SAFERMOON/SAFERWINNING/internal/errors"
	"github.com/SAFERMOON/SAFERWINNING/internal/logging"
	"github.com/SAFERMOON/SAFERWINNING/internal/metrics"
)

// state is the ledger owned by a Contest. It is only touched with mu held.
type state struct {
	entries    map[ParticipantID]uint256.Int
	units      map[ParticipantID]uint256.Int
	total      uint256.Int
	registry   *Registry
	board      *Leaderboard
	minDeposit uint256.Int
	round      uint64
	completed  bool
	pending    *DrawRequest
	lastSeq    int64
	// backlog holds events the store has not accepted yet, in seq order.
	backlog []Event
}

func newState(cfg Config) state {
	st := state{
		entries:  make(map[ParticipantID]uint256.Int),
		units:    make(map[ParticipantID]uint256.Int),
		registry: NewRegistry(),
		board:    NewLeaderboard(),
		round:    1,
	}
	if cfg.MinDepositEntries != nil {
		st.minDeposit.Set(cfg.MinDepositEntries)
	}
	return st
}

// Contest serializes every operation behind one mutex. Calls into the asset
// carry a marked context; any entry point reached with that context fails
// with ErrReentrantCall.
type Contest struct {
	mu     sync.Mutex
	st     state
	cfg    Config
	asset  Asset
	oracle RandomnessOracle
	store  Store
	log    *logging.Logger
	now    func() time.Time
}

// New constructs a contest. A nil store defaults to a MemoryStore.
func New(cfg Config, asset Asset, store Store, log *logging.Logger) (*Contest, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, fmt.Errorf("asset is required")
	}
	if store == nil {
		store = NewMemoryStore()
	}
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.RoundMode == "" {
		cfg.RoundMode = RoundModeSingle
	}
	if cfg.RewardAmount == nil {
		cfg.RewardAmount = new(uint256.Int)
	}
	if cfg.MinDepositEntries == nil {
		cfg.MinDepositEntries = new(uint256.Int)
	}
	return &Contest{
		st:    newState(cfg),
		cfg:   cfg,
		asset: asset,
		store: store,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithOracle sets the randomness oracle used by PickWinner.
func (c *Contest) WithOracle(oracle RandomnessOracle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.oracle = oracle
}

// Consumer is the name the contest uses with the randomness oracle.
func (c *Contest) Consumer() string {
	return string(c.cfg.Account)
}

// Validate checks the static parameters.
func (cfg Config) Validate() error {
	if cfg.Owner == "" {
		return fmt.Errorf("owner is required")
	}
	if cfg.Account == "" {
		return fmt.Errorf("contest account is required")
	}
	if cfg.Owner == cfg.Account {
		return fmt.Errorf("owner and contest account must differ")
	}
	if cfg.MaxEntriesPerParticipant == nil || cfg.MaxEntriesPerParticipant.IsZero() {
		return fmt.Errorf("max entries per participant must be > 0")
	}
	if cfg.MinDepositEntries != nil && cfg.MinDepositEntries.Gt(cfg.MaxEntriesPerParticipant) {
		return fmt.Errorf("min deposit exceeds max entries per participant")
	}
	if cfg.DrawFee < 0 {
		return fmt.Errorf("draw fee must be >= 0")
	}
	switch cfg.RoundMode {
	case "", RoundModeSingle, RoundModeRolling:
	default:
		return fmt.Errorf("unknown round mode %q", cfg.RoundMode)
	}
	return nil
}

type callKey struct{}

// enter locks the contest unless ctx already belongs to an operation on it.
func (c *Contest) enter(ctx context.Context) error {
	if owner, _ := ctx.Value(callKey{}).(*Contest); owner == c {
		c.log.WithContext(ctx).Warn("reentrant contest call rejected")
		return ErrReentrantCall
	}
	c.mu.Lock()
	return nil
}

// external marks ctx before it is handed to a collaborator.
func (c *Contest) external(ctx context.Context) context.Context {
	return context.WithValue(ctx, callKey{}, c)
}

// emit assigns the next seq and journals ev. An event the store rejects
// stays queued in order and mutating calls are refused until it is written.
func (c *Contest) emit(ctx context.Context, ev Event) Event {
	c.st.lastSeq++
	ev.Seq = c.st.lastSeq
	ev.Round = c.st.round
	ev.CreatedAt = c.now()
	c.st.backlog = append(c.st.backlog, copyEvent(ev))
	if err := c.flush(ctx); err != nil {
		c.log.WithContext(ctx).WithError(err).
			WithField("seq", ev.Seq).
			WithField("type", ev.Type).
			WithField("queued", len(c.st.backlog)).
			Error("append contest event; writes suspended until the journal recovers")
	}
	return ev
}

// flush writes queued events in seq order. A conflict means the store already
// holds the event from an earlier attempt.
func (c *Contest) flush(ctx context.Context) error {
	for len(c.st.backlog) > 0 {
		ev := c.st.backlog[0]
		if err := c.store.AppendEvent(ctx, ev); err != nil {
			if !apperrors.HasCode(err, apperrors.CodeConflict) {
				return err
			}
			c.log.WithContext(ctx).WithField("seq", ev.Seq).Warn("contest event already journaled")
		}
		c.st.backlog = c.st.backlog[1:]
	}
	c.st.backlog = nil
	return nil
}

// writable fails while earlier events are still waiting for the journal.
func (c *Contest) writable(ctx context.Context) error {
	if err := c.flush(ctx); err != nil {
		c.log.WithContext(ctx).WithError(err).
			WithField("queued", len(c.st.backlog)).
			Warn("write rejected: journal unavailable")
		return ErrJournalUnavailable.WithDetails("queued_events", len(c.st.backlog))
	}
	return nil
}

func (c *Contest) publishTotals() {
	metrics.SetContestTotals(AmountFloat(&c.st.total), c.st.registry.Len())
}

// Read surface

// Entries returns the entries held by p, zero when absent.
func (c *Contest) Entries(ctx context.Context, p ParticipantID) (*uint256.Int, error) {
	if err := c.enter(ctx); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	e := c.st.entries[p]
	return e.Clone(), nil
}

// Participant returns the participant in 1-based registry slot index.
func (c *Contest) Participant(ctx context.Context, index int) (ParticipantID, error) {
	if err := c.enter(ctx); err != nil {
		return "", err
	}
	defer c.mu.Unlock()
	return c.st.registry.At(index)
}

// ParticipantIndex returns the 1-based slot of p, or 0 when absent.
func (c *Contest) ParticipantIndex(ctx context.Context, p ParticipantID) (int, error) {
	if err := c.enter(ctx); err != nil {
		return 0, err
	}
	defer c.mu.Unlock()
	return c.st.registry.IndexOf(p), nil
}

// ParticipantDetail returns entries, credited units and the redeemable balance
// of p, read together.
func (c *Contest) ParticipantDetail(ctx context.Context, p ParticipantID) (Participant, error) {
	if err := c.enter(ctx); err != nil {
		return Participant{}, err
	}
	defer c.mu.Unlock()
	return c.participant(ctx, p)
}

// ParticipantAt is ParticipantDetail for the participant in 1-based slot index.
func (c *Contest) ParticipantAt(ctx context.Context, index int) (Participant, error) {
	if err := c.enter(ctx); err != nil {
		return Participant{}, err
	}
	defer c.mu.Unlock()
	p, err := c.st.registry.At(index)
	if err != nil {
		return Participant{}, err
	}
	return c.participant(ctx, p)
}

func (c *Contest) participant(ctx context.Context, p ParticipantID) (Participant, error) {
	balance, err := c.balanceOf(c.external(ctx), p)
	if err != nil {
		return Participant{}, err
	}
	e := c.st.entries[p]
	units := c.st.units[p]
	return Participant{
		ID:            p,
		Index:         c.st.registry.IndexOf(p),
		Entries:       e.Clone(),
		CreditedUnits: units.Clone(),
		Balance:       balance,
	}, nil
}

func (c *Contest) TotalEntries(ctx context.Context) (*uint256.Int, error) {
	if err := c.enter(ctx); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	return c.st.total.Clone(), nil
}

// LeaderboardAt returns the standing in 0-based slot.
func (c *Contest) LeaderboardAt(ctx context.Context, slot int) (Standing, error) {
	if err := c.enter(ctx); err != nil {
		return Standing{}, err
	}
	defer c.mu.Unlock()
	return c.st.board.At(slot)
}

func (c *Contest) Leaderboard(ctx context.Context) ([]Standing, error) {
	if err := c.enter(ctx); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	return c.st.board.Standings(), nil
}

// Draw returns a draw request by oracle request id.
func (c *Contest) Draw(ctx context.Context, id string) (DrawRequest, error) {
	if err := c.enter(ctx); err != nil {
		return DrawRequest{}, err
	}
	defer c.mu.Unlock()
	if p := c.st.pending; p != nil && p.ID == id {
		return copyDraw(*p), nil
	}
	return c.store.GetDraw(ctx, id)
}

// Events lists journal entries after afterSeq.
func (c *Contest) Events(ctx context.Context, afterSeq int64, limit int) ([]Event, error) {
	if err := c.enter(ctx); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	return c.store.ListEvents(ctx, afterSeq, limit)
}

func (c *Contest) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := c.enter(ctx); err != nil {
		return Snapshot{}, err
	}
	defer c.mu.Unlock()

	snap := Snapshot{
		Owner:                    c.cfg.Owner,
		Account:                  c.cfg.Account,
		RoundMode:                c.cfg.RoundMode,
		Round:                    c.st.round,
		Completed:                c.st.completed,
		TotalEntries:             c.st.total.Clone(),
		Participants:             c.st.registry.Len(),
		MinDepositEntries:        c.st.minDeposit.Clone(),
		MaxEntriesPerParticipant: c.cfg.MaxEntriesPerParticipant.Clone(),
		RewardAmount:             c.cfg.RewardAmount.Clone(),
		DrawFee:                  c.cfg.DrawFee,
		LastEventSeq:             c.st.lastSeq,
	}
	if c.st.pending != nil {
		snap.PendingDraw = c.st.pending.ID
	}
	return snap, nil
}
