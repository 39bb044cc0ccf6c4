package contest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	apperrors "github.com/SAFERMOON/SAFERWINNING/internal/errors"
	"github.com/SAFERMOON/SAFERWINNING/internal/metrics"
)

var errDrawCancelled = errors.New("cancelled by owner")

// PickWinner requests randomness for a draw. Owner only. The winner is
// resolved later by FulfillRandomness; the returned request is pending.
func (c *Contest) PickWinner(ctx context.Context, caller ParticipantID, seed []byte) (DrawRequest, error) {
	if err := c.enter(ctx); err != nil {
		return DrawRequest{}, err
	}
	defer c.mu.Unlock()

	if err := c.requireOwner(ctx, caller); err != nil {
		return DrawRequest{}, err
	}
	if err := c.writable(ctx); err != nil {
		return DrawRequest{}, err
	}
	if c.st.completed {
		return DrawRequest{}, ErrContestClosed
	}
	if c.st.pending != nil {
		return DrawRequest{}, ErrDrawInProgress.WithDetails("request_id", c.st.pending.ID)
	}
	if c.oracle == nil {
		return DrawRequest{}, ErrOracleNotConfigured
	}

	ext := c.external(ctx)
	balance, err := c.oracle.Balance(ext, c.Consumer())
	if err != nil {
		return DrawRequest{}, fmt.Errorf("oracle balance: %w", err)
	}
	if balance < c.cfg.DrawFee {
		return DrawRequest{}, ErrInsufficientFunding.
			WithDetails("balance", balance).
			WithDetails("fee", c.cfg.DrawFee)
	}
	if c.st.total.IsZero() {
		return DrawRequest{}, ErrNoEntries
	}

	requestID, err := c.oracle.RequestRandomness(ext, c.Consumer(), seed, c.cfg.DrawFee)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeInsufficientFunds) {
			return DrawRequest{}, ErrInsufficientFunding
		}
		return DrawRequest{}, fmt.Errorf("request randomness: %w", err)
	}

	draw := DrawRequest{
		ID:          requestID,
		Round:       c.st.round,
		Seed:        hex.EncodeToString(seed),
		Fee:         c.cfg.DrawFee,
		Status:      DrawStatusPending,
		Reward:      c.cfg.RewardAmount.Clone(),
		RequestedAt: c.now(),
	}
	c.st.pending = &draw
	if err := c.store.CreateDraw(ctx, draw); err != nil {
		c.log.WithContext(ctx).WithError(err).WithField("request_id", requestID).Error("persist pending draw")
	}
	metrics.RecordDraw(string(DrawStatusPending))

	c.log.WithContext(ctx).
		WithField("request_id", requestID).
		WithField("round", draw.Round).
		WithField("total_entries", FormatAmount(&c.st.total)).
		Info("winner draw requested")

	return copyDraw(draw), nil
}

// FulfillRandomness resolves the pending draw with value and pays the
// winner. It is called by the oracle, once per request.
func (c *Contest) FulfillRandomness(ctx context.Context, requestID string, value *uint256.Int) error {
	if err := c.enter(ctx); err != nil {
		return err
	}
	defer c.mu.Unlock()

	draw := c.st.pending
	if draw == nil || draw.ID != requestID || value == nil {
		return ErrUnknownDraw.WithDetails("request_id", requestID)
	}
	if err := c.writable(ctx); err != nil {
		return err
	}

	draw.RandomValue = value.Clone()
	if c.st.total.IsZero() {
		c.settle(ctx, draw, ErrNoEntries)
		return ErrNoEntries
	}

	normalized := new(uint256.Int).Mod(value, &c.st.total)
	index := c.winningIndex(normalized)
	winner, err := c.st.registry.At(index)
	if err != nil {
		c.settle(ctx, draw, err)
		return err
	}
	draw.Normalized = normalized
	draw.WinnerIndex = index
	draw.Winner = winner

	if !c.cfg.RewardAmount.IsZero() {
		if err := c.asset.Transfer(c.external(ctx), c.cfg.Account, winner, c.cfg.RewardAmount); err != nil {
			err = fmt.Errorf("reward transfer: %w", err)
			c.settle(ctx, draw, err)
			return err
		}
	}

	c.emit(ctx, Event{
		Type:        EventWinnerPicked,
		Participant: winner,
		Amount:      c.cfg.RewardAmount.Clone(),
		RequestID:   requestID,
	})
	c.settle(ctx, draw, nil)
	c.advanceRound()

	c.log.WithContext(ctx).
		WithField("request_id", requestID).
		WithField("winner", winner).
		WithField("winner_index", index).
		WithField("reward", FormatAmount(c.cfg.RewardAmount)).
		Info("winner picked")

	return nil
}

// FailDraw settles the pending draw id as failed without a payout so a new
// draw can be requested. Owner only. A draw restored by Hydrate whose oracle
// request was lost is released this way; a late fulfillment is then rejected
// with ErrUnknownDraw.
func (c *Contest) FailDraw(ctx context.Context, caller ParticipantID, id string) (DrawRequest, error) {
	if err := c.enter(ctx); err != nil {
		return DrawRequest{}, err
	}
	defer c.mu.Unlock()

	if err := c.requireOwner(ctx, caller); err != nil {
		return DrawRequest{}, err
	}
	draw := c.st.pending
	if draw == nil || draw.ID != id {
		return DrawRequest{}, ErrUnknownDraw.WithDetails("request_id", id)
	}
	c.settle(ctx, draw, errDrawCancelled)

	c.log.WithContext(ctx).
		WithField("request_id", id).
		WithField("round", draw.Round).
		Info("pending draw failed by owner")
	return copyDraw(*draw), nil
}

// settle finishes the pending draw as fulfilled (cause nil) or failed.
func (c *Contest) settle(ctx context.Context, draw *DrawRequest, cause error) {
	now := c.now()
	draw.FulfilledAt = &now
	draw.Status = DrawStatusFulfilled
	if cause != nil {
		draw.Status = DrawStatusFailed
		draw.Error = cause.Error()
		var se *apperrors.ServiceError
		if errors.As(cause, &se) && se.Err == nil {
			draw.Error = se.Message
		}
		draw.Winner = ""
		draw.WinnerIndex = 0
		c.log.WithContext(ctx).WithError(cause).WithField("request_id", draw.ID).Warn("winner draw failed")
	}
	c.st.pending = nil
	if err := c.store.UpdateDraw(ctx, *draw); err != nil {
		c.log.WithContext(ctx).WithError(err).WithField("request_id", draw.ID).Error("persist settled draw")
	}
	metrics.RecordDraw(string(draw.Status))
}

func (c *Contest) advanceRound() {
	c.st.round++
	if c.cfg.RoundMode == RoundModeSingle {
		c.st.completed = true
	}
}

// WinningIndex maps value onto the registry by cumulative entries and returns
// the 1-based index of the selected participant.
func (c *Contest) WinningIndex(ctx context.Context, value *uint256.Int) (int, error) {
	if err := c.enter(ctx); err != nil {
		return 0, err
	}
	defer c.mu.Unlock()

	if c.st.total.IsZero() {
		return 0, ErrNoEntries
	}
	if value == nil {
		value = new(uint256.Int)
	}
	return c.winningIndex(new(uint256.Int).Mod(value, &c.st.total)), nil
}

// WinningParticipant resolves value to the selected participant under a
// single lock, so the index and entries agree.
func (c *Contest) WinningParticipant(ctx context.Context, value *uint256.Int) (Participant, error) {
	if err := c.enter(ctx); err != nil {
		return Participant{}, err
	}
	defer c.mu.Unlock()

	if c.st.total.IsZero() {
		return Participant{}, ErrNoEntries
	}
	if value == nil {
		value = new(uint256.Int)
	}
	p, err := c.st.registry.At(c.winningIndex(new(uint256.Int).Mod(value, &c.st.total)))
	if err != nil {
		return Participant{}, err
	}
	return c.participant(ctx, p)
}

// winningIndex expects normalized < total.
func (c *Contest) winningIndex(normalized *uint256.Int) int {
	var cum uint256.Int
	index := 0
	c.st.registry.Each(func(i int, p ParticipantID) bool {
		e := c.st.entries[p]
		cum.Add(&cum, &e)
		if cum.Gt(normalized) {
			index = i
			return false
		}
		return true
	})
	return index
}
