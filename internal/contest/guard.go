package contest

import (
	"context"

	"github.com/holiman/uint256"
)

func (c *Contest) requireOwner(ctx context.Context, caller ParticipantID) error {
	if caller == "" || caller != c.cfg.Owner {
		c.log.WithContext(ctx).WithField("caller", caller).Warn("owner-only operation rejected")
		return ErrNotOwner.WithDetails("caller", string(caller))
	}
	return nil
}

// SetMinDeposit changes the minimum accepted deposit. Owner only.
func (c *Contest) SetMinDeposit(ctx context.Context, caller ParticipantID, value *uint256.Int) error {
	if err := c.enter(ctx); err != nil {
		return err
	}
	defer c.mu.Unlock()

	if err := c.requireOwner(ctx, caller); err != nil {
		return err
	}
	if err := c.writable(ctx); err != nil {
		return err
	}
	if value == nil {
		value = new(uint256.Int)
	}
	if value.Gt(c.cfg.MaxEntriesPerParticipant) {
		return ErrMaxEntriesExceeded.WithDetails("max_entries", FormatAmount(c.cfg.MaxEntriesPerParticipant))
	}

	c.st.minDeposit.Set(value)
	c.emit(ctx, Event{
		Type:        EventMinDepositChanged,
		Participant: caller,
		Amount:      value.Clone(),
	})

	c.log.WithContext(ctx).WithField("min_deposit", FormatAmount(value)).Info("minimum deposit changed")
	return nil
}
