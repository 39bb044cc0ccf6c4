package contest

import (
	"context"
	"fmt"
)

const hydrateBatch = 500

// Hydrate rebuilds the ledger from the store's journal and restores the
// pending draw, if any. It must run before the contest serves calls.
func (c *Contest) Hydrate(ctx context.Context) error {
	if err := c.enter(ctx); err != nil {
		return err
	}
	defer c.mu.Unlock()

	c.st = newState(c.cfg)
	replayed := 0
	for {
		events, err := c.store.ListEvents(ctx, c.st.lastSeq, hydrateBatch)
		if err != nil {
			return fmt.Errorf("list events after %d: %w", c.st.lastSeq, err)
		}
		for _, ev := range events {
			if err := c.replay(ev); err != nil {
				return err
			}
			replayed++
		}
		if len(events) < hydrateBatch {
			break
		}
	}

	pending, err := c.store.ListDrawsByStatus(ctx, DrawStatusPending)
	if err != nil {
		return fmt.Errorf("list pending draws: %w", err)
	}
	if n := len(pending); n > 0 {
		draw := pending[n-1]
		c.st.pending = &draw
		for _, stale := range pending[:n-1] {
			c.settle(ctx, &stale, fmt.Errorf("superseded by %s", draw.ID))
			c.st.pending = &draw
		}
	}
	c.publishTotals()

	entry := c.log.WithContext(ctx).
		WithField("events", replayed).
		WithField("participants", c.st.registry.Len()).
		WithField("round", c.st.round)
	if c.st.pending != nil {
		entry = entry.WithField("pending_draw", c.st.pending.ID)
	}
	entry.Info("contest hydrated")
	return nil
}

func (c *Contest) replay(ev Event) error {
	if ev.Seq != c.st.lastSeq+1 {
		return fmt.Errorf("journal gap: expected seq %d, got %d", c.st.lastSeq+1, ev.Seq)
	}
	c.st.lastSeq = ev.Seq

	switch ev.Type {
	case EventDeposit:
		c.credit(ev.Participant, clone(ev.EntriesDelta), clone(ev.UnitsDelta))
	case EventWithdrawal:
		c.debit(ev.Participant, clone(ev.EntriesDelta), clone(ev.UnitsDelta))
	case EventWinnerPicked:
		c.advanceRound()
	case EventMinDepositChanged:
		c.st.minDeposit.Set(clone(ev.Amount))
	default:
		return fmt.Errorf("unknown event type %q at seq %d", ev.Type, ev.Seq)
	}
	return nil
}
