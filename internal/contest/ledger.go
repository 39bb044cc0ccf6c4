package contest

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/SAFERMOON/SAFERWINNING/internal/metrics"
)

// Deposit moves amount from p into the contest account and credits p with
// the amount actually received. The cap is checked against the gross amount.
// It returns the net entries credited.
func (c *Contest) Deposit(ctx context.Context, p ParticipantID, amount *uint256.Int) (*uint256.Int, error) {
	if err := c.enter(ctx); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	if err := c.writable(ctx); err != nil {
		metrics.RecordLedgerOperation("deposit", err)
		return nil, err
	}

	net, err := c.deposit(ctx, p, amount)
	metrics.RecordLedgerOperation("deposit", err)
	return net, err
}

func (c *Contest) deposit(ctx context.Context, p ParticipantID, amount *uint256.Int) (*uint256.Int, error) {
	if err := c.checkParticipant(p); err != nil {
		return nil, err
	}
	if amount == nil || amount.IsZero() {
		return nil, ErrZeroAmount
	}
	if amount.Lt(&c.st.minDeposit) {
		return nil, ErrBelowMinimum.WithDetails("min_deposit", FormatAmount(&c.st.minDeposit))
	}
	current := c.st.entries[p]
	next, overflow := new(uint256.Int).AddOverflow(&current, amount)
	if overflow || next.Gt(c.cfg.MaxEntriesPerParticipant) {
		return nil, ErrMaxEntriesExceeded.WithDetails("max_entries", FormatAmount(c.cfg.MaxEntriesPerParticipant))
	}
	if c.st.completed {
		return nil, ErrContestClosed
	}

	ext := c.external(ctx)
	before, err := c.asset.BalanceOf(ext, c.cfg.Account)
	if err != nil {
		return nil, fmt.Errorf("balance before deposit: %w", err)
	}
	if err := c.asset.Transfer(ext, p, c.cfg.Account, amount); err != nil {
		return nil, fmt.Errorf("transfer in: %w", err)
	}
	after, err := c.asset.BalanceOf(ext, c.cfg.Account)
	if err != nil {
		c.log.WithContext(ctx).WithError(err).
			WithField("participant", p).
			WithField("amount", FormatAmount(amount)).
			Error("deposit transferred but balance unreadable; not credited")
		return nil, fmt.Errorf("balance after deposit: %w", err)
	}

	net := new(uint256.Int)
	if after.Gt(before) {
		net.Sub(after, before)
	}
	if net.Gt(amount) {
		net.Set(amount)
	}
	if net.IsZero() {
		return nil, ErrNothingReceived
	}

	units, err := c.asset.UnitsFromAmount(ext, net)
	if err != nil {
		c.log.WithContext(ctx).WithError(err).
			WithField("participant", p).
			WithField("net", FormatAmount(net)).
			Error("deposit transferred but unit conversion failed; not credited")
		return nil, fmt.Errorf("units from amount: %w", err)
	}

	c.credit(p, net, units)
	c.emit(ctx, Event{
		Type:         EventDeposit,
		Participant:  p,
		Amount:       net.Clone(),
		EntriesDelta: net.Clone(),
		UnitsDelta:   units.Clone(),
	})
	c.publishTotals()

	c.log.WithContext(ctx).
		WithField("participant", p).
		WithField("gross", FormatAmount(amount)).
		WithField("net", FormatAmount(net)).
		Info("deposit credited")

	return net, nil
}

// Withdraw returns amount of the asset to p and removes the matching entries.
func (c *Contest) Withdraw(ctx context.Context, p ParticipantID, amount *uint256.Int) error {
	if err := c.enter(ctx); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if err := c.writable(ctx); err != nil {
		metrics.RecordLedgerOperation("withdrawal", err)
		return err
	}

	err := c.withdraw(ctx, p, amount)
	metrics.RecordLedgerOperation("withdrawal", err)
	return err
}

func (c *Contest) withdraw(ctx context.Context, p ParticipantID, amount *uint256.Int) error {
	if err := c.checkParticipant(p); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}

	ext := c.external(ctx)
	balance, err := c.balanceOf(ext, p)
	if err != nil {
		return err
	}
	if amount.Gt(balance) {
		return ErrExceedsBalance.WithDetails("balance", FormatAmount(balance))
	}

	units, err := c.asset.UnitsFromAmount(ext, amount)
	if err != nil {
		return fmt.Errorf("units from amount: %w", err)
	}
	if err := c.asset.Transfer(ext, c.cfg.Account, p, amount); err != nil {
		return fmt.Errorf("transfer out: %w", err)
	}

	held := c.st.units[p]
	units = minAmount(units, &held)
	if amount.Eq(balance) {
		units = held.Clone()
	}
	entries := c.st.entries[p]
	entriesDelta := minAmount(amount, &entries)
	if units.Eq(&held) {
		entriesDelta = entries.Clone()
	}

	c.debit(p, entriesDelta, units)
	c.emit(ctx, Event{
		Type:         EventWithdrawal,
		Participant:  p,
		Amount:       amount.Clone(),
		EntriesDelta: entriesDelta.Clone(),
		UnitsDelta:   units.Clone(),
	})
	c.publishTotals()

	c.log.WithContext(ctx).
		WithField("participant", p).
		WithField("amount", FormatAmount(amount)).
		WithField("entries_removed", FormatAmount(entriesDelta)).
		Info("withdrawal processed")

	return nil
}

// BalanceOf returns what p could withdraw now, as valued by the asset.
func (c *Contest) BalanceOf(ctx context.Context, p ParticipantID) (*uint256.Int, error) {
	if err := c.enter(ctx); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	return c.balanceOf(c.external(ctx), p)
}

func (c *Contest) balanceOf(ext context.Context, p ParticipantID) (*uint256.Int, error) {
	units := c.st.units[p]
	if units.IsZero() {
		return new(uint256.Int), nil
	}
	amount, err := c.asset.AmountFromUnits(ext, &units)
	if err != nil {
		return nil, fmt.Errorf("amount from units: %w", err)
	}
	return amount, nil
}

func (c *Contest) checkParticipant(p ParticipantID) error {
	if p == "" || p == c.cfg.Account {
		return ErrInvalidParticipant
	}
	return nil
}

// credit and debit are the only writers of entries, units and totals. Live
// operations and journal replay both go through them.
func (c *Contest) credit(p ParticipantID, entries, units *uint256.Int) {
	e := c.st.entries[p]
	e.Add(&e, entries)
	c.st.entries[p] = e

	u := c.st.units[p]
	u.Add(&u, units)
	c.st.units[p] = u

	c.st.total.Add(&c.st.total, entries)
	c.st.registry.Register(p)
	c.st.board.Update(p, &e)
}

func (c *Contest) debit(p ParticipantID, entries, units *uint256.Int) {
	e := c.st.entries[p]
	removed := minAmount(entries, &e)
	e.Sub(&e, removed)

	u := c.st.units[p]
	u.Sub(&u, minAmount(units, &u))

	c.st.total.Sub(&c.st.total, minAmount(removed, &c.st.total))

	// Without entries p leaves the draw, but units still owed to p stay
	// withdrawable until drained.
	if e.IsZero() {
		delete(c.st.entries, p)
		c.st.registry.Unregister(p)
	} else {
		c.st.entries[p] = e
	}
	if u.IsZero() {
		delete(c.st.units, p)
	} else {
		c.st.units[p] = u
	}
	c.st.board.Update(p, &e)
}
