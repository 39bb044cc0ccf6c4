// Package asset implements a reflection fee-on-transfer token. A taxed
// transfer burns part of the amount from the reflected supply, which raises
// every non-excluded holder's balance, and pays another part to a liquidity
// account. Holders are tracked in reflected units; balances are derived from
// the current rate.
package asset

import (
	"context"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/SAFERMOON/SAFERWINNING/internal/contest"
	apperrors "github.com/SAFERMOON/SAFERWINNING/internal/errors"
	"github.com/SAFERMOON/SAFERWINNING/internal/logging"
)

const basisPoints = 10_000

var (
	ErrInsufficientBalance = apperrors.Validation("transfer amount exceeds balance")
	ErrZeroTransfer        = apperrors.Validation("transfer amount must be greater than zero")
	ErrInvalidAccount      = apperrors.Validation("invalid account")
)

// Config describes the token at genesis.
type Config struct {
	// TotalSupply is minted to Genesis.
	TotalSupply *uint256.Int
	Genesis     contest.ParticipantID
	// TaxFeeBP is reflected to holders; LiquidityFeeBP goes to LiquidityAccount.
	TaxFeeBP         uint64
	LiquidityFeeBP   uint64
	LiquidityAccount contest.ParticipantID
	// FeeExempt accounts neither pay nor trigger fees. Genesis is always exempt.
	FeeExempt []contest.ParticipantID
	// RewardExcluded accounts hold plain token balances and receive no reflections.
	RewardExcluded []contest.ParticipantID
}

// Token is safe for concurrent use.
type Token struct {
	mu        sync.Mutex
	log       *logging.Logger
	tTotal    uint256.Int
	rTotal    uint256.Int
	tFeeTotal uint256.Int
	rOwned    map[contest.ParticipantID]uint256.Int
	tOwned    map[contest.ParticipantID]uint256.Int
	exempt    map[contest.ParticipantID]bool
	excluded  []contest.ParticipantID
	taxBP     uint64
	liqBP     uint64
	liquidity contest.ParticipantID

	store       StateStore
	cfgExempt   []contest.ParticipantID
	cfgExcluded []contest.ParticipantID
}

var _ contest.Asset = (*Token)(nil)

// New mints the total supply to cfg.Genesis.
func New(cfg Config, log *logging.Logger) (*Token, error) {
	if cfg.TotalSupply == nil || cfg.TotalSupply.IsZero() {
		return nil, fmt.Errorf("total supply must be > 0")
	}
	if cfg.Genesis == "" {
		return nil, fmt.Errorf("genesis account is required")
	}
	if cfg.TaxFeeBP+cfg.LiquidityFeeBP > basisPoints {
		return nil, fmt.Errorf("fees exceed 100%%")
	}
	if cfg.LiquidityFeeBP > 0 && cfg.LiquidityAccount == "" {
		return nil, fmt.Errorf("liquidity account is required when a liquidity fee is set")
	}
	if log == nil {
		log = logging.NewNop()
	}

	t := &Token{
		log:       log,
		rOwned:    make(map[contest.ParticipantID]uint256.Int),
		tOwned:    make(map[contest.ParticipantID]uint256.Int),
		exempt:    map[contest.ParticipantID]bool{cfg.Genesis: true},
		taxBP:     cfg.TaxFeeBP,
		liqBP:     cfg.LiquidityFeeBP,
		liquidity: cfg.LiquidityAccount,

		cfgExempt:   append([]contest.ParticipantID{cfg.Genesis}, cfg.FeeExempt...),
		cfgExcluded: append([]contest.ParticipantID(nil), cfg.RewardExcluded...),
	}
	t.tTotal.Set(cfg.TotalSupply)

	// Largest multiple of the supply that fits in 256 bits.
	max := new(uint256.Int).Not(new(uint256.Int))
	rem := new(uint256.Int).Mod(max, &t.tTotal)
	t.rTotal.Sub(max, rem)
	t.rOwned[cfg.Genesis] = t.rTotal

	for _, a := range cfg.FeeExempt {
		t.exempt[a] = true
	}
	for _, a := range cfg.RewardExcluded {
		if err := t.excludeFromReward(a); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// BalanceOf returns the account's token balance, reflections included.
func (t *Token) BalanceOf(ctx context.Context, account contest.ParticipantID) (*uint256.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balanceOf(account), nil
}

func (t *Token) balanceOf(account contest.ParticipantID) *uint256.Int {
	if t.isExcluded(account) {
		b := t.tOwned[account]
		return b.Clone()
	}
	r := t.rOwned[account]
	return t.tokenFromReflection(&r)
}

// Transfer moves amount from one account to another, taking fees unless
// either side is exempt.
func (t *Token) Transfer(ctx context.Context, from, to contest.ParticipantID, amount *uint256.Int) error {
	if from == "" || to == "" {
		return ErrInvalidAccount
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroTransfer
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.balanceOf(from).Lt(amount) {
		return ErrInsufficientBalance.WithDetails("account", string(from))
	}
	prev := t.state()

	tFee, tLiquidity := new(uint256.Int), new(uint256.Int)
	if !t.exempt[from] && !t.exempt[to] {
		tFee = bp(amount, t.taxBP)
		tLiquidity = bp(amount, t.liqBP)
	}
	tTransfer := new(uint256.Int).Sub(amount, tFee)
	tTransfer.Sub(tTransfer, tLiquidity)

	rate := t.rate()
	rAmount := new(uint256.Int).Mul(amount, rate)
	rFee := new(uint256.Int).Mul(tFee, rate)
	rLiquidity := new(uint256.Int).Mul(tLiquidity, rate)
	rTransfer := new(uint256.Int).Sub(rAmount, rFee)
	rTransfer.Sub(rTransfer, rLiquidity)

	t.subOwned(from, rAmount, amount)
	t.addOwned(to, rTransfer, tTransfer)
	if !tLiquidity.IsZero() {
		t.addOwned(t.liquidity, rLiquidity, tLiquidity)
	}
	t.rTotal.Sub(&t.rTotal, rFee)
	t.tFeeTotal.Add(&t.tFeeTotal, tFee)
	if err := t.commit(ctx, prev); err != nil {
		return err
	}

	t.log.WithContext(ctx).WithFields(map[string]interface{}{
		"from":      from,
		"to":        to,
		"amount":    amount.ToBig().String(),
		"reflected": tFee.ToBig().String(),
		"liquidity": tLiquidity.ToBig().String(),
	}).Debug("token transfer")
	return nil
}

// UnitsFromAmount converts a token amount to reflected units at the current rate.
func (t *Token) UnitsFromAmount(ctx context.Context, amount *uint256.Int) (*uint256.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if amount.Gt(&t.tTotal) {
		return nil, apperrors.Validation("amount must be less than supply")
	}
	return new(uint256.Int).Mul(amount, t.rate()), nil
}

// AmountFromUnits converts reflected units to a token amount at the current rate.
func (t *Token) AmountFromUnits(ctx context.Context, units *uint256.Int) (*uint256.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if units.Gt(&t.rTotal) {
		return nil, apperrors.Validation("amount must be less than total reflections")
	}
	return t.tokenFromReflection(units), nil
}

// ExcludeFromFee makes transfers touching account untaxed.
func (t *Token) ExcludeFromFee(ctx context.Context, account contest.ParticipantID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.state()
	t.exempt[account] = true
	return t.commit(ctx, prev)
}

// IncludeInFee removes an account's fee exemption.
func (t *Token) IncludeInFee(ctx context.Context, account contest.ParticipantID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.state()
	delete(t.exempt, account)
	return t.commit(ctx, prev)
}

// ExcludeFromReward freezes account's balance so it stops earning reflections.
func (t *Token) ExcludeFromReward(ctx context.Context, account contest.ParticipantID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.state()
	if err := t.excludeFromReward(account); err != nil {
		return err
	}
	return t.commit(ctx, prev)
}

func (t *Token) excludeFromReward(account contest.ParticipantID) error {
	if account == "" {
		return ErrInvalidAccount
	}
	if t.isExcluded(account) {
		return nil
	}
	r := t.rOwned[account]
	if !r.IsZero() {
		t.tOwned[account] = *t.tokenFromReflection(&r)
	}
	t.excluded = append(t.excluded, account)
	return nil
}

func (t *Token) TotalSupply() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tTotal.Clone()
}

// TotalFees is the amount reflected to holders so far.
func (t *Token) TotalFees() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tFeeTotal.Clone()
}

func (t *Token) isExcluded(account contest.ParticipantID) bool {
	for _, a := range t.excluded {
		if a == account {
			return true
		}
	}
	return false
}

// rate is reflected units per token, computed over non-excluded supply.
func (t *Token) rate() *uint256.Int {
	rSupply := t.rTotal.Clone()
	tSupply := t.tTotal.Clone()
	fallback := new(uint256.Int).Div(&t.rTotal, &t.tTotal)
	for _, a := range t.excluded {
		r, tk := t.rOwned[a], t.tOwned[a]
		if r.Gt(rSupply) || tk.Gt(tSupply) {
			return fallback
		}
		rSupply.Sub(rSupply, &r)
		tSupply.Sub(tSupply, &tk)
	}
	if tSupply.IsZero() || rSupply.Lt(fallback) {
		return fallback
	}
	return rSupply.Div(rSupply, tSupply)
}

func (t *Token) tokenFromReflection(r *uint256.Int) *uint256.Int {
	return new(uint256.Int).Div(r, t.rate())
}

func (t *Token) subOwned(account contest.ParticipantID, r, tk *uint256.Int) {
	ro := t.rOwned[account]
	ro.Sub(&ro, minInt(r, &ro))
	t.rOwned[account] = ro
	if t.isExcluded(account) {
		to := t.tOwned[account]
		to.Sub(&to, minInt(tk, &to))
		t.tOwned[account] = to
	}
}

func (t *Token) addOwned(account contest.ParticipantID, r, tk *uint256.Int) {
	ro := t.rOwned[account]
	ro.Add(&ro, r)
	t.rOwned[account] = ro
	if t.isExcluded(account) {
		to := t.tOwned[account]
		to.Add(&to, tk)
		t.tOwned[account] = to
	}
}

func bp(amount *uint256.Int, points uint64) *uint256.Int {
	if points == 0 {
		return new(uint256.Int)
	}
	// points <= basisPoints, so the quotient always fits even when the
	// product does not.
	v, _ := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(points), uint256.NewInt(basisPoints))
	return v
}

func minInt(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a
	}
	return b
}
