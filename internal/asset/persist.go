package asset

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"github.com/SAFERMOON/SAFERWINNING/internal/contest"
)

// StateStore keeps the token ledger across restarts. LoadAssetState returns
// nil when nothing has been saved.
type StateStore interface {
	LoadAssetState(ctx context.Context) ([]byte, error)
	SaveAssetState(ctx context.Context, state []byte) error
}

type ledgerState struct {
	TotalSupply string            `json:"total_supply"`
	RTotal      string            `json:"r_total"`
	FeeTotal    string            `json:"fee_total"`
	ROwned      map[string]string `json:"r_owned"`
	TOwned      map[string]string `json:"t_owned,omitempty"`
	Exempt      []string          `json:"exempt"`
	Excluded    []string          `json:"excluded,omitempty"`
}

// Attach makes store the token's persistence. A ledger already saved there
// replaces the genesis ledger, after which the configured fee exemptions and
// reward exclusions are applied again. Every later change is saved before it
// takes effect. Attach reports whether a saved ledger was restored.
func (t *Token) Attach(ctx context.Context, store StateStore) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	raw, err := store.LoadAssetState(ctx)
	if err != nil {
		return false, fmt.Errorf("load asset state: %w", err)
	}
	restored := raw != nil
	if restored {
		var st ledgerState
		if err := json.Unmarshal(raw, &st); err != nil {
			return false, fmt.Errorf("decode asset state: %w", err)
		}
		if err := t.restore(st); err != nil {
			return false, err
		}
		for _, a := range t.cfgExempt {
			t.exempt[a] = true
		}
		for _, a := range t.cfgExcluded {
			if err := t.excludeFromReward(a); err != nil {
				return false, err
			}
		}
	}

	t.store = store
	if err := t.save(ctx); err != nil {
		t.store = nil
		return false, err
	}

	t.log.WithContext(ctx).
		WithField("restored", restored).
		WithField("holders", len(t.rOwned)).
		Info("asset ledger attached")
	return restored, nil
}

// commit saves the ledger after a change, restoring prev when the save fails.
func (t *Token) commit(ctx context.Context, prev ledgerState) error {
	if err := t.save(ctx); err != nil {
		if rerr := t.restore(prev); rerr != nil {
			t.log.WithContext(ctx).WithError(rerr).Error("roll back asset ledger")
		}
		return err
	}
	return nil
}

func (t *Token) save(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	raw, err := json.Marshal(t.state())
	if err != nil {
		return fmt.Errorf("encode asset state: %w", err)
	}
	if err := t.store.SaveAssetState(ctx, raw); err != nil {
		return fmt.Errorf("save asset state: %w", err)
	}
	return nil
}

func (t *Token) state() ledgerState {
	st := ledgerState{
		TotalSupply: contest.FormatAmount(&t.tTotal),
		RTotal:      contest.FormatAmount(&t.rTotal),
		FeeTotal:    contest.FormatAmount(&t.tFeeTotal),
		ROwned:      make(map[string]string, len(t.rOwned)),
		TOwned:      make(map[string]string, len(t.tOwned)),
	}
	for a, r := range t.rOwned {
		r := r
		if !r.IsZero() {
			st.ROwned[string(a)] = contest.FormatAmount(&r)
		}
	}
	for a, v := range t.tOwned {
		v := v
		st.TOwned[string(a)] = contest.FormatAmount(&v)
	}
	for a := range t.exempt {
		st.Exempt = append(st.Exempt, string(a))
	}
	sort.Strings(st.Exempt)
	for _, a := range t.excluded {
		st.Excluded = append(st.Excluded, string(a))
	}
	return st
}

func (t *Token) restore(st ledgerState) error {
	supply, err := contest.ParseAmount(st.TotalSupply)
	if err != nil {
		return fmt.Errorf("asset state supply: %w", err)
	}
	if !supply.Eq(&t.tTotal) {
		return fmt.Errorf("saved supply %s differs from configured %s",
			contest.FormatAmount(supply), contest.FormatAmount(&t.tTotal))
	}
	rTotal, err := contest.ParseAmount(st.RTotal)
	if err != nil {
		return fmt.Errorf("asset state r_total: %w", err)
	}
	feeTotal, err := contest.ParseAmount(st.FeeTotal)
	if err != nil {
		return fmt.Errorf("asset state fee_total: %w", err)
	}
	rOwned, err := parseHoldings(st.ROwned)
	if err != nil {
		return err
	}
	tOwned, err := parseHoldings(st.TOwned)
	if err != nil {
		return err
	}

	t.rTotal.Set(rTotal)
	t.tFeeTotal.Set(feeTotal)
	t.rOwned = rOwned
	t.tOwned = tOwned
	t.exempt = make(map[contest.ParticipantID]bool, len(st.Exempt))
	for _, a := range st.Exempt {
		t.exempt[contest.ParticipantID(a)] = true
	}
	t.excluded = t.excluded[:0]
	for _, a := range st.Excluded {
		t.excluded = append(t.excluded, contest.ParticipantID(a))
	}
	return nil
}

func parseHoldings(in map[string]string) (map[contest.ParticipantID]uint256.Int, error) {
	out := make(map[contest.ParticipantID]uint256.Int, len(in))
	for a, raw := range in {
		v, err := contest.ParseAmount(raw)
		if err != nil {
			return nil, fmt.Errorf("asset state holding %s: %w", a, err)
		}
		out[contest.ParticipantID(a)] = *v
	}
	return out, nil
}
