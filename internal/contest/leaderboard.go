package contest

import "github.com/holiman/uint256"

// Leaderboard is a fixed-size ranking kept in descending entries order.
// Updates are O(LeaderboardSize); a slot vacated by a participant is never
// backfilled from outside the board.
type Leaderboard struct {
	slots [LeaderboardSize]Standing
}

func NewLeaderboard() *Leaderboard {
	lb := &Leaderboard{}
	for i := range lb.slots {
		lb.slots[i] = Standing{Entries: new(uint256.Int)}
	}
	return lb
}

// Update repositions p for its new entries total. On equal entries the most
// recently updated participant ranks higher.
func (lb *Leaderboard) Update(p ParticipantID, entries *uint256.Int) {
	lb.remove(p)
	if entries.IsZero() {
		return
	}

	pos := LeaderboardSize
	for i := range lb.slots {
		if !lb.slots[i].Entries.Gt(entries) {
			pos = i
			break
		}
	}
	if pos == LeaderboardSize {
		return
	}

	copy(lb.slots[pos+1:], lb.slots[pos:LeaderboardSize-1])
	lb.slots[pos] = Standing{ID: p, Entries: entries.Clone()}
}

func (lb *Leaderboard) remove(p ParticipantID) {
	for i := range lb.slots {
		if lb.slots[i].ID != p || p == "" {
			continue
		}
		copy(lb.slots[i:], lb.slots[i+1:])
		lb.slots[LeaderboardSize-1] = Standing{Entries: new(uint256.Int)}
		return
	}
}

// At returns a copy of the standing at slot (0-based).
func (lb *Leaderboard) At(slot int) (Standing, error) {
	if slot < 0 || slot >= LeaderboardSize {
		return Standing{}, ErrOutOfRange.WithDetails("slot", slot)
	}
	s := lb.slots[slot]
	return Standing{ID: s.ID, Entries: clone(s.Entries)}, nil
}

// Standings returns a copy of all slots, sentinels included.
func (lb *Leaderboard) Standings() []Standing {
	out := make([]Standing, LeaderboardSize)
	for i, s := range lb.slots {
		out[i] = Standing{ID: s.ID, Entries: clone(s.Entries)}
	}
	return out
}
