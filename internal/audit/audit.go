// Package audit recomputes a weighted winner pick from the contest's public
// read surface, independently of the contest's own draw.
package audit

import (
	"context"
	"crypto/rand"
	goerrors "errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/SAFERMOON/SAFERWINNING/internal/contest"
)

// maxParticipants stops a scan that never reaches the end of the list.
const maxParticipants = 1 << 20

// Reader is the read surface an auditor needs. Holding must return an error
// matching contest.ErrOutOfRange past the last live index, and must read the
// id and entries of one slot together.
type Reader interface {
	Holding(ctx context.Context, index int) (Holding, error)
	// LatestWinner returns nil when no winner has been recorded.
	LatestWinner(ctx context.Context) (*Winner, error)
}

// Winner is a recorded payout.
type Winner struct {
	Participant contest.ParticipantID
	RequestID   string
	Round       uint64
	// RandomValue is the oracle output the contest used, when known.
	RandomValue *uint256.Int
}

type Holding struct {
	Index   int
	ID      contest.ParticipantID
	Entries *uint256.Int
}

// Report is the outcome of one audit run.
type Report struct {
	Holdings     []Holding
	TotalEntries *uint256.Int
	Value        *uint256.Int
	Normalized   *uint256.Int
	PickIndex    int
	Pick         contest.ParticipantID
	Recorded     *Winner
}

// Agrees reports whether the recomputed pick matches the recorded winner.
// It is only meaningful when Value is the recorded draw's random value and
// the registry has not changed since that draw.
func (r Report) Agrees() bool {
	return r.Recorded != nil && r.Recorded.Participant == r.Pick
}

// Scan reads participants 1, 2, ... until the reader reports out of range.
func Scan(ctx context.Context, r Reader) ([]Holding, *uint256.Int, error) {
	total := new(uint256.Int)
	var holdings []Holding
	for i := 1; i <= maxParticipants; i++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		h, err := r.Holding(ctx, i)
		if goerrors.Is(err, contest.ErrOutOfRange) {
			return holdings, total, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read participant %d: %w", i, err)
		}
		if _, overflow := total.AddOverflow(total, h.Entries); overflow {
			return nil, nil, fmt.Errorf("total entries overflow at participant %d", i)
		}
		holdings = append(holdings, h)
	}
	return nil, nil, fmt.Errorf("participant list exceeds %d entries", maxParticipants)
}

// Pick returns the position in holdings of the first participant whose
// cumulative entries exceed normalized, or -1.
func Pick(holdings []Holding, normalized *uint256.Int) int {
	sum := new(uint256.Int)
	for i, h := range holdings {
		sum.Add(sum, h.Entries)
		if sum.Gt(normalized) {
			return i
		}
	}
	return -1
}

// RandomValue draws 32 bytes from crypto/rand.
func RandomValue() (*uint256.Int, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return new(uint256.Int).SetBytes(buf[:]), nil
}

// Run scans the contest and picks a winner for value. A nil value draws a
// fresh random one.
func Run(ctx context.Context, r Reader, value *uint256.Int) (Report, error) {
	holdings, total, err := Scan(ctx, r)
	if err != nil {
		return Report{}, err
	}
	if total.IsZero() {
		return Report{}, contest.ErrNoEntries
	}

	if value == nil {
		if value, err = RandomValue(); err != nil {
			return Report{}, err
		}
	}
	normalized := new(uint256.Int).Mod(value, total)

	pos := Pick(holdings, normalized)
	if pos < 0 {
		return Report{}, fmt.Errorf("no participant covers %s", contest.FormatAmount(normalized))
	}

	recorded, err := r.LatestWinner(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("read latest winner: %w", err)
	}

	return Report{
		Holdings:     holdings,
		TotalEntries: total,
		Value:        value,
		Normalized:   normalized,
		PickIndex:    holdings[pos].Index,
		Pick:         holdings[pos].ID,
		Recorded:     recorded,
	}, nil
}
