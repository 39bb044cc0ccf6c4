package contest

import (
	"time"

	"github.com/holiman/uint256"
)

// ParticipantID identifies a depositor. The empty id is the absent sentinel.
type ParticipantID string

// LeaderboardSize is the fixed capacity of the ranking.
const LeaderboardSize = 10

// RoundMode controls what happens after a winner is paid.
type RoundMode string

const (
	// RoundModeSingle closes deposits and draws after the first payout.
	RoundModeSingle RoundMode = "single"
	// RoundModeRolling keeps entries and opens the next round.
	RoundModeRolling RoundMode = "rolling"
)

// Config holds the contest parameters fixed at construction.
type Config struct {
	Owner                    ParticipantID
	Account                  ParticipantID
	MaxEntriesPerParticipant *uint256.Int
	MinDepositEntries        *uint256.Int
	RewardAmount             *uint256.Int
	DrawFee                  int64
	RoundMode                RoundMode
}

// Standing is one leaderboard slot.
type Standing struct {
	ID      ParticipantID
	Entries *uint256.Int
}

// Participant is the read view of one active participant.
type Participant struct {
	ID            ParticipantID
	Index         int
	Entries       *uint256.Int
	CreditedUnits *uint256.Int
	// Balance is CreditedUnits valued by the asset at read time.
	Balance *uint256.Int
}

// DrawStatus is the lifecycle state of a randomness request.
type DrawStatus string

const (
	DrawStatusPending   DrawStatus = "pending"
	DrawStatusFulfilled DrawStatus = "fulfilled"
	DrawStatusFailed    DrawStatus = "failed"
)

// DrawRequest records one winner draw from request to fulfillment.
type DrawRequest struct {
	ID          string
	Round       uint64
	Seed        string
	Fee         int64
	Status      DrawStatus
	RandomValue *uint256.Int
	Normalized  *uint256.Int
	WinnerIndex int
	Winner      ParticipantID
	Reward      *uint256.Int
	Error       string
	RequestedAt time.Time
	FulfilledAt *time.Time
}

// EventType names a journal entry.
type EventType string

const (
	EventDeposit           EventType = "deposit"
	EventWithdrawal        EventType = "withdrawal"
	EventWinnerPicked      EventType = "winner_picked"
	EventMinDepositChanged EventType = "min_deposit_changed"
)

// Event is an append-only journal record. EntriesDelta and UnitsDelta are the
// exact state changes applied, which is what Hydrate replays.
type Event struct {
	Seq          int64
	Type         EventType
	Participant  ParticipantID
	Amount       *uint256.Int
	EntriesDelta *uint256.Int
	UnitsDelta   *uint256.Int
	RequestID    string
	Round        uint64
	CreatedAt    time.Time
}

// Snapshot summarizes the contest for operators and auditors.
type Snapshot struct {
	Owner                    ParticipantID
	Account                  ParticipantID
	RoundMode                RoundMode
	Round                    uint64
	Completed                bool
	TotalEntries             *uint256.Int
	Participants             int
	MinDepositEntries        *uint256.Int
	MaxEntriesPerParticipant *uint256.Int
	RewardAmount             *uint256.Int
	DrawFee                  int64
	PendingDraw              string
	LastEventSeq             int64
}
