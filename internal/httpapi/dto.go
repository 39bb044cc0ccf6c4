package httpapi

import (
	"time"

	"github.com/SAFERMOON/SAFERWINNING/internal/contest"
)

// Amounts travel as base-10 strings so 256-bit values survive JSON.

type amountRequest struct {
	Amount string `json:"amount"`
}

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type minDepositRequest struct {
	Value string `json:"value"`
}

type drawRequest struct {
	// Seed is hex encoded and optional.
	Seed string `json:"seed,omitempty"`
}

type fundingRequest struct {
	Amount int64 `json:"amount"`
}

type participantResponse struct {
	ID      string `json:"id"`
	Index   int    `json:"index"`
	Entries string `json:"entries"`
}

type balanceResponse struct {
	ID      string `json:"id"`
	Balance string `json:"balance"`
	Units   string `json:"units"`
}

type standingResponse struct {
	Slot        int    `json:"slot"`
	Participant string `json:"participant"`
	Entries     string `json:"entries"`
}

type depositResponse struct {
	Participant string `json:"participant"`
	Received    string `json:"received"`
	Entries     string `json:"entries"`
}

type withdrawalResponse struct {
	Participant string `json:"participant"`
	Entries     string `json:"entries"`
	Balance     string `json:"balance"`
}

type drawResponse struct {
	ID          string     `json:"id"`
	Round       uint64     `json:"round"`
	Status      string     `json:"status"`
	Seed        string     `json:"seed,omitempty"`
	Fee         int64      `json:"fee"`
	RandomValue string     `json:"random_value,omitempty"`
	Normalized  string     `json:"normalized,omitempty"`
	WinnerIndex int        `json:"winner_index,omitempty"`
	Winner      string     `json:"winner,omitempty"`
	Reward      string     `json:"reward,omitempty"`
	Error       string     `json:"error,omitempty"`
	RequestedAt time.Time  `json:"requested_at"`
	FulfilledAt *time.Time `json:"fulfilled_at,omitempty"`
}

type eventResponse struct {
	Seq          int64     `json:"seq"`
	Type         string    `json:"type"`
	Participant  string    `json:"participant,omitempty"`
	Amount       string    `json:"amount,omitempty"`
	EntriesDelta string    `json:"entries_delta,omitempty"`
	UnitsDelta   string    `json:"units_delta,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	Round        uint64    `json:"round"`
	CreatedAt    time.Time `json:"created_at"`
}

type contestResponse struct {
	Owner                    string `json:"owner"`
	Account                  string `json:"account"`
	RoundMode                string `json:"round_mode"`
	Round                    uint64 `json:"round"`
	Completed                bool   `json:"completed"`
	TotalEntries             string `json:"total_entries"`
	Participants             int    `json:"participants"`
	MinDepositEntries        string `json:"min_deposit_entries"`
	MaxEntriesPerParticipant string `json:"max_entries_per_participant"`
	RewardAmount             string `json:"reward_amount"`
	DrawFee                  int64  `json:"draw_fee"`
	PendingDraw              string `json:"pending_draw,omitempty"`
	LastEventSeq             int64  `json:"last_event_seq"`
}

type fundingResponse struct {
	Consumer string `json:"consumer"`
	Balance  int64  `json:"balance"`
}

func toDrawResponse(d contest.DrawRequest) drawResponse {
	resp := drawResponse{
		ID:          d.ID,
		Round:       d.Round,
		Status:      string(d.Status),
		Seed:        d.Seed,
		Fee:         d.Fee,
		WinnerIndex: d.WinnerIndex,
		Winner:      string(d.Winner),
		Error:       d.Error,
		RequestedAt: d.RequestedAt,
		FulfilledAt: d.FulfilledAt,
	}
	if d.RandomValue != nil {
		resp.RandomValue = contest.FormatAmount(d.RandomValue)
	}
	if d.Normalized != nil {
		resp.Normalized = contest.FormatAmount(d.Normalized)
	}
	if d.Reward != nil {
		resp.Reward = contest.FormatAmount(d.Reward)
	}
	return resp
}

func toEventResponse(ev contest.Event) eventResponse {
	resp := eventResponse{
		Seq:         ev.Seq,
		Type:        string(ev.Type),
		Participant: string(ev.Participant),
		RequestID:   ev.RequestID,
		Round:       ev.Round,
		CreatedAt:   ev.CreatedAt,
	}
	if ev.Amount != nil {
		resp.Amount = contest.FormatAmount(ev.Amount)
	}
	if ev.EntriesDelta != nil {
		resp.EntriesDelta = contest.FormatAmount(ev.EntriesDelta)
	}
	if ev.UnitsDelta != nil {
		resp.UnitsDelta = contest.FormatAmount(ev.UnitsDelta)
	}
	return resp
}

func toContestResponse(s contest.Snapshot) contestResponse {
	return contestResponse{
		Owner:                    string(s.Owner),
		Account:                  string(s.Account),
		RoundMode:                string(s.RoundMode),
		Round:                    s.Round,
		Completed:                s.Completed,
		TotalEntries:             contest.FormatAmount(s.TotalEntries),
		Participants:             s.Participants,
		MinDepositEntries:        contest.FormatAmount(s.MinDepositEntries),
		MaxEntriesPerParticipant: contest.FormatAmount(s.MaxEntriesPerParticipant),
		RewardAmount:             contest.FormatAmount(s.RewardAmount),
		DrawFee:                  s.DrawFee,
		PendingDraw:              s.PendingDraw,
		LastEventSeq:             s.LastEventSeq,
	}
}
