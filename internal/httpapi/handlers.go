package httpapi

import (
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"

	"github.com/SAFERMOON/SAFERWINNING/internal/contest"
	"github.com/SAFERMOON/SAFERWINNING/internal/errors"
	"github.com/SAFERMOON/SAFERWINNING/internal/httputil"
	"github.com/SAFERMOON/SAFERWINNING/internal/middleware"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// participantID validates raw as a participant identifier.
func (s *Server) participantID(field, raw string) (contest.ParticipantID, error) {
	if raw == "" {
		return "", errors.InvalidFormat(field, "required")
	}
	if s.opts.RequireNeoAddress {
		if _, err := address.StringToUint160(raw); err != nil {
			return "", errors.InvalidFormat(field, "not a Neo N3 address")
		}
	}
	return contest.ParticipantID(raw), nil
}

func (s *Server) caller(r *http.Request) (contest.ParticipantID, error) {
	return s.participantID("caller", middleware.GetUserID(r.Context()))
}

func parseAmount(field, raw string) (*uint256.Int, error) {
	v, err := contest.ParseAmount(raw)
	if err != nil {
		return nil, errors.InvalidFormat(field, err.Error())
	}
	return v, nil
}

func pathInt(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil {
		return 0, errors.InvalidFormat(name, "must be an integer")
	}
	return v, nil
}

// Reads

func (s *Server) handleContest(w http.ResponseWriter, r *http.Request) {
	snap, err := s.contest.Snapshot(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, toContestResponse(snap))
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	id, err := s.participantID("id", mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	p, err := s.contest.ParticipantDetail(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, participantResponse{
		ID:      string(p.ID),
		Index:   p.Index,
		Entries: contest.FormatAmount(p.Entries),
	})
}

func (s *Server) handleParticipant(w http.ResponseWriter, r *http.Request) {
	index, err := pathInt(r, "index")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	p, err := s.contest.ParticipantAt(r.Context(), index)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, participantResponse{
		ID:      string(p.ID),
		Index:   p.Index,
		Entries: contest.FormatAmount(p.Entries),
	})
}

func (s *Server) handleParticipantIndex(w http.ResponseWriter, r *http.Request) {
	id, err := s.participantID("id", mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	index, err := s.contest.ParticipantIndex(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"id": id, "index": index})
}

func (s *Server) handleTotalEntries(w http.ResponseWriter, r *http.Request) {
	total, err := s.contest.TotalEntries(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"total_entries": contest.FormatAmount(total)})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	standings, err := s.contest.Leaderboard(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	out := make([]standingResponse, 0, len(standings))
	for i, st := range standings {
		out = append(out, standingResponse{
			Slot:        i,
			Participant: string(st.ID),
			Entries:     contest.FormatAmount(st.Entries),
		})
	}
	httputil.WriteSuccess(w, out)
}

func (s *Server) handleLeaderboardSlot(w http.ResponseWriter, r *http.Request) {
	slot, err := pathInt(r, "slot")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	st, err := s.contest.LeaderboardAt(r.Context(), slot)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, standingResponse{
		Slot:        slot,
		Participant: string(st.ID),
		Entries:     contest.FormatAmount(st.Entries),
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	id, err := s.participantID("id", mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	p, err := s.contest.ParticipantDetail(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, balanceResponse{
		ID:      string(id),
		Balance: contest.FormatAmount(p.Balance),
		Units:   contest.FormatAmount(p.CreditedUnits),
	})
}

func (s *Server) handleWinningIndex(w http.ResponseWriter, r *http.Request) {
	value, err := parseAmount("value", mux.Vars(r)["value"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	p, err := s.contest.WinningParticipant(r.Context(), value)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]any{"index": p.Index, "participant": p.ID})
}

func (s *Server) handleDraw(w http.ResponseWriter, r *http.Request) {
	draw, err := s.contest.Draw(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, toDrawResponse(draw))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var after int64
	if raw := q.Get("after"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			httputil.WriteError(w, r, errors.InvalidFormat("after", "must be a non-negative integer"))
			return
		}
		after = v
	}

	limit := defaultEventLimit
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			httputil.WriteError(w, r, errors.InvalidFormat("limit", "must be a positive integer"))
			return
		}
		limit = v
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	events, err := s.contest.Events(r.Context(), after, limit)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	out := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, toEventResponse(ev))
	}
	httputil.WriteSuccess(w, out)
}

// Participant writes

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	var req amountRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	received, err := s.contest.Deposit(r.Context(), caller, amount)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	entries, err := s.contest.Entries(r.Context(), caller)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteCreated(w, depositResponse{
		Participant: string(caller),
		Received:    contest.FormatAmount(received),
		Entries:     contest.FormatAmount(entries),
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	var req amountRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	if err := s.contest.Withdraw(r.Context(), caller, amount); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	p, err := s.contest.ParticipantDetail(r.Context(), caller)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, withdrawalResponse{
		Participant: string(caller),
		Entries:     contest.FormatAmount(p.Entries),
		Balance:     contest.FormatAmount(p.Balance),
	})
}

func (s *Server) handleAssetTransfer(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	var req transferRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	to, err := s.participantID("to", req.To)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	if err := s.asset.Transfer(r.Context(), caller, to, amount); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.log.WithContext(r.Context()).WithFields(map[string]interface{}{
		"to":     to,
		"amount": contest.FormatAmount(amount),
	}).Info("asset transfer")
	httputil.WriteSuccess(w, map[string]string{
		"from":   string(caller),
		"to":     string(to),
		"amount": contest.FormatAmount(amount),
	})
}

func (s *Server) handleAssetBalance(w http.ResponseWriter, r *http.Request) {
	id, err := s.participantID("id", mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	balance, err := s.asset.BalanceOf(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"id": string(id), "balance": contest.FormatAmount(balance)})
}

// Owner operations

func (s *Server) handleSetMinDeposit(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	var req minDepositRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	value, err := parseAmount("value", req.Value)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if err := s.contest.SetMinDeposit(r.Context(), caller, value); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"min_deposit_entries": contest.FormatAmount(value)})
}

func (s *Server) handlePickWinner(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	var req drawRequest
	if r.ContentLength != 0 {
		if err := httputil.ReadJSON(r, &req); err != nil {
			httputil.WriteError(w, r, err)
			return
		}
	}
	seed, err := hex.DecodeString(req.Seed)
	if err != nil {
		httputil.WriteError(w, r, errors.InvalidFormat("seed", "must be hex"))
		return
	}

	draw, err := s.contest.PickWinner(r.Context(), caller, seed)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, httputil.APIResponse{Success: true, Data: toDrawResponse(draw)})
}

func (s *Server) handleFailDraw(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	draw, err := s.contest.FailDraw(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, toDrawResponse(draw))
}

func (s *Server) handleFundOracle(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	snap, err := s.contest.Snapshot(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if caller != snap.Owner {
		s.log.LogSecurityEvent(r.Context(), "oracle_funding_denied", map[string]interface{}{"caller": caller})
		httputil.WriteError(w, r, contest.ErrNotOwner)
		return
	}
	if s.oracle == nil {
		httputil.WriteError(w, r, contest.ErrOracleNotConfigured)
		return
	}

	var req fundingRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if req.Amount <= 0 {
		httputil.WriteError(w, r, contest.ErrZeroAmount)
		return
	}

	consumer := s.contest.Consumer()
	balance, err := s.oracle.Fund(r.Context(), consumer, req.Amount)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, fundingResponse{Consumer: consumer, Balance: balance})
}
