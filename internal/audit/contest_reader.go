package audit

import (
	"context"
	goerrors "errors"

	"github.com/SAFERMOON/SAFERWINNING/internal/contest"
)

const eventPage = 500

// ContestReader audits an in-process contest.
type ContestReader struct {
	Contest *contest.Contest
}

var _ Reader = ContestReader{}

func (r ContestReader) Holding(ctx context.Context, index int) (Holding, error) {
	p, err := r.Contest.ParticipantAt(ctx, index)
	if err != nil {
		return Holding{}, err
	}
	return Holding{Index: index, ID: p.ID, Entries: p.Entries}, nil
}

func (r ContestReader) LatestWinner(ctx context.Context) (*Winner, error) {
	var latest *contest.Event
	var after int64
	for {
		events, err := r.Contest.Events(ctx, after, eventPage)
		if err != nil {
			return nil, err
		}
		for i := range events {
			if events[i].Type == contest.EventWinnerPicked {
				ev := events[i]
				latest = &ev
			}
		}
		if len(events) < eventPage {
			break
		}
		after = events[len(events)-1].Seq
	}
	if latest == nil {
		return nil, nil
	}

	w := &Winner{Participant: latest.Participant, RequestID: latest.RequestID, Round: latest.Round}
	draw, err := r.Contest.Draw(ctx, latest.RequestID)
	switch {
	case err == nil:
		w.RandomValue = draw.RandomValue
	case !goerrors.Is(err, contest.ErrDrawNotFound):
		return nil, err
	}
	return w, nil
}
