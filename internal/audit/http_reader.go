package audit

import (
	"context"
	goerrors "errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/SAFERMOON/SAFERWINNING/internal/contest"
	"github.com/SAFERMOON/SAFERWINNING/internal/errors"
	"github.com/SAFERMOON/SAFERWINNING/internal/httputil"
)

// HTTPReader audits a contest through its public JSON API.
type HTTPReader struct {
	client *httputil.ServiceClient
}

var _ Reader = (*HTTPReader)(nil)

func NewHTTPReader(client *httputil.ServiceClient) *HTTPReader {
	return &HTTPReader{client: client}
}

func (r *HTTPReader) get(ctx context.Context, path string) (gjson.Result, error) {
	resp, err := r.client.Get(ctx, path)
	if err != nil {
		return gjson.Result{}, err
	}
	body, err := httputil.ReadBody(resp)
	if err != nil {
		var statusErr *httputil.StatusError
		if goerrors.As(err, &statusErr) {
			code := gjson.Get(statusErr.Body, "error.code").String()
			switch errors.ErrorCode(code) {
			case errors.CodeOutOfRange:
				return gjson.Result{}, contest.ErrOutOfRange
			case errors.CodeNotFound:
				return gjson.Result{}, fmt.Errorf("%s: %w", path, contest.ErrDrawNotFound)
			}
		}
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%s: invalid JSON response", path)
	}
	return gjson.GetBytes(body, "data"), nil
}

// Holding reads one registry slot; the API returns its id and entries from a
// single read.
func (r *HTTPReader) Holding(ctx context.Context, index int) (Holding, error) {
	data, err := r.get(ctx, "/participants/"+strconv.Itoa(index))
	if err != nil {
		return Holding{}, err
	}
	id := data.Get("id").String()
	if id == "" {
		return Holding{}, fmt.Errorf("participant %d: missing id", index)
	}
	entries, err := contest.ParseAmount(data.Get("entries").String())
	if err != nil {
		return Holding{}, fmt.Errorf("participant %d: %w", index, err)
	}
	return Holding{Index: index, ID: contest.ParticipantID(id), Entries: entries}, nil
}

func (r *HTTPReader) LatestWinner(ctx context.Context) (*Winner, error) {
	var latest gjson.Result
	var after int64
	for {
		data, err := r.get(ctx, fmt.Sprintf("/events?after=%d&limit=%d", after, eventPage))
		if err != nil {
			return nil, err
		}
		events := data.Array()
		for _, ev := range events {
			if ev.Get("type").String() == string(contest.EventWinnerPicked) {
				latest = ev
			}
		}
		if len(events) < eventPage {
			break
		}
		after = events[len(events)-1].Get("seq").Int()
	}
	if !latest.Exists() {
		return nil, nil
	}

	w := &Winner{
		Participant: contest.ParticipantID(latest.Get("participant").String()),
		RequestID:   latest.Get("request_id").String(),
		Round:       latest.Get("round").Uint(),
	}
	draw, err := r.get(ctx, "/draws/"+url.PathEscape(w.RequestID))
	switch {
	case err == nil:
		if raw := draw.Get("random_value").String(); raw != "" {
			if w.RandomValue, err = contest.ParseAmount(raw); err != nil {
				return nil, fmt.Errorf("draw %s: %w", w.RequestID, err)
			}
		}
	case !goerrors.Is(err, contest.ErrDrawNotFound):
		return nil, err
	}
	return w, nil
}
