// Package redis implements contest.Store on Redis. Events live in a list
// indexed by seq-1; draws live in a hash with one set per status. The token
// ledger snapshot is a single string key.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/SAFERMOON/SAFERWINNING/internal/contest"
	apperrors "github.com/SAFERMOON/SAFERWINNING/internal/errors"
)

const defaultPrefix = "saferwinning"

// Options configures the connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store implements contest.Store.
type Store struct {
	client *redis.Client
	prefix string
}

var _ contest.Store = (*Store)(nil)

// New wraps an existing client.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Open connects and pings the server.
func Open(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return New(client, opts.Prefix), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) eventsKey() string { return s.prefix + ":events" }
func (s *Store) drawsKey() string  { return s.prefix + ":draws" }
func (s *Store) assetKey() string  { return s.prefix + ":asset" }
func (s *Store) statusKey(status contest.DrawStatus) string {
	return s.prefix + ":draws:status:" + string(status)
}

// --- Journal ----------------------------------------------------------------

func (s *Store) AppendEvent(ctx context.Context, ev contest.Event) error {
	payload, err := json.Marshal(toEventRecord(ev))
	if err != nil {
		return err
	}
	key := s.eventsKey()

	// The list index is the seq, so the append must land at position seq-1.
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.LLen(ctx, key).Result()
		if err != nil {
			return err
		}
		if n != ev.Seq-1 {
			return apperrors.Conflict("event seq out of order").
				WithDetails("seq", ev.Seq).
				WithDetails("length", n)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, key, payload)
			return nil
		})
		return err
	}, key)
}

func (s *Store) ListEvents(ctx context.Context, afterSeq int64, limit int) ([]contest.Event, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = afterSeq + int64(limit) - 1
	}
	raw, err := s.client.LRange(ctx, s.eventsKey(), afterSeq, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]contest.Event, 0, len(raw))
	for _, item := range raw {
		var rec eventRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		ev, err := rec.event()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// --- Draws ------------------------------------------------------------------

func (s *Store) CreateDraw(ctx context.Context, draw contest.DrawRequest) error {
	payload, err := json.Marshal(toDrawRecord(draw))
	if err != nil {
		return err
	}
	created, err := s.client.HSetNX(ctx, s.drawsKey(), draw.ID, payload).Result()
	if err != nil {
		return err
	}
	if !created {
		return apperrors.Conflict("draw already exists").WithDetails("id", draw.ID)
	}
	return s.client.SAdd(ctx, s.statusKey(draw.Status), draw.ID).Err()
}

func (s *Store) UpdateDraw(ctx context.Context, draw contest.DrawRequest) error {
	existing, err := s.GetDraw(ctx, draw.ID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(toDrawRecord(draw))
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.drawsKey(), draw.ID, payload)
		if existing.Status != draw.Status {
			pipe.SRem(ctx, s.statusKey(existing.Status), draw.ID)
			pipe.SAdd(ctx, s.statusKey(draw.Status), draw.ID)
		}
		return nil
	})
	return err
}

func (s *Store) GetDraw(ctx context.Context, id string) (contest.DrawRequest, error) {
	raw, err := s.client.HGet(ctx, s.drawsKey(), id).Result()
	if errors.Is(err, redis.Nil) {
		return contest.DrawRequest{}, contest.ErrDrawNotFound.WithDetails("id", id)
	}
	if err != nil {
		return contest.DrawRequest{}, err
	}
	return decodeDraw(raw)
}

func (s *Store) ListDrawsByStatus(ctx context.Context, status contest.DrawStatus) ([]contest.DrawRequest, error) {
	ids, err := s.client.SMembers(ctx, s.statusKey(status)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	values, err := s.client.HMGet(ctx, s.drawsKey(), ids...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]contest.DrawRequest, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		d, err := decodeDraw(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	sortByRequestedAt(out)
	return out, nil
}

func decodeDraw(raw string) (contest.DrawRequest, error) {
	var rec drawRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return contest.DrawRequest{}, fmt.Errorf("decode draw: %w", err)
	}
	return rec.draw()
}

func sortByRequestedAt(draws []contest.DrawRequest) {
	sort.Slice(draws, func(i, j int) bool { return draws[i].RequestedAt.Before(draws[j].RequestedAt) })
}

// --- Records ----------------------------------------------------------------

type eventRecord struct {
	Seq          int64     `json:"seq"`
	Type         string    `json:"type"`
	Participant  string    `json:"participant,omitempty"`
	Amount       string    `json:"amount"`
	EntriesDelta string    `json:"entries_delta"`
	UnitsDelta   string    `json:"units_delta"`
	RequestID    string    `json:"request_id,omitempty"`
	Round        uint64    `json:"round"`
	CreatedAt    time.Time `json:"created_at"`
}

func toEventRecord(ev contest.Event) eventRecord {
	return eventRecord{
		Seq:          ev.Seq,
		Type:         string(ev.Type),
		Participant:  string(ev.Participant),
		Amount:       contest.FormatAmount(ev.Amount),
		EntriesDelta: contest.FormatAmount(ev.EntriesDelta),
		UnitsDelta:   contest.FormatAmount(ev.UnitsDelta),
		RequestID:    ev.RequestID,
		Round:        ev.Round,
		CreatedAt:    ev.CreatedAt,
	}
}

func (r eventRecord) event() (contest.Event, error) {
	ev := contest.Event{
		Seq:         r.Seq,
		Type:        contest.EventType(r.Type),
		Participant: contest.ParticipantID(r.Participant),
		RequestID:   r.RequestID,
		Round:       r.Round,
		CreatedAt:   r.CreatedAt,
	}
	var err error
	if ev.Amount, err = contest.ParseAmount(r.Amount); err != nil {
		return contest.Event{}, err
	}
	if ev.EntriesDelta, err = contest.ParseAmount(r.EntriesDelta); err != nil {
		return contest.Event{}, err
	}
	if ev.UnitsDelta, err = contest.ParseAmount(r.UnitsDelta); err != nil {
		return contest.Event{}, err
	}
	return ev, nil
}

type drawRecord struct {
	ID          string     `json:"id"`
	Round       uint64     `json:"round"`
	Seed        string     `json:"seed,omitempty"`
	Fee         int64      `json:"fee"`
	Status      string     `json:"status"`
	RandomValue string     `json:"random_value,omitempty"`
	Normalized  string     `json:"normalized,omitempty"`
	WinnerIndex int        `json:"winner_index,omitempty"`
	Winner      string     `json:"winner,omitempty"`
	Reward      string     `json:"reward"`
	Error       string     `json:"error,omitempty"`
	RequestedAt time.Time  `json:"requested_at"`
	FulfilledAt *time.Time `json:"fulfilled_at,omitempty"`
}

func toDrawRecord(d contest.DrawRequest) drawRecord {
	rec := drawRecord{
		ID:          d.ID,
		Round:       d.Round,
		Seed:        d.Seed,
		Fee:         d.Fee,
		Status:      string(d.Status),
		WinnerIndex: d.WinnerIndex,
		Winner:      string(d.Winner),
		Reward:      contest.FormatAmount(d.Reward),
		Error:       d.Error,
		RequestedAt: d.RequestedAt,
		FulfilledAt: d.FulfilledAt,
	}
	if d.RandomValue != nil {
		rec.RandomValue = contest.FormatAmount(d.RandomValue)
	}
	if d.Normalized != nil {
		rec.Normalized = contest.FormatAmount(d.Normalized)
	}
	return rec
}

func (r drawRecord) draw() (contest.DrawRequest, error) {
	d := contest.DrawRequest{
		ID:          r.ID,
		Round:       r.Round,
		Seed:        r.Seed,
		Fee:         r.Fee,
		Status:      contest.DrawStatus(r.Status),
		WinnerIndex: r.WinnerIndex,
		Winner:      contest.ParticipantID(r.Winner),
		Error:       r.Error,
		RequestedAt: r.RequestedAt,
		FulfilledAt: r.FulfilledAt,
	}
	var err error
	if d.Reward, err = contest.ParseAmount(r.Reward); err != nil {
		return contest.DrawRequest{}, err
	}
	if r.RandomValue != "" {
		if d.RandomValue, err = contest.ParseAmount(r.RandomValue); err != nil {
			return contest.DrawRequest{}, err
		}
	}
	if r.Normalized != "" {
		if d.Normalized, err = contest.ParseAmount(r.Normalized); err != nil {
			return contest.DrawRequest{}, err
		}
	}
	return d, nil
}

// --- Asset ledger -----------------------------------------------------------

func (s *Store) LoadAssetState(ctx context.Context) ([]byte, error) {
	raw, err := s.client.Get(ctx, s.assetKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return raw, err
}

func (s *Store) SaveAssetState(ctx context.Context, state []byte) error {
	return s.client.Set(ctx, s.assetKey(), state, 0).Err()
}
