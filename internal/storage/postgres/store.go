// Package postgres implements contest.Store on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/SAFERMOON/SAFERWINNING/internal/contest"
	apperrors "github.com/SAFERMOON/SAFERWINNING/internal/errors"
	"github.com/SAFERMOON/SAFERWINNING/internal/platform/migrations"
)

const uniqueViolation = "23505"

// Store implements contest.Store backed by PostgreSQL. It also keeps the
// token ledger snapshot in asset_state.
type Store struct {
	db *sqlx.DB
}

var _ contest.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

// Open connects to dsn and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := migrations.Apply(ctx, db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type eventRow struct {
	Seq          int64     `db:"seq"`
	Type         string    `db:"type"`
	Participant  string    `db:"participant"`
	Amount       string    `db:"amount"`
	EntriesDelta string    `db:"entries_delta"`
	UnitsDelta   string    `db:"units_delta"`
	RequestID    string    `db:"request_id"`
	Round        int64     `db:"round"`
	CreatedAt    time.Time `db:"created_at"`
}

type drawRow struct {
	ID          string         `db:"id"`
	Round       int64          `db:"round"`
	Seed        string         `db:"seed"`
	Fee         int64          `db:"fee"`
	Status      string         `db:"status"`
	RandomValue sql.NullString `db:"random_value"`
	Normalized  sql.NullString `db:"normalized"`
	WinnerIndex int            `db:"winner_index"`
	Winner      string         `db:"winner"`
	Reward      string         `db:"reward"`
	Error       string         `db:"error"`
	RequestedAt time.Time      `db:"requested_at"`
	FulfilledAt sql.NullTime   `db:"fulfilled_at"`
}

const drawColumns = `id, round, seed, fee, status, random_value, normalized, winner_index, winner, reward, error, requested_at, fulfilled_at`

// --- Journal ----------------------------------------------------------------

func (s *Store) AppendEvent(ctx context.Context, ev contest.Event) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO contest_events (seq, type, participant, amount, entries_delta, units_delta, request_id, round, created_at)
		VALUES (:seq, :type, :participant, :amount, :entries_delta, :units_delta, :request_id, :round, :created_at)
	`, toEventRow(ev))
	if isUniqueViolation(err) {
		return apperrors.Conflict("event already recorded").WithDetails("seq", ev.Seq)
	}
	return err
}

func (s *Store) ListEvents(ctx context.Context, afterSeq int64, limit int) ([]contest.Event, error) {
	query := `
		SELECT seq, type, participant, amount, entries_delta, units_delta, request_id, round, created_at
		FROM contest_events
		WHERE seq > $1
		ORDER BY seq
	`
	args := []interface{}{afterSeq}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]contest.Event, 0, len(rows))
	for _, row := range rows {
		ev, err := row.event()
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", row.Seq, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// --- Draws ------------------------------------------------------------------

func (s *Store) CreateDraw(ctx context.Context, draw contest.DrawRequest) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO contest_draws (`+drawColumns+`)
		VALUES (:id, :round, :seed, :fee, :status, :random_value, :normalized, :winner_index, :winner, :reward, :error, :requested_at, :fulfilled_at)
	`, toDrawRow(draw))
	if isUniqueViolation(err) {
		return apperrors.Conflict("draw already exists").WithDetails("id", draw.ID)
	}
	return err
}

func (s *Store) UpdateDraw(ctx context.Context, draw contest.DrawRequest) error {
	result, err := s.db.NamedExecContext(ctx, `
		UPDATE contest_draws
		SET status = :status, random_value = :random_value, normalized = :normalized,
			winner_index = :winner_index, winner = :winner, reward = :reward,
			error = :error, fulfilled_at = :fulfilled_at
		WHERE id = :id
	`, toDrawRow(draw))
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return contest.ErrDrawNotFound.WithDetails("id", draw.ID)
	}
	return nil
}

func (s *Store) GetDraw(ctx context.Context, id string) (contest.DrawRequest, error) {
	var row drawRow
	err := s.db.GetContext(ctx, &row, `SELECT `+drawColumns+` FROM contest_draws WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return contest.DrawRequest{}, contest.ErrDrawNotFound.WithDetails("id", id)
	}
	if err != nil {
		return contest.DrawRequest{}, err
	}
	return row.draw()
}

func (s *Store) ListDrawsByStatus(ctx context.Context, status contest.DrawStatus) ([]contest.DrawRequest, error) {
	var rows []drawRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT `+drawColumns+`
		FROM contest_draws
		WHERE status = $1
		ORDER BY requested_at
	`, string(status)); err != nil {
		return nil, err
	}
	out := make([]contest.DrawRequest, 0, len(rows))
	for _, row := range rows {
		d, err := row.draw()
		if err != nil {
			return nil, fmt.Errorf("draw %s: %w", row.ID, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// --- Asset ledger -----------------------------------------------------------

// The ledger is one row; assetStateID pins it.
const assetStateID = 1

func (s *Store) LoadAssetState(ctx context.Context) ([]byte, error) {
	var state string
	err := s.db.GetContext(ctx, &state, `SELECT state FROM asset_state WHERE id = $1`, assetStateID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(state), nil
}

func (s *Store) SaveAssetState(ctx context.Context, state []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO asset_state (id, state, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
	`, assetStateID, string(state), time.Now().UTC())
	return err
}

// --- Row mapping ------------------------------------------------------------

func toEventRow(ev contest.Event) eventRow {
	return eventRow{
		Seq:          ev.Seq,
		Type:         string(ev.Type),
		Participant:  string(ev.Participant),
		Amount:       contest.FormatAmount(ev.Amount),
		EntriesDelta: contest.FormatAmount(ev.EntriesDelta),
		UnitsDelta:   contest.FormatAmount(ev.UnitsDelta),
		RequestID:    ev.RequestID,
		Round:        int64(ev.Round),
		CreatedAt:    ev.CreatedAt,
	}
}

func (r eventRow) event() (contest.Event, error) {
	amount, err := contest.ParseAmount(r.Amount)
	if err != nil {
		return contest.Event{}, err
	}
	entries, err := contest.ParseAmount(r.EntriesDelta)
	if err != nil {
		return contest.Event{}, err
	}
	units, err := contest.ParseAmount(r.UnitsDelta)
	if err != nil {
		return contest.Event{}, err
	}
	return contest.Event{
		Seq:          r.Seq,
		Type:         contest.EventType(r.Type),
		Participant:  contest.ParticipantID(r.Participant),
		Amount:       amount,
		EntriesDelta: entries,
		UnitsDelta:   units,
		RequestID:    r.RequestID,
		Round:        uint64(r.Round),
		CreatedAt:    r.CreatedAt.UTC(),
	}, nil
}

func toDrawRow(d contest.DrawRequest) drawRow {
	row := drawRow{
		ID:          d.ID,
		Round:       int64(d.Round),
		Seed:        d.Seed,
		Fee:         d.Fee,
		Status:      string(d.Status),
		RandomValue: nullAmount(d.RandomValue),
		Normalized:  nullAmount(d.Normalized),
		WinnerIndex: d.WinnerIndex,
		Winner:      string(d.Winner),
		Reward:      contest.FormatAmount(d.Reward),
		Error:       d.Error,
		RequestedAt: d.RequestedAt,
	}
	if d.FulfilledAt != nil {
		row.FulfilledAt = sql.NullTime{Time: *d.FulfilledAt, Valid: true}
	}
	return row
}

func (r drawRow) draw() (contest.DrawRequest, error) {
	reward, err := contest.ParseAmount(r.Reward)
	if err != nil {
		return contest.DrawRequest{}, err
	}
	d := contest.DrawRequest{
		ID:          r.ID,
		Round:       uint64(r.Round),
		Seed:        r.Seed,
		Fee:         r.Fee,
		Status:      contest.DrawStatus(r.Status),
		WinnerIndex: r.WinnerIndex,
		Winner:      contest.ParticipantID(r.Winner),
		Reward:      reward,
		Error:       r.Error,
		RequestedAt: r.RequestedAt.UTC(),
	}
	if d.RandomValue, err = parseNull(r.RandomValue); err != nil {
		return contest.DrawRequest{}, err
	}
	if d.Normalized, err = parseNull(r.Normalized); err != nil {
		return contest.DrawRequest{}, err
	}
	if r.FulfilledAt.Valid {
		t := r.FulfilledAt.Time.UTC()
		d.FulfilledAt = &t
	}
	return d, nil
}

func nullAmount(v *uint256.Int) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: contest.FormatAmount(v), Valid: true}
}

func parseNull(s sql.NullString) (*uint256.Int, error) {
	if !s.Valid {
		return nil, nil
	}
	return contest.ParseAmount(s.String)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
