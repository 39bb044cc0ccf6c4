// Package automation triggers winner draws on a cron schedule.
package automation

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/SAFERMOON/SAFERWINNING/internal/contest"
	"github.com/SAFERMOON/SAFERWINNING/internal/logging"
	"github.com/SAFERMOON/SAFERWINNING/internal/metrics"
)

const triggerTimeout = 30 * time.Second

// DrawTrigger starts a draw.
type DrawTrigger interface {
	PickWinner(ctx context.Context, caller contest.ParticipantID, seed []byte) (contest.DrawRequest, error)
}

// Scheduler calls PickWinner as the owner on every tick. A failed tick is
// logged and counted; the next tick tries again.
type Scheduler struct {
	cron    *cron.Cron
	trigger DrawTrigger
	owner   contest.ParticipantID
	log     *logging.Logger
	now     func() time.Time
}

// New validates schedule (standard five-field cron syntax or a descriptor
// such as @hourly) and registers the job.
func New(schedule string, owner contest.ParticipantID, trigger DrawTrigger, log *logging.Logger) (*Scheduler, error) {
	if trigger == nil {
		return nil, fmt.Errorf("draw trigger is required")
	}
	if log == nil {
		log = logging.NewNop()
	}
	s := &Scheduler{
		cron:    cron.New(),
		trigger: trigger,
		owner:   owner,
		log:     log,
		now:     time.Now,
	}
	if _, err := s.cron.AddFunc(schedule, func() { _ = s.Trigger(context.Background()) }); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.WithField("entries", len(s.cron.Entries())).Info("draw scheduler started")
}

// Stop halts scheduling and waits for a running trigger to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Trigger runs one scheduled draw. Skips caused by contest state are not
// treated as failures.
func (s *Scheduler) Trigger(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, triggerTimeout)
	defer cancel()
	ctx = logging.WithTraceID(ctx, logging.NewTraceID())

	seed := make([]byte, 8)
	binary.BigEndian.PutUint64(seed, uint64(s.now().UnixNano()))

	draw, err := s.trigger.PickWinner(ctx, s.owner, seed)
	switch {
	case err == nil:
		metrics.RecordScheduledDraw(true)
		s.log.WithContext(ctx).WithField("request_id", draw.ID).Info("scheduled draw requested")
		return nil
	case isSkip(err):
		metrics.RecordScheduledDraw(true)
		s.log.WithContext(ctx).WithError(err).Info("scheduled draw skipped")
		return nil
	default:
		metrics.RecordScheduledDraw(false)
		s.log.WithContext(ctx).WithError(err).Error("scheduled draw failed")
		return err
	}
}

func isSkip(err error) bool {
	return errors.Is(err, contest.ErrNoEntries) ||
		errors.Is(err, contest.ErrDrawInProgress) ||
		errors.Is(err, contest.ErrContestClosed)
}
