// Package reminder runs the background reminder jobs. A fixed tick
// compares the externally-resolved wall time against every registered
// weekly trigger and fans matching payloads out to all senders seen so
// far. Jobs live only in memory and vanish on restart.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/durkdan/messenger-gpt/internal/events"
	"github.com/durkdan/messenger-gpt/internal/platform"
	"github.com/durkdan/messenger-gpt/internal/registry"
)

// ErrInvalidWeekday reports a .schedule weekday that is not one of the
// five business days. No job is created when it is returned.
var ErrInvalidWeekday = errors.New("reminder: weekday must be Monday through Friday")

// fireHour and fireMinute fix the time-of-day for weekly jobs. Both
// the built-in duty reminder and user-scheduled jobs fire at 07:30.
const (
	fireHour   = 7
	fireMinute = 30
)

// timeFetchTimeout bounds the external time lookup inside one tick.
const timeFetchTimeout = 10 * time.Second

// defaultDutyMessage is the built-in Monday reminder payload.
const defaultDutyMessage = "🚜 Reminder: You're on classroom cleaning duty today! Don't forget to check your task list with .list show"

// Job is one recurring weekly trigger.
type Job struct {
	ID        string
	Weekday   time.Weekday
	Hour      int
	Minute    int
	Payload   string
	Active    bool
	CreatedBy string
	CreatedAt time.Time
}

// TimeSource resolves the current wall time. *timeapi.Client satisfies
// it; tests inject a fixed clock.
type TimeSource interface {
	Now(ctx context.Context) (time.Time, error)
}

// Scheduler polls the job registry on a fixed tick. It shares the
// sender registry with the command router and reads a fresh snapshot
// at fire time, so senders who joined after a job was registered still
// receive future firings.
type Scheduler struct {
	clock   TimeSource
	senders *registry.Registry
	deliver platform.Sender
	logger  *slog.Logger
	bus     *events.Bus
	tick    time.Duration

	mu        sync.Mutex
	order     []string
	jobs      map[string]*Job
	lastFired map[string]string // job ID -> minute key of last firing
}

// New creates a scheduler with the built-in Monday 07:30 classroom
// duty job already registered. dutyMessage overrides the built-in
// payload; empty keeps the default.
func New(clock TimeSource, senders *registry.Registry, deliver platform.Sender, tick time.Duration, dutyMessage string, logger *slog.Logger, bus *events.Bus) *Scheduler {
	if tick <= 0 {
		tick = time.Minute
	}
	if dutyMessage == "" {
		dutyMessage = defaultDutyMessage
	}

	s := &Scheduler{
		clock:     clock,
		senders:   senders,
		deliver:   deliver,
		logger:    logger,
		bus:       bus,
		tick:      tick,
		jobs:      make(map[string]*Job),
		lastFired: make(map[string]string),
	}
	s.register(&Job{
		ID:        newID(),
		Weekday:   time.Monday,
		Hour:      fireHour,
		Minute:    fireMinute,
		Payload:   dutyMessage,
		Active:    true,
		CreatedBy: "system",
		CreatedAt: time.Now(),
	})
	return s
}

// ParseWeekday maps a case-insensitive business-day name to its
// time.Weekday. Weekend days and anything unrecognized return
// ErrInvalidWeekday.
func ParseWeekday(name string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, name)
	}
}

// RegisterWeekly validates the weekday and registers a recurring job
// firing at 07:30 on that day. On an invalid weekday no job is created
// and ErrInvalidWeekday is returned.
func (s *Scheduler) RegisterWeekly(weekday, payload, createdBy string) (Job, error) {
	day, err := ParseWeekday(weekday)
	if err != nil {
		return Job{}, err
	}

	job := &Job{
		ID:        newID(),
		Weekday:   day,
		Hour:      fireHour,
		Minute:    fireMinute,
		Payload:   strings.TrimSpace(payload),
		Active:    true,
		CreatedBy: createdBy,
		CreatedAt: time.Now(),
	}
	s.register(job)

	s.logger.Info("reminder job registered",
		"id", job.ID,
		"weekday", job.Weekday.String(),
		"created_by", createdBy,
	)
	s.bus.Publish(events.Event{
		Source: events.SourceScheduler,
		Kind:   events.KindJobRegistered,
		Data:   map[string]any{"job_id": job.ID, "weekday": job.Weekday.String(), "created_by": createdBy},
	})
	return *job, nil
}

func (s *Scheduler) register(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
}

// Jobs returns copies of all registered jobs in registration order.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.jobs[id])
	}
	return out
}

// Run executes the tick loop until ctx is cancelled. Nothing inside a
// tick is allowed to take the loop down: time-source failures skip the
// tick, delivery failures are logged per recipient.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("reminder scheduler started", "tick", s.tick.String())
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scheduler stopped")
			return
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

// runTick resolves the current time and fires every matching job once
// per matching minute.
func (s *Scheduler) runTick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, timeFetchTimeout)
	defer cancel()

	now, err := s.clock.Now(tickCtx)
	if err != nil {
		s.logger.Warn("skipping tick, time source unavailable", "error", err)
		s.bus.Publish(events.Event{
			Source: events.SourceScheduler,
			Kind:   events.KindTickSkipped,
			Data:   map[string]any{"error": err.Error()},
		})
		return
	}

	for _, job := range s.dueJobs(now) {
		s.fire(ctx, job)
	}
}

// dueJobs selects active jobs matching now's weekday and hh:mm that
// have not already fired in this minute, and marks them fired. The
// mark happens under the lock so two overlapping ticks cannot both
// claim the same firing.
func (s *Scheduler) dueJobs(now time.Time) []Job {
	minuteKey := now.Format("2006-01-02 15:04")

	s.mu.Lock()
	defer s.mu.Unlock()
	var due []Job
	for _, id := range s.order {
		job := s.jobs[id]
		if !job.Active {
			continue
		}
		if job.Weekday != now.Weekday() || job.Hour != now.Hour() || job.Minute != now.Minute() {
			continue
		}
		if s.lastFired[id] == minuteKey {
			continue
		}
		s.lastFired[id] = minuteKey
		due = append(due, *job)
	}
	return due
}

// fire fans the job payload out to every sender seen so far. Zero
// senders is a silent no-op.
func (s *Scheduler) fire(ctx context.Context, job Job) {
	recipients := s.senders.Snapshot()

	for _, id := range recipients {
		if err := s.deliver.Send(ctx, id, job.Payload); err != nil {
			s.logger.Warn("reminder delivery failed",
				"job_id", job.ID,
				"recipient", id,
				"error", err,
			)
		}
	}

	s.logger.Info("reminder fired",
		"job_id", job.ID,
		"weekday", job.Weekday.String(),
		"recipients", len(recipients),
	)
	s.bus.Publish(events.Event{
		Source: events.SourceScheduler,
		Kind:   events.KindReminderFired,
		Data:   map[string]any{"job_id": job.ID, "recipients": len(recipients)},
	})
}

// newID returns a UUIDv7, falling back to v4 if v7 fails.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
