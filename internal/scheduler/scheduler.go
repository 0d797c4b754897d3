// Package scheduler implements the cooperative periodic-job loop: traceroute rotation, auto-announce, node DB refresh, retention
// sweep and version check, each described by a {name, interval, enabled,
// nextRun, fn} record and ticked from one goroutine.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meshmonitor/meshmonitor/internal/session"
)

// Sender is the slice of *session.Session the scheduler depends on, kept as
// an interface so tests can substitute a fake without standing up a real
// transport.
type Sender interface {
	State() session.State
	Send(ctx context.Context, packetID uint32, payload []byte) error
	SendNoAck(ctx context.Context, payload []byte) error
}

// Job is one named periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Enabled  bool
	NextRun  time.Time
	Fn       func(ctx context.Context) error
}

// tickInterval is how often the loop checks for due jobs; independent of any
// individual job's own interval.
const tickInterval = time.Second

// Scheduler runs Jobs on one cooperative loop. All jobs no-op while the
// session isn't Connected; a session transition away from
// Connected cancels any job-issued outbound command still in flight, but
// never a user-issued one, since user commands never go through this type.
type Scheduler struct {
	sender Sender
	log    *zap.Logger

	mu   sync.Mutex
	jobs []*Job

	inFlightMu sync.Mutex
	inFlight   map[string]context.CancelFunc
}

// New builds an empty Scheduler; call Add for each job before Run.
func New(sender Sender, log *zap.Logger) *Scheduler {
	return &Scheduler{
		sender:   sender,
		log:      log,
		inFlight: make(map[string]context.CancelFunc),
	}
}

// Add registers a job. NextRun defaults to now+Interval if zero.
func (s *Scheduler) Add(j *Job) {
	if j.NextRun.IsZero() {
		j.NextRun = time.Now().Add(j.Interval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, j)
}

// Jobs returns a snapshot of the registered jobs, for the settings/API
// surface to report each job's interval, enabled flag and next run. No
// last-run time is recorded.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, len(s.jobs))
	for i, j := range s.jobs {
		out[i] = *j
	}
	return out
}

// Run blocks, ticking once a second and firing any due, enabled job while
// the session is connected, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	if s.sender.State() != session.Connected {
		return
	}

	s.mu.Lock()
	due := make([]*Job, 0, 1)
	for _, j := range s.jobs {
		if j.Enabled && !now.Before(j.NextRun) {
			j.NextRun = now.Add(j.Interval)
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		s.runJob(ctx, j)
	}
}

func (s *Scheduler) runJob(ctx context.Context, j *Job) {
	jobCtx, cancel := context.WithCancel(ctx)
	s.inFlightMu.Lock()
	s.inFlight[j.Name] = cancel
	s.inFlightMu.Unlock()
	defer func() {
		s.inFlightMu.Lock()
		delete(s.inFlight, j.Name)
		s.inFlightMu.Unlock()
		cancel()
	}()

	if err := j.Fn(jobCtx); err != nil {
		s.log.Warn("scheduler: job failed", zap.String("job", j.Name), zap.Error(err))
	}
}

// CancelInFlight cancels every currently-running job-issued command. The
// gateway calls this on a session transition away from Connected; it never
// touches commands issued directly by a user (those aren't tracked here).
func (s *Scheduler) CancelInFlight() {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	for name, cancel := range s.inFlight {
		cancel()
		delete(s.inFlight, name)
	}
}

// OldestHeardWindow bounds how recently a node must have been heard to be a
// traceroute-rotation candidate; nodes silent longer than this are assumed
// gone rather than merely due.
const OldestHeardWindow = 24 * time.Hour
