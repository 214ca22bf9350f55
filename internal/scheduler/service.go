package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "mqwatch/pkg/logx"
)

var ErrStopped = errors.New("scheduler stopped")

// Service triggers jobs on cron or interval schedules.
//
// Each job carries its own skip-if-running guard; it applies to cron ticks,
// RunNow and the optional start-up run alike.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	c    *cron.Cron
	defs []*scheduleDef

	// runCtx is cancelled when Stop gives up waiting.
	runCtx    context.Context
	runCancel context.CancelFunc
	stopped   bool
	inflight  sync.WaitGroup
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log}
}

// Add registers a job. Schedules added after Start are live immediately.
func (s *Service) Add(name, schedule string, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.defs {
		if d.name == name {
			return fmt.Errorf("schedule %q already registered", name)
		}
	}
	d := &scheduleDef{name: name, spec: ps.CronSpec(), timeout: timeout, job: job}
	if s.c != nil {
		if err := s.addCronLocked(d); err != nil {
			return err
		}
	}
	s.defs = append(s.defs, d)
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", d.spec), logx.String("source", ps.Source))
	return nil
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	id, err := s.c.AddFunc(d.spec, func() { s.run(d, "cron") })
	if err != nil {
		return fmt.Errorf("schedule %q: %w", d.name, err)
	}
	d.entryID = id
	return nil
}

// Start starts triggering. It is idempotent. ctx bounds every run.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.c != nil {
		s.mu.Unlock()
		return nil
	}
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	loc, err := loadLocation(s.cfg.Timezone)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.loc = loc
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.c = cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{log: s.log}),
	)
	for _, d := range s.defs {
		if err := s.addCronLocked(d); err != nil {
			s.c = nil
			s.runCancel()
			s.mu.Unlock()
			return err
		}
	}
	s.c.Start()
	defs := append([]*scheduleDef(nil), s.defs...)
	runOnStart := s.cfg.RunOnStart
	s.mu.Unlock()

	s.log.Info("service started", logx.String("tz", loc.String()), logx.Int("schedules", len(defs)))
	if runOnStart {
		for _, d := range defs {
			go s.run(d, "start")
		}
	}
	return nil
}

// Stop stops triggering and waits for in-flight runs. If ctx expires first,
// the runs are cancelled and ctx.Err is returned.
func (s *Service) Stop(ctx context.Context) error {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.stopped = true
	cancel := s.runCancel
	s.mu.Unlock()

	if c != nil {
		c.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		s.log.Warn("stop timed out; cancelling in-flight runs")
	}
	if cancel != nil {
		cancel()
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
	return err
}

// RunNow triggers name synchronously. It reports false if a run was already
// in flight and this trigger was skipped.
func (s *Service) RunNow(name string) (bool, error) {
	s.mu.Lock()
	var def *scheduleDef
	for _, d := range s.defs {
		if d.name == name {
			def = d
			break
		}
	}
	s.mu.Unlock()
	if def == nil {
		return false, fmt.Errorf("unknown schedule %q", name)
	}
	return s.run(def, "manual"), nil
}

// run executes d once unless a previous run is still going.
func (s *Service) run(d *scheduleDef, trigger string) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	ctx := s.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	log := s.log.With(logx.String("schedule", d.name), logx.String("trigger", trigger))
	if !d.state.tryAcquire() {
		d.statsMu.Lock()
		d.stats.Skipped++
		d.statsMu.Unlock()
		log.Warn("run skipped: previous run still in progress")
		return false
	}
	defer d.state.release()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	err := safeCall(ctx, d.job)
	took := time.Since(start)

	d.statsMu.Lock()
	d.stats.Runs++
	d.stats.LastRun = start
	d.stats.LastTook = took
	d.stats.LastErr = ""
	if err != nil {
		d.stats.Failures++
		d.stats.LastErr = err.Error()
	}
	d.statsMu.Unlock()

	if err != nil {
		log.Error("run failed", logx.Duration("took", took), logx.Err(err))
	} else {
		log.Debug("run finished", logx.Duration("took", took))
	}
	return true
}

func safeCall(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return job(ctx)
}

// Snapshot lists schedules with their next/previous trigger times.
func (s *Service) Snapshot() []ScheduleInfo {
	s.mu.Lock()
	defs := append([]*scheduleDef(nil), s.defs...)
	ids := make([]cron.EntryID, len(defs))
	for i, d := range defs {
		ids[i] = d.entryID
	}
	c := s.c
	s.mu.Unlock()

	out := make([]ScheduleInfo, 0, len(defs))
	for i, d := range defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout}
		if c != nil && ids[i] != 0 {
			e := c.Entry(ids[i])
			it.Next = e.Next
			it.Prev = e.Prev
		}
		d.state.mu.Lock()
		it.Running = d.state.inflight
		d.state.mu.Unlock()
		d.statsMu.Lock()
		it.Stats = d.stats
		d.statsMu.Unlock()
		out = append(out, it)
	}
	return out
}

// Location is the effective timezone (local before Start).
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loc == nil {
		return time.Local
	}
	return s.loc
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", tz, err)
	}
	return loc, nil
}
