package monitor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mqwatch/internal/eventbus"
	logx "mqwatch/pkg/logx"
)

// Options tunes a Scanner. Zero values are valid.
type Options struct {
	// Workers bounds how many groups are evaluated concurrently. <=1 is sequential.
	Workers   int
	Formatter *Formatter
	Log       logx.Logger
	Bus       eventbus.Bus
}

// Scanner runs scan passes. RunPass must not be called concurrently with
// itself; the scheduler enforces that.
type Scanner struct {
	registry   Registry
	provider   StatusProvider
	dispatcher Dispatcher

	formatter *Formatter
	workers   int
	log       logx.Logger
	bus       eventbus.Bus
	newID     func() string
}

func NewScanner(reg Registry, prov StatusProvider, disp Dispatcher, opt Options) *Scanner {
	if opt.Log.IsZero() {
		opt.Log = logx.Nop()
	}
	if opt.Bus == nil {
		opt.Bus = eventbus.Nop()
	}
	if opt.Formatter == nil {
		opt.Formatter = NewFormatter("", nil)
	}
	if opt.Workers <= 0 {
		opt.Workers = 1
	}
	return &Scanner{
		registry:   reg,
		provider:   prov,
		dispatcher: disp,
		formatter:  opt.Formatter,
		workers:    opt.Workers,
		log:        opt.Log,
		bus:        opt.Bus,
		newID:      uuid.NewString,
	}
}

// passState accumulates counters; guarded by mu when workers > 1.
type passState struct {
	id     string
	mu     sync.Mutex
	report PassReport
}

func (p *passState) add(fn func(r *PassReport)) {
	p.mu.Lock()
	fn(&p.report)
	p.mu.Unlock()
}

// RunPass executes one full evaluation of all configured groups.
func (s *Scanner) RunPass(ctx context.Context) (rep PassReport) {
	id := s.newID()
	st := &passState{id: id, report: PassReport{ID: id, Started: time.Now()}}
	log := s.log.With(logx.String("pass", id))

	defer func() {
		st.mu.Lock()
		st.report.Took = time.Since(st.report.Started)
		rep = st.report
		st.mu.Unlock()
		s.bus.Publish(eventbus.Event{Type: eventbus.TypePassFinished, Data: rep})
	}()

	thresholds, err := s.registry.QueryAll(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrConfigUnavailable, err)
		st.report.Err = err.Error()
		log.Error("scan pass aborted", logx.Err(err))
		return
	}

	names := make([]string, 0, len(thresholds))
	for name := range thresholds {
		names = append(names, name)
	}
	sort.Strings(names)
	st.report.Groups = len(names)
	log.Debug("scan pass started", logx.Int("groups", len(names)), logx.Int("workers", s.workers))

	if s.workers <= 1 || len(names) <= 1 {
		for _, name := range names {
			if ctx.Err() != nil {
				st.report.Abandoned = true
				break
			}
			s.evaluateGroup(ctx, log, name, thresholds[name], st)
		}
	} else {
		s.runConcurrent(ctx, log, names, thresholds, st)
	}

	st.mu.Lock()
	sum := st.report
	st.mu.Unlock()
	fields := []logx.Field{
		logx.Int("groups", sum.Groups),
		logx.Int("evaluated", sum.Evaluated),
		logx.Int("lookup_failures", sum.LookupFailures),
		logx.Int("breaches", sum.Breaches),
		logx.Duration("took", time.Since(sum.Started)),
	}
	if sum.Abandoned {
		log.Warn("scan pass abandoned", fields...)
	} else {
		log.Info("scan pass finished", fields...)
	}
	return
}

func (s *Scanner) runConcurrent(ctx context.Context, log logx.Logger, names []string, thresholds map[string]ThresholdConfig, st *passState) {
	jobs := make(chan string)
	var wg sync.WaitGroup
	n := s.workers
	if n > len(names) {
		n = len(names)
	}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range jobs {
				s.evaluateGroup(ctx, log, name, thresholds[name], st)
			}
		}()
	}
	for _, name := range names {
		if ctx.Err() != nil {
			st.add(func(r *PassReport) { r.Abandoned = true })
			break
		}
		jobs <- name
	}
	close(jobs)
	wg.Wait()
}

func (s *Scanner) evaluateGroup(ctx context.Context, passLog logx.Logger, name string, t ThresholdConfig, st *passState) {
	log := passLog.With(logx.String("group", name))
	defer func() {
		// A panic here is a defect (e.g. a malformed Breach); keep the pass alive.
		if r := recover(); r != nil {
			log.Error("group evaluation panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	if t.Group == "" {
		t.Group = name
	}
	status, err := s.provider.QueryGroup(ctx, name)
	if err != nil {
		st.add(func(r *PassReport) { r.LookupFailures++ })
		log.Warn("group status lookup failed", logx.Err(fmt.Errorf("%w: %v", ErrStatusLookupFailed, err)))
		return
	}
	if status.Group == "" {
		status.Group = name
	}

	breach, breached := Evaluate(status, t)
	st.add(func(r *PassReport) { r.Evaluated++ })
	log.Info("group evaluated",
		logx.String("op", "look"),
		logx.Int("consumers", status.ConsumerCount),
		logx.Int64("backlog", status.BacklogTotal),
		logx.Int("min_consumers", t.MinConsumerCount),
		logx.Int64("max_backlog", t.MaxBacklogTotal),
		logx.Bool("breach", breached),
	)
	if !breached {
		return
	}

	log.Warn("threshold breached", logx.String("reason", breach.Reason.String()))
	text := s.formatter.Format(breach)
	res := s.dispatcher.Dispatch(ctx, text)
	st.add(func(r *PassReport) {
		r.Breaches++
		if len(res.Sent) > 0 {
			r.Dispatched++
		}
		r.ChannelErrors += len(res.Failed)
	})
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeBreach, Data: BreachEvent{
		PassID: st.id,
		Status: status,
		Reason: breach.Reason,
		Result: res,
	}})
}
