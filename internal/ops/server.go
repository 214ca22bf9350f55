// Package ops serves a small read-only HTTP surface for operators: liveness,
// the most recent scan pass and the profiling endpoints.
package ops

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"mqwatch/internal/eventbus"
	"mqwatch/internal/monitor"
	"mqwatch/internal/notify"
	"mqwatch/internal/runtime/supervisor"
	"mqwatch/internal/scheduler"
	logx "mqwatch/pkg/logx"
)

type Config struct {
	Addr  string
	Pprof bool
}

// Deps are read lazily on every /status request. Nil funcs are skipped.
type Deps struct {
	Bus       eventbus.Bus
	Channels  func() []string
	Schedules func() []scheduler.ScheduleInfo
	Tasks     func() []supervisor.TaskStats
	Log       logx.Logger
}

// Counters accumulate since process start.
type Counters struct {
	Passes           int64 `json:"passes"`
	Breaches         int64 `json:"breaches"`
	Delivered        int64 `json:"delivered"`
	DeliveryFailures int64 `json:"delivery_failures"`
}

type Status struct {
	Started   time.Time                `json:"started"`
	LastPass  *monitor.PassReport      `json:"last_pass,omitempty"`
	Counters  Counters                 `json:"counters"`
	Channels  []string                 `json:"channels"`
	Schedules []scheduler.ScheduleInfo `json:"schedules,omitempty"`
	Tasks     []supervisor.TaskStats   `json:"tasks,omitempty"`
}

type Server struct {
	cfg     Config
	deps    Deps
	log     logx.Logger
	engine  *gin.Engine
	started time.Time

	events <-chan eventbus.Event
	unsub  func()

	mu       sync.Mutex
	lastPass *monitor.PassReport
	counters Counters
	addr     string
}

func New(cfg Config, deps Deps) *Server {
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.Nop()
	}
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		log:     deps.Log.With(logx.String("comp", "ops")),
		started: time.Now(),
	}
	s.events, s.unsub = deps.Bus.Subscribe(64,
		eventbus.TypePassFinished, eventbus.TypeBreach,
		eventbus.TypeDelivered, eventbus.TypeDeliveryFailed,
	)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.GET("/healthz", s.healthz)
	r.GET("/status", s.status)
	if cfg.Pprof {
		g := r.Group("/debug/pprof")
		g.GET("/", gin.WrapF(pprof.Index))
		g.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		g.GET("/profile", gin.WrapF(pprof.Profile))
		g.GET("/symbol", gin.WrapF(pprof.Symbol))
		g.POST("/symbol", gin.WrapF(pprof.Symbol))
		g.GET("/trace", gin.WrapF(pprof.Trace))
		for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
			g.GET("/"+name, gin.WrapH(pprof.Handler(name)))
		}
	}
	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// Addr is the bound listen address once Run has started listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run listens on cfg.Addr and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	defer s.unsub()
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		// /debug/pprof/profile streams for up to 30s by default
		WriteTimeout: 60 * time.Second,
	}
	go s.track(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("ops server listening", logx.String("addr", s.Addr()), logx.Bool("pprof", s.cfg.Pprof))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
	}
	s.log.Info("ops server stopped")
	return nil
}

func (s *Server) track(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.events:
			if !ok {
				return
			}
			s.observe(ev)
		}
	}
}

func (s *Server) observe(ev eventbus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Type {
	case eventbus.TypePassFinished:
		if rep, ok := ev.Data.(monitor.PassReport); ok {
			s.lastPass = &rep
			s.counters.Passes++
		}
	case eventbus.TypeBreach:
		s.counters.Breaches++
	case eventbus.TypeDelivered:
		s.counters.Delivered++
	case eventbus.TypeDeliveryFailed:
		if _, ok := ev.Data.(notify.DeliveryEvent); ok {
			s.counters.DeliveryFailures++
		}
	}
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	s.mu.Lock()
	st := Status{Started: s.started, Counters: s.counters, Channels: []string{}}
	if s.lastPass != nil {
		rep := *s.lastPass
		st.LastPass = &rep
	}
	s.mu.Unlock()

	if s.deps.Channels != nil {
		st.Channels = s.deps.Channels()
	}
	if s.deps.Schedules != nil {
		st.Schedules = s.deps.Schedules()
	}
	if s.deps.Tasks != nil {
		st.Tasks = s.deps.Tasks()
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("ops request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.FullPath()),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)),
		)
	}
}
