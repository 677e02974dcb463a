package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	rtsup "remindbot/internal/runtime/supervisor"
	logx "remindbot/pkg/logx"
)

// Config controls the operational HTTP server.
//
// Security:
//   - Prefer binding to localhost (default).
//   - A non-loopback Addr is refused unless Token is set.
type Config struct {
	Addr  string
	Token string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Reminders is the read-only view of the reminder service served here.
type Reminders interface {
	Started() bool
	Ping(ctx context.Context) error
	Snapshot() reminder.SchedulerStats
}

// Events reports event bus counters.
type Events interface {
	Stats() eventbus.Stats
}

// Supervisors lists the running supervisors by component name.
type Supervisors interface {
	Snapshots() map[string]rtsup.Snapshot
}

type Server struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config

	rem    Reminders
	sups   Supervisors
	events Events

	engine *gin.Engine
	srv    *http.Server
	addr   string
	sup    *rtsup.Supervisor
}

func New(cfg Config, rem Reminders, sups Supervisors, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:8089"
	}
	s := &Server{
		cfg:  cfg,
		rem:  rem,
		sups: sups,
		log:  log.With(logx.String("comp", "httpapi")),
	}
	s.engine = s.routes()
	return s
}

// WithEvents adds /debug/events. Call before Start.
func (s *Server) WithEvents(ev Events) *Server {
	s.events = ev
	return s
}

// Handler exposes the routes without a listener (tests).
func (s *Server) Handler() http.Handler { return s.engine }

// Supervisor returns the serve loop supervisor, nil when not started.
func (s *Server) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// Addr is the bound listen address once serving.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) routes() *gin.Engine {
	e := gin.New()
	e.Use(gin.Recovery(), s.requestLog())
	if tok := strings.TrimSpace(s.cfg.Token); tok != "" {
		e.Use(bearerAuth(tok))
	}

	e.GET("/healthz", s.healthz)
	dbg := e.Group("/debug")
	dbg.GET("/reminders", s.reminders)
	dbg.GET("/supervisors", s.supervisors)
	dbg.GET("/events", s.eventStats)

	pp := dbg.Group("/pprof")
	pp.GET("/", gin.WrapF(hpprof.Index))
	pp.GET("/cmdline", gin.WrapF(hpprof.Cmdline))
	pp.GET("/profile", gin.WrapF(hpprof.Profile))
	pp.GET("/symbol", gin.WrapF(hpprof.Symbol))
	pp.GET("/trace", gin.WrapF(hpprof.Trace))
	pp.GET("/:name", gin.WrapF(hpprof.Index))
	return e
}

func (s *Server) healthz(c *gin.Context) {
	if s.rem == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.rem.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "store_unavailable", "error": err.Error()})
		return
	}
	if !s.rem.Started() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) reminders(c *gin.Context) {
	if s.rem == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "reminders unavailable"})
		return
	}
	c.JSON(http.StatusOK, s.rem.Snapshot())
}

func (s *Server) supervisors(c *gin.Context) {
	if s.sups == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, s.sups.Snapshots())
}

func (s *Server) eventStats(c *gin.Context) {
	if s.events == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event bus unavailable"})
		return
	}
	c.JSON(http.StatusOK, s.events.Stats())
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)),
		)
	}
}

// bearerAuth accepts "Authorization: Bearer <token>" or "?token=<token>".
func bearerAuth(tok string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if got := c.Query("token"); got != "" {
			if tokenMatch(got, tok) {
				c.Next()
				return
			}
			unauthorized(c)
			return
		}
		const p = "Bearer "
		if ah := c.GetHeader("Authorization"); strings.HasPrefix(ah, p) && tokenMatch(strings.TrimSpace(strings.TrimPrefix(ah, p)), tok) {
			c.Next()
			return
		}
		unauthorized(c)
	}
}

func tokenMatch(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// Start runs the server under a restart loop until Stop or ctx ends.
// Start is idempotent.
func (s *Server) Start(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.Addr)
	if s.cfg.Token == "" && !isLoopbackAddr(addr) {
		return errors.New("httpapi: non-loopback addr requires a token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return nil
	}
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		// optional observability; never take the bot down
		rtsup.WithCancelOnError(false),
	)
	s.sup.GoRestart("http.serve", s.serveOnce,
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
	return nil
}

// Stop shuts the server down gracefully within ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup, srv := s.sup, s.srv
	s.sup, s.srv, s.addr = nil, nil, ""
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	sup.Cancel()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			_ = srv.Close()
		}
	}
	err := sup.Wait(ctx)
	s.log.Info("http server stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) serveOnce(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		s.log.Error("http listen failed", logx.String("addr", s.cfg.Addr), logx.Err(err))
		return err
	}

	srv := &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	s.mu.Lock()
	s.srv = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("http server started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", s.cfg.Token != ""))
	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("http server exited unexpectedly")
	}
	return err
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
