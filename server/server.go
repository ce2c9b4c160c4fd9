// Package server exposes the Pumpkin runtime over Connect (HTTP/JSON):
// one-shot execution, long-lived sessions, and remote debugging.
package server

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/chazu/pumpkin/pkg/bytecode"
	"github.com/chazu/pumpkin/pkg/runtime"
)

var log = commonlog.GetLogger("pumpkin.server")

// DefaultMaxInstructions caps every server-side run when the configured
// limits leave the instruction count unlimited.
const DefaultMaxInstructions = 10_000_000

// PumpkinServer serves the ExecutionService, SessionService and
// DebugService on one mux.
type PumpkinServer struct {
	cfg      *serverConfig
	sessions *SessionStore
	debugs   *DebugStore
	mux      *http.ServeMux

	stopSweeper func()
}

// ServerOption configures a PumpkinServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	limits   bytecode.Limits
	modules  map[string]bytecode.Value
	store    *Store
	timeout  time.Duration
	debugTTL time.Duration
}

// WithLimits sets the execution fuses. Requests may lower them, never raise
// them.
func WithLimits(l bytecode.Limits) ServerOption {
	return func(c *serverConfig) { c.limits = l }
}

// WithModules sets the module registry available to every program.
func WithModules(modules map[string]bytecode.Value) ServerOption {
	return func(c *serverConfig) { c.modules = modules }
}

// WithStore persists sessions in store. Without it sessions live in memory.
func WithStore(store *Store) ServerOption {
	return func(c *serverConfig) { c.store = store }
}

// WithTimeout bounds the wall-clock time of each run.
func WithTimeout(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.timeout = d }
}

// WithDebugTTL sets how long an idle debug run is kept.
func WithDebugTTL(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.debugTTL = d }
}

// New creates a PumpkinServer, restoring persisted sessions if a store is
// configured.
func New(opts ...ServerOption) (*PumpkinServer, error) {
	cfg := &serverConfig{
		limits:   bytecode.DefaultLimits(),
		timeout:  10 * time.Second,
		debugTTL: 30 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.limits.MaxInstructions == 0 {
		cfg.limits.MaxInstructions = DefaultMaxInstructions
	}

	sessions := NewSessionStore(cfg.store, cfg.runtimeOptions(nil)...)
	if n, err := sessions.Restore(); err != nil {
		return nil, err
	} else if n > 0 {
		log.Noticef("restored %d sessions", n)
	}

	s := &PumpkinServer{
		cfg:      cfg,
		sessions: sessions,
		debugs:   NewDebugStore(),
		mux:      http.NewServeMux(),
	}

	handlerOpts := []connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(loggingInterceptor()),
	}
	for path, handler := range NewExecutionService(cfg).handlers(handlerOpts) {
		s.mux.Handle(path, handler)
	}
	for path, handler := range NewSessionService(cfg, sessions).handlers(handlerOpts) {
		s.mux.Handle(path, handler)
	}
	for path, handler := range NewDebugService(cfg, s.debugs).handlers(handlerOpts) {
		s.mux.Handle(path, handler)
	}

	// Sweep idle debug runs every few minutes.
	s.stopSweeper = s.debugs.StartSweeper(5*time.Minute, cfg.debugTTL)

	return s, nil
}

// Handler returns the HTTP handler serving every service.
func (s *PumpkinServer) Handler() http.Handler {
	return s.mux
}

// Sessions returns the server's session store.
func (s *PumpkinServer) Sessions() *SessionStore {
	return s.sessions
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *PumpkinServer) ListenAndServe(addr string) error {
	log.Noticef("Pumpkin server listening on %s", addr)
	log.Noticef("  Connect (HTTP/JSON): http://%s%s", addr, ExecuteProcedure)
	return http.ListenAndServe(addr, s.mux)
}

// Stop shuts down the sweeper and every worker.
func (s *PumpkinServer) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	s.debugs.Close()
	s.sessions.Close()
}

// runtimeOptions returns the options of one run, with req lowering the
// server's limits.
func (c *serverConfig) runtimeOptions(req *LimitsMessage) []runtime.Option {
	opts := []runtime.Option{runtime.WithLimits(c.effectiveLimits(req))}
	if len(c.modules) > 0 {
		opts = append(opts, runtime.WithModules(c.modules))
	}
	return opts
}

func (c *serverConfig) effectiveLimits(req *LimitsMessage) bytecode.Limits {
	l := c.limits
	if req == nil {
		return l
	}
	l.MaxInstructions = lower(l.MaxInstructions, req.MaxInstructions)
	l.MaxCallDepth = lower(l.MaxCallDepth, req.MaxCallDepth)
	l.MaxStack = lower(l.MaxStack, req.MaxStack)
	return l
}

// lower returns requested when it is set and tighter than current. A zero
// current means unlimited.
func lower(current, requested int) int {
	if requested <= 0 {
		return current
	}
	if current == 0 || requested < current {
		return requested
	}
	return current
}

// withTimeout applies the configured run timeout to ctx.
func (c *serverConfig) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func loggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			if err != nil {
				log.Infof("%s failed in %s: %v", req.Spec().Procedure, time.Since(start), err)
			} else {
				log.Infof("%s ok in %s", req.Spec().Procedure, time.Since(start))
			}
			return resp, err
		}
	}
}
