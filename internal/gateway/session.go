package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/articgate/internal/handles"
	"github.com/danmuck/articgate/internal/native"
	"github.com/danmuck/articgate/internal/observability"
	"github.com/danmuck/articgate/internal/rpc"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrStartup    = errors.New("gateway: session start-up failed")
	ErrNotStarted = errors.New("gateway: session not started")
	ErrTornDown   = errors.New("gateway: session torn down")
)

// Config carries the per-deployment inputs handlers need.
type Config struct {
	Limits rpc.Limits
	// NIMHeader is the fixed header returned ahead of the system payload.
	NIMHeader []byte
}

func DefaultConfig() Config {
	return Config{Limits: rpc.DefaultLimits()}
}

// Session is the state of one caller from start-up to teardown.
type Session struct {
	ID string

	svc      native.Services
	cfg      Config
	handles  *handles.Table
	registry *rpc.Registry

	callMu   sync.Mutex
	stateMu  sync.RWMutex
	exheader []byte
	started  bool
	closed   bool

	startOnce    sync.Once
	startErr     error
	teardownOnce sync.Once
}

func NewSession(svc native.Services, cfg Config) (*Session, error) {
	if err := svc.Validate(); err != nil {
		return nil, err
	}
	if cfg.Limits.MaxBuffers == 0 && cfg.Limits.MaxResultBytes == 0 {
		cfg.Limits = rpc.DefaultLimits()
	}
	s := &Session{
		ID:      uuid.NewString(),
		svc:     svc,
		cfg:     cfg,
		handles: handles.NewTable(svc.FS),
	}
	registry, err := rpc.NewRegistry(cfg.Limits, s.methods()...)
	if err != nil {
		return nil, err
	}
	s.registry = registry
	return s, nil
}

// Start captures the exheader snapshot. It runs once; later calls return
// the first result.
func (s *Session) Start() error {
	s.startOnce.Do(func() {
		data, err := s.svc.Loader.LastApplicationExHeader()
		if err == nil && len(data) != native.ExHeaderSize {
			err = fmt.Errorf("exheader is %d bytes, want %d", len(data), native.ExHeaderSize)
		}
		if err != nil {
			log.Error().Str("session", s.ID).Err(err).Msg("gateway.Start failed to capture exheader")
			s.startErr = fmt.Errorf("%w: %v", ErrStartup, err)
			observability.RecordSessionStart(false)
			return
		}
		s.stateMu.Lock()
		s.exheader = append([]byte(nil), data...)
		s.started = true
		s.stateMu.Unlock()
		observability.RecordSessionStart(true)
		log.Info().Str("session", s.ID).Int("methods", s.registry.Len()).Msg("gateway.Start ready")
	})
	return s.startErr
}

// Teardown releases every handle the caller left open. Only the first call
// does any work; it returns the number of handles released.
func (s *Session) Teardown() int {
	released := 0
	s.teardownOnce.Do(func() {
		s.callMu.Lock()
		defer s.callMu.Unlock()

		s.stateMu.Lock()
		wasStarted := s.started
		s.closed = true
		s.stateMu.Unlock()

		released = s.handles.ReleaseAll()
		if wasStarted {
			observability.RecordSessionEnd(released)
		}
		log.Info().Str("session", s.ID).Int("released", released).Msg("gateway.Teardown complete")
	})
	return released
}

// Dispatch runs one call. Calls are serialized per session.
func (s *Session) Dispatch(ctx context.Context, req rpc.Request) (rpc.Response, error) {
	s.stateMu.RLock()
	started, closed := s.started, s.closed
	s.stateMu.RUnlock()
	if closed {
		return rpc.Response{}, ErrTornDown
	}
	if !started {
		return rpc.Response{}, ErrNotStarted
	}

	s.callMu.Lock()
	defer s.callMu.Unlock()
	// Teardown may have run while this call waited.
	if s.isClosed() {
		return rpc.Response{}, ErrTornDown
	}

	start := time.Now()
	resp, err := s.registry.Dispatch(ctx, req)
	if err != nil {
		log.Warn().Str("session", s.ID).Str("method", req.Method).Err(err).Msg("gateway.Dispatch rejected")
		return rpc.Response{}, err
	}
	observability.RecordCall(req.Method, int32(resp.Status), time.Since(start))
	log.Debug().
		Str("session", s.ID).
		Str("method", req.Method).
		Str("status", resp.Status.String()).
		Int("buffers", len(resp.Buffers)).
		Msg("gateway.Dispatch sealed")
	return resp, nil
}

// Handles returns the handles the caller currently holds open.
func (s *Session) Handles() []handles.Entry {
	return s.handles.Snapshot()
}

// Methods returns the catalogue served by this session.
func (s *Session) Methods() []string {
	return s.registry.Methods()
}

func (s *Session) isClosed() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.closed
}

func (s *Session) snapshot() []byte {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.exheader
}
