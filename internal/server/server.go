package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/articgate/internal/gateway"
	"github.com/danmuck/articgate/internal/handles"
	"github.com/danmuck/articgate/internal/native"
	"github.com/danmuck/articgate/internal/observability"
	"github.com/danmuck/articgate/internal/protocol/frame"
	"github.com/danmuck/articgate/internal/protocol/session"
	"github.com/danmuck/articgate/internal/rpc"
	"github.com/rs/zerolog/log"
)

// Fault reasons reported in fault frames and metrics.
const (
	FaultUnknownMethod  = "unknown_method"
	FaultAborted        = "aborted"
	FaultMalformed      = "malformed_request"
	FaultSessionRefused = "session_refused"
)

// Config is the gateway daemon transport configuration.
type Config struct {
	ListenAddr string
	Session    session.Config
	Frame      frame.Limits
	Gateway    gateway.Config
}

func DefaultConfig() Config {
	return Config{
		ListenAddr: ":5543",
		Session:    session.DefaultConfig(),
		Frame:      frame.DefaultLimits(),
		Gateway:    gateway.DefaultConfig(),
	}
}

// ServicesFunc provides the host services for one new session.
type ServicesFunc func() (native.Services, error)

// Status is a point-in-time view of the daemon.
type Status struct {
	Listening bool            `json:"listening"`
	Remote    string          `json:"remote,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Handles   []handles.Entry `json:"handles"`
	Served    uint64          `json:"sessions_served"`
}

// Service accepts callers and runs their sessions.
type Service struct {
	cfg      Config
	services ServicesFunc

	listening atomic.Bool
	served    atomic.Uint64

	mu     sync.Mutex
	active *gateway.Session
	conn   net.Conn
}

func NewService(cfg Config, services ServicesFunc) *Service {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultConfig().ListenAddr
	}
	if cfg.Frame.MaxPayloadBytes == 0 {
		cfg.Frame = frame.DefaultLimits()
	}
	return &Service{cfg: cfg, services: services}
}

// ListenAndServe listens on the configured address and serves until ctx ends.
func (s *Service) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("server.ListenAndServe listening")
	return s.Serve(ctx, ln)
}

// Serve accepts callers on ln one at a time until ctx ends.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	s.listening.Store(true)
	defer s.listening.Store(false)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.closeActiveConn()
			_ = ln.Close()
		case <-stop:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.handleConn(ctx, conn)
	}
}

func (s *Service) Listening() bool {
	return s.listening.Load()
}

// Snapshot reports the current caller and its open handles.
func (s *Service) Snapshot() Status {
	st := Status{Listening: s.Listening(), Served: s.served.Load(), Handles: []handles.Entry{}}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		st.SessionID = s.active.ID
		st.Handles = s.active.Handles()
	}
	if s.conn != nil {
		st.Remote = s.conn.RemoteAddr().String()
	}
	return st
}

func (s *Service) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()

	svc, err := s.services()
	if err != nil {
		log.Error().Str("remote", remote).Err(err).Msg("server.handleConn host services unavailable")
		observability.RecordFault(FaultSessionRefused)
		return
	}
	sess, err := gateway.NewSession(svc, s.cfg.Gateway)
	if err != nil {
		log.Error().Str("remote", remote).Err(err).Msg("server.handleConn session setup failed")
		observability.RecordFault(FaultSessionRefused)
		return
	}
	if err := sess.Start(); err != nil {
		log.Error().Str("remote", remote).Str("session", sess.ID).Err(err).Msg("server.handleConn session refused")
		return
	}

	s.setActive(sess, conn)
	s.served.Add(1)
	log.Info().Str("remote", remote).Str("session", sess.ID).Msg("server.handleConn caller connected")
	defer func() {
		released := sess.Teardown()
		s.setActive(nil, nil)
		log.Info().Str("remote", remote).Str("session", sess.ID).Int("released", released).Msg("server.handleConn caller disconnected")
	}()
	// Shutdown may have fired before conn became active.
	if ctx.Err() != nil {
		return
	}

	reader := bufio.NewReader(conn)
	for {
		if d := s.cfg.Session.IdleTimeout; d > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(d))
		}
		fr, err := frame.ReadFrame(reader, s.cfg.Frame)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Warn().Str("session", sess.ID).Err(err).Msg("server.handleConn read frame")
			}
			return
		}
		if s.cfg.Session.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Time{})
		}

		out, err := s.serveFrame(ctx, sess, fr)
		if err != nil {
			log.Error().Str("session", sess.ID).Err(err).Msg("server.handleConn encode reply")
			return
		}
		if d := s.cfg.Session.WriteTimeout; d > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(d))
		}
		if _, err := conn.Write(out); err != nil {
			log.Warn().Str("session", sess.ID).Err(err).Msg("server.handleConn write reply")
			return
		}
	}
}

// serveFrame turns one request frame into reply bytes: a response frame for
// sealed calls, a fault frame otherwise.
func (s *Service) serveFrame(ctx context.Context, sess *gateway.Session, fr frame.Frame) ([]byte, error) {
	id := fr.Header.MessageID
	req, err := session.DecodeRequestFrame(fr)
	if err != nil {
		observability.RecordFault(FaultMalformed)
		return session.EncodeFaultFrame(id, fmt.Sprintf("%s: %v", FaultMalformed, err))
	}
	resp, err := sess.Dispatch(ctx, req)
	if err != nil {
		reason := faultReason(err)
		observability.RecordFault(reason)
		return session.EncodeFaultFrame(id, fmt.Sprintf("%s: %v", reason, err))
	}
	out, err := session.EncodeResponseFrame(id, resp)
	if errors.Is(err, frame.ErrPayloadTooLarge) {
		observability.RecordFault(FaultAborted)
		return session.EncodeFaultFrame(id, fmt.Sprintf("%s: %v", FaultAborted, err))
	}
	return out, err
}

func faultReason(err error) string {
	switch {
	case errors.Is(err, rpc.ErrUnknownMethod):
		return FaultUnknownMethod
	case errors.Is(err, rpc.ErrCallAborted):
		return FaultAborted
	default:
		return FaultSessionRefused
	}
}

func (s *Service) setActive(sess *gateway.Session, conn net.Conn) {
	s.mu.Lock()
	s.active = sess
	s.conn = conn
	s.mu.Unlock()
}

func (s *Service) closeActiveConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
}
