// Package client is the caller side of the gateway transport.
package client

import (
	"bufio"
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/articgate/internal/protocol/frame"
	"github.com/danmuck/articgate/internal/protocol/session"
	"github.com/danmuck/articgate/internal/rpc"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddressRequired = errors.New("client: gateway address required")
	ErrClosed          = errors.New("client: connection closed")
	ErrMessageMismatch = errors.New("client: response message id mismatch")
)

type Config struct {
	Address string
	Session session.Config
	Frame   frame.Limits
}

func DefaultConfig() Config {
	return Config{
		Session: session.DefaultConfig(),
		Frame:   frame.DefaultLimits(),
	}
}

// Client holds one gateway connection. Calls are serialized.
type Client struct {
	cfg Config

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	nextID uint64
	closed bool
}

// Dial connects to the gateway, retrying with backoff up to
// Session.MaxConnectAttempts times (unbounded when zero).
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	if cfg.Frame.MaxPayloadBytes == 0 {
		cfg.Frame = frame.DefaultLimits()
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	dialer := net.Dialer{Timeout: cfg.Session.ConnectTimeout}

	var attempt int
	for {
		attempt++
		conn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
		if err == nil {
			return &Client{cfg: cfg, conn: conn, reader: bufio.NewReader(conn), nextID: 1}, nil
		}
		log.Warn().Int("attempt", attempt).Str("addr", cfg.Address).Err(err).Msg("client.Dial")
		if max := cfg.Session.MaxConnectAttempts; max > 0 && attempt >= max {
			return nil, err
		}
		timer := time.NewTimer(session.NextBackoffDelay(cfg.Session.Backoff, attempt, rng))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Call sends one request and waits for its reply. A fault reply is returned
// as a session.Fault error.
func (c *Client) Call(ctx context.Context, method string, params *rpc.Params) (rpc.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return rpc.Response{}, ErrClosed
	}

	id := c.nextID
	c.nextID++
	out, err := session.EncodeRequestFrame(id, rpc.Request{Method: method, Params: params.Encode()})
	if err != nil {
		return rpc.Response{}, err
	}

	ctxDeadline, _ := ctx.Deadline()
	_ = c.conn.SetWriteDeadline(earliest(ctxDeadline, c.cfg.Session.WriteTimeout))
	if _, err := c.conn.Write(out); err != nil {
		return rpc.Response{}, err
	}
	_ = c.conn.SetReadDeadline(earliest(ctxDeadline, c.cfg.Session.ReadTimeout))

	fr, err := frame.ReadFrame(c.reader, c.cfg.Frame)
	if err != nil {
		return rpc.Response{}, err
	}
	if fr.Header.MessageID != id {
		return rpc.Response{}, ErrMessageMismatch
	}
	return session.DecodeResponseFrame(fr)
}

func (c *Client) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Close ends the connection, which tears the remote session down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// earliest returns the sooner of deadline and now+timeout. Zero values mean unset.
func earliest(deadline time.Time, timeout time.Duration) time.Time {
	if timeout <= 0 {
		return deadline
	}
	t := time.Now().Add(timeout)
	if deadline.IsZero() || t.Before(deadline) {
		return t
	}
	return deadline
}
