package telephony

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fiorix/go-eventsocket/eventsocket"
)

// eslConn is the subset of *eventsocket.Connection the client needs.
type eslConn interface {
	Send(command string) (*eventsocket.Event, error)
	ReadEvent() (*eventsocket.Event, error)
	Close()
}

// ESLConfig describes the FreeSWITCH event socket endpoint.
type ESLConfig struct {
	Addr     string
	Password string

	// Reconnect backoff bounds.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	// CommandTimeout bounds one Exec, including the wait for a job result.
	CommandTimeout time.Duration
}

func (c ESLConfig) withDefaults() ESLConfig {
	out := c
	if out.MinBackoff <= 0 {
		out.MinBackoff = 500 * time.Millisecond
	}
	if out.MaxBackoff <= 0 {
		out.MaxBackoff = 30 * time.Second
	}
	if out.CommandTimeout <= 0 {
		out.CommandTimeout = 10 * time.Second
	}
	return out
}

// ESLClient owns the shared event socket session. It is both the Command
// Channel (Exec) and the Event Stream source feeding a Hub.
//
// The session is shared by every campaign attempt; commands are serialized
// because replies come back in submission order only.
type ESLClient struct {
	cfg  ESLConfig
	hub  *Hub
	log  *slog.Logger
	dial func(addr, password string) (eslConn, error)

	sendMu sync.Mutex

	mu  sync.RWMutex
	cur *eslSession
}

// eslSession is one authenticated connection. lost is closed when the
// command side sees the transport fail before the reader does. inflight
// counts Send calls still waiting for their reply.
type eslSession struct {
	conn     eslConn
	lost     chan struct{}
	lostOnce sync.Once
	inflight atomic.Int32
}

func (s *eslSession) markLost() { s.lostOnce.Do(func() { close(s.lost) }) }

func NewESLClient(cfg ESLConfig, hub *Hub, log *slog.Logger) *ESLClient {
	if log == nil {
		log = slog.Default()
	}
	return &ESLClient{
		cfg: cfg.withDefaults(),
		hub: hub,
		log: log,
		dial: func(addr, password string) (eslConn, error) {
			c, err := eventsocket.Dial(addr, password)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}

var _ Commander = (*ESLClient)(nil)

// Connected reports whether an authenticated session is up.
func (c *ESLClient) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cur != nil
}

// Run keeps a session up until ctx is done: dial, subscribe, pump events,
// and reconnect with capped exponential backoff.
func (c *ESLClient) Run(ctx context.Context) {
	backoff := c.cfg.MinBackoff
	for {
		started := time.Now()
		err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}
		c.log.Error("esl session ended", "addr", c.cfg.Addr, "err", err)

		if time.Since(started) > c.cfg.MaxBackoff {
			backoff = c.cfg.MinBackoff
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
}

func (c *ESLClient) session(ctx context.Context) error {
	conn, err := c.dial(c.cfg.Addr, c.cfg.Password)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	if _, err := conn.Send("event plain " + subscribedEvents); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe: %w", err)
	}

	s := &eslSession{conn: conn, lost: make(chan struct{})}
	c.mu.Lock()
	c.cur = s
	c.mu.Unlock()
	c.log.Info("esl connected", "addr", c.cfg.Addr)

	// The library reports a read failure to whichever of Send or ReadEvent
	// asks first, so the pump may never learn about it on its own.
	pumped := make(chan error, 1)
	go func() { pumped <- c.pump(s) }()

	select {
	case err = <-pumped:
	case <-s.lost:
		err = errors.New("command channel lost")
	case <-ctx.Done():
		err = ctx.Err()
	}

	c.mu.Lock()
	c.cur = nil
	c.mu.Unlock()
	conn.Close()

	// Nothing registered on this session can ever be answered now.
	c.hub.FailAll(fmt.Errorf("%w: event stream lost: %v", ErrTransport, err))
	return err
}

func (c *ESLClient) pump(s *eslSession) error {
	for {
		raw, err := s.conn.ReadEvent()
		if err != nil {
			if isTransportErr(err) {
				return err
			}
			// With no command outstanding this cannot be a -ERR reply: the
			// library hit a malformed frame and its reader has stopped.
			if s.inflight.Load() == 0 {
				return fmt.Errorf("event stream broken: %w", err)
			}
			// A command -ERR picked up by the reader instead of Send.
			c.log.Warn("esl stray command error", "err", err)
			continue
		}
		if raw == nil {
			continue
		}
		ev, ok := ParseESLHeaders(raw.Header, raw.Body)
		if !ok {
			continue
		}
		c.hub.Publish(ev)
	}
}

// Exec submits cmd and returns its textual result.
//
// "api X" runs as "bgapi X" and waits for the matching BACKGROUND_JOB, so
// its result (including -ERR) arrives on the Event Stream. Other commands
// return their Reply-Text. Transport failure or ctx expiry is ErrTransport.
func (c *ESLClient) Exec(ctx context.Context, cmd string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CommandTimeout)
	defer cancel()

	rest, isAPI := strings.CutPrefix(cmd, "api ")
	if !isAPI {
		return c.send(ctx, cmd)
	}

	reply, err := c.send(ctx, "bgapi "+rest)
	if err != nil {
		return "", err
	}
	jobID, ok := jobIDFrom(reply)
	if !ok {
		return reply, nil
	}
	return c.hub.AwaitJob(ctx, jobID)
}

func (c *ESLClient) send(ctx context.Context, cmd string) (string, error) {
	c.mu.RLock()
	s := c.cur
	c.mu.RUnlock()
	if s == nil {
		return "", ErrNotConnected
	}

	type reply struct {
		ev  *eventsocket.Event
		err error
	}
	ch := make(chan reply, 1)
	go func() {
		c.sendMu.Lock()
		defer c.sendMu.Unlock()
		s.inflight.Add(1)
		defer s.inflight.Add(-1)
		ev, err := s.conn.Send(cmd)
		ch <- reply{ev: ev, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			if isTransportErr(r.err) {
				s.markLost()
				return "", fmt.Errorf("%w: %v", ErrTransport, r.err)
			}
			// The library turns -ERR replies into errors and strips the prefix.
			return "-ERR " + r.err.Error(), nil
		}
		if r.ev == nil {
			return "", fmt.Errorf("%w: empty reply", ErrTransport)
		}
		return resultText(r.ev.Header, r.ev.Body), nil
	}
}

func resultText(h map[string]interface{}, body string) string {
	if b := strings.TrimSpace(body); b != "" {
		return b
	}
	return headerValue(h, "Reply-Text")
}

// jobIDFrom extracts the id from a "+OK Job-UUID: <id>" bgapi reply.
func jobIDFrom(reply string) (string, bool) {
	rest, ok := strings.CutPrefix(reply, ackPrefix+" Job-UUID:")
	if !ok {
		return "", false
	}
	id := strings.TrimSpace(rest)
	return id, id != ""
}

func isTransportErr(err error) bool {
	var ne net.Error
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.As(err, &ne)
}

// Close drops the current session, if any. Run reconnects unless its
// context is done.
func (c *ESLClient) Close() error {
	c.mu.RLock()
	s := c.cur
	c.mu.RUnlock()
	if s == nil {
		return errors.New("telephony: esl not connected")
	}
	s.conn.Close()
	return nil
}
