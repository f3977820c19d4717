package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/appetiteclub/appetite-client/internal/timers"
	"github.com/appetiteclub/appetite-client/pkg/event"
	"github.com/appetiteclub/apt"
	"github.com/jonboulle/clockwork"
)

var (
	ErrAuthFailed  = errors.New("live channel rejected the credential")
	ErrAuthTimeout = errors.New("live channel handshake timed out")
)

// Conn is an open live channel.
type Conn interface {
	// Read blocks until the next message. It returns io.EOF on a clean close.
	Read() ([]byte, error)
	Write(data []byte) error
	Close() error
}

// Dialer opens a Conn to target. onTransport is called once the underlying
// transport is up and authentication is pending.
type Dialer interface {
	Dial(ctx context.Context, target string, onTransport func()) (Conn, error)
}

// TokenSource provides the credential appended to the endpoint.
type TokenSource interface {
	Get() (string, bool)
}

type Options struct {
	URL    string
	Tokens TokenSource
	Dialer Dialer

	BackoffBase  time.Duration
	BackoffMax   time.Duration
	BackoffDecay float64
	// MaxAttempts stops reconnection once reached. Zero means unlimited.
	MaxAttempts  int
	PingInterval time.Duration

	// Callbacks run one at a time. They must not call Disconnect or Stop
	// synchronously.
	OnMessage func(data json.RawMessage)
	OnStatus  func(status Status)
	OnError   func(err error)

	Clock  clockwork.Clock
	Logger apt.Logger
}

// Manager owns a single live channel session: it opens the channel, tracks
// its status and reconnects with backoff until told to stop.
type Manager struct {
	opts  Options
	clock clockwork.Clock
	log   apt.Logger
	ping  *timers.Poller

	// held while a callback runs
	cbMu sync.Mutex

	mu        sync.Mutex
	enabled   bool
	status    Status
	gen       uint64
	attempts  int
	backoff   *Backoff
	lastDelay time.Duration
	lastErr   error
	conn      Conn
	retry     clockwork.Timer
	cancel    context.CancelFunc
}

func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = apt.NewNoopLogger()
	}
	if opts.Dialer == nil {
		opts.Dialer = &WebSocketDialer{}
	}

	m := &Manager{
		opts:    opts,
		clock:   opts.Clock,
		log:     opts.Logger.With("component", "live"),
		status:  StatusIdle,
		backoff: NewBackoff(opts.BackoffBase, opts.BackoffMax, opts.BackoffDecay),
	}
	if opts.PingInterval > 0 {
		m.ping = timers.NewPoller(m.clock, opts.PingInterval, func() {
			m.Send(event.NewPing())
		})
	}
	return m
}

// Start enables the session and opens the channel.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	m.enabled = true
	m.mu.Unlock()

	m.Connect()
	return nil
}

// Stop disables the session. No callback fires after it returns.
func (m *Manager) Stop(ctx context.Context) error {
	m.Disconnect()
	return nil
}

// Connect opens the channel unless the session is disabled or a channel is
// already open or opening.
func (m *Manager) Connect() {
	m.mu.Lock()
	if !m.enabled || m.status.Busy() {
		m.mu.Unlock()
		return
	}

	m.gen++
	gen := m.gen

	token, ok := m.tokens()
	if !ok {
		m.status = StatusNoAuth
		m.mu.Unlock()
		m.log.Info("no credential available, live channel not opened")
		m.emitStatus(gen, StatusNoAuth)
		return
	}

	target, err := Endpoint(m.opts.URL, token)
	if err != nil {
		m.status = StatusConnectionFailed
		m.lastErr = err
		m.mu.Unlock()
		m.log.Error("invalid live endpoint", "error", err)
		m.emitError(gen, err)
		m.emitStatus(gen, StatusConnectionFailed)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.status = StatusConnecting
	m.mu.Unlock()

	m.emitStatus(gen, StatusConnecting)
	go m.run(ctx, gen, target)
}

// Disconnect disables the session, cancels any pending reconnect and closes
// the channel.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.enabled = false
	m.teardownLocked()
	m.status = StatusIdle
	m.mu.Unlock()

	// A callback of the old generation may still be running.
	m.cbMu.Lock()
	m.cbMu.Unlock()
}

// Reconnect resets the attempt counter and backoff and reopens the channel.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	m.enabled = true
	m.attempts = 0
	m.backoff.Reset()
	m.teardownLocked()
	m.status = StatusIdle
	m.mu.Unlock()

	m.Connect()
}

// Send writes payload to the open channel. Strings and byte slices are sent
// verbatim, anything else is JSON encoded. It reports whether the write
// happened.
func (m *Manager) Send(payload any) bool {
	var data []byte
	switch v := payload.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			m.log.Error("cannot encode outbound message", "error", err)
			return false
		}
		data = encoded
	}

	m.mu.Lock()
	conn := m.conn
	connected := m.status == StatusConnected
	m.mu.Unlock()

	if conn == nil || !connected {
		return false
	}

	if err := conn.Write(data); err != nil {
		m.log.Error("live channel write failed", "error", err)
		return false
	}
	return true
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// LastDelay is the delay used for the most recently scheduled reconnect.
func (m *Manager) LastDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastDelay
}

func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) run(ctx context.Context, gen uint64, target string) {
	conn, err := m.opts.Dialer.Dial(ctx, target, func() {
		m.advance(gen, StatusAuthenticating)
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.fail(gen, failureStatus(err), err)
		return
	}

	if !m.opened(gen, conn) {
		conn.Close()
		return
	}

	for {
		data, err := conn.Read()
		if err != nil {
			m.closed(gen, err)
			return
		}

		if !json.Valid(data) {
			m.log.Error("dropping invalid live message", "size", len(data))
			continue
		}
		m.deliver(gen, data)
	}
}

func (m *Manager) opened(gen uint64, conn Conn) bool {
	m.mu.Lock()
	if gen != m.gen || !m.enabled {
		m.mu.Unlock()
		return false
	}
	m.conn = conn
	m.status = StatusConnected
	m.attempts = 0
	m.lastErr = nil
	m.backoff.Reset()
	if m.ping != nil {
		m.ping.Start()
	}
	m.mu.Unlock()

	m.log.Info("live channel connected", "url", redact(m.opts.URL))
	m.emitStatus(gen, StatusConnected)
	return true
}

func (m *Manager) closed(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	if m.ping != nil {
		m.ping.Stop()
	}
	abnormal := !errors.Is(err, io.EOF)
	if abnormal {
		m.lastErr = err
		m.status = StatusError
	}
	m.mu.Unlock()

	if abnormal {
		m.log.Error("live channel failed", "error", err)
		m.emitError(gen, err)
		m.emitStatus(gen, StatusError)
	} else {
		m.log.Info("live channel closed")
	}

	if !m.advance(gen, StatusDisconnected) {
		return
	}
	m.scheduleReconnect(gen)
}

func (m *Manager) fail(gen uint64, status Status, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.lastErr = err
	m.status = status
	m.mu.Unlock()

	m.log.Error("live channel attempt failed", "status", status, "error", err)
	m.emitError(gen, err)
	m.emitStatus(gen, status)
	m.scheduleReconnect(gen)
}

func (m *Manager) scheduleReconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || !m.enabled {
		m.mu.Unlock()
		return
	}

	if m.opts.MaxAttempts > 0 && m.attempts >= m.opts.MaxAttempts {
		m.status = StatusMaxRetriesExceeded
		m.mu.Unlock()
		m.log.Error("live channel gave up", "attempts", m.opts.MaxAttempts)
		m.emitStatus(gen, StatusMaxRetriesExceeded)
		return
	}

	delay := m.backoff.Delay()
	m.lastDelay = delay
	m.status = StatusReconnecting
	m.retry = m.clock.AfterFunc(delay, func() {
		m.retryFired(gen)
	})
	attempt := m.attempts + 1
	m.mu.Unlock()

	m.log.Info("live channel reconnect scheduled", "attempt", attempt, "retry_in", delay)
	m.emitStatus(gen, StatusReconnecting)
}

func (m *Manager) retryFired(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || !m.enabled {
		m.mu.Unlock()
		return
	}
	m.retry = nil
	m.attempts++
	m.backoff.Advance()
	m.mu.Unlock()

	m.Connect()
}

// advance moves to status if gen is still current.
func (m *Manager) advance(gen uint64, status Status) bool {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return false
	}
	m.status = status
	m.mu.Unlock()

	m.emitStatus(gen, status)
	return true
}

func (m *Manager) deliver(gen uint64, data []byte) {
	if m.opts.OnMessage == nil {
		return
	}
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	if m.current(gen) {
		m.opts.OnMessage(json.RawMessage(data))
	}
}

func (m *Manager) emitStatus(gen uint64, status Status) {
	if m.opts.OnStatus == nil {
		return
	}
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	if m.current(gen) {
		m.opts.OnStatus(status)
	}
}

func (m *Manager) emitError(gen uint64, err error) {
	if m.opts.OnError == nil {
		return
	}
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	if m.current(gen) {
		m.opts.OnError(err)
	}
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}

// teardownLocked invalidates the current generation and releases the timer
// and channel it owns.
func (m *Manager) teardownLocked() {
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	if m.ping != nil {
		m.ping.Stop()
	}
	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			m.log.Debug("error closing live channel", "error", err)
		}
		m.conn = nil
	}
}

func (m *Manager) tokens() (string, bool) {
	if m.opts.Tokens == nil {
		return "", false
	}
	return m.opts.Tokens.Get()
}

func failureStatus(err error) Status {
	switch {
	case errors.Is(err, ErrAuthFailed):
		return StatusAuthFailed
	case errors.Is(err, ErrAuthTimeout):
		return StatusAuthTimeout
	}
	return StatusConnectionFailed
}

// Endpoint appends token to raw as the token query parameter.
func Endpoint(raw, token string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse live url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("live url %q must be absolute", raw)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// EndpointFromOrigin derives the queue channel URL from an HTTP API origin.
func EndpointFromOrigin(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("parse api origin: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported origin scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/pedidos/"
	u.RawQuery = ""
	return u.String(), nil
}

// redact drops the query so credentials are never logged.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	u.RawQuery = ""
	return u.String()
}
