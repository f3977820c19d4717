package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/appetiteclub/appetite-client/internal/api"
	"github.com/appetiteclub/appetite-client/internal/live"
	"github.com/appetiteclub/appetite-client/internal/queue"
	"github.com/appetiteclub/appetite-client/pkg/enums/role"
	"github.com/appetiteclub/appetite-client/pkg/event"
)

const (
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"

	DefaultPollInterval    = 60 * time.Second
	DefaultDisconnectGrace = 10 * time.Second
	DefaultWebPort         = "8090"
)

// Properties is the read side of apt.Config.
type Properties interface {
	GetString(key string) (string, bool)
}

type Config struct {
	API   APIConfig
	Live  LiveConfig
	Queue QueueConfig
	Auth  AuthConfig

	LogLevel string
	WebPort  string
}

type APIConfig struct {
	URL     string
	Timeout time.Duration
}

type LiveConfig struct {
	Transport        string
	URL              string
	Subject          string
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	BackoffDecay     float64
	MaxAttempts      int
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
}

type QueueConfig struct {
	PollInterval    time.Duration
	DisconnectGrace time.Duration
	RecentHours     int
	UrgentAfter     time.Duration
}

type AuthConfig struct {
	Token string
	Role  role.Role
}

// Load reads every setting from props, applies defaults and validates the
// result.
func Load(props Properties) (*Config, error) {
	if props == nil {
		return nil, errors.New("config: properties required")
	}

	r := reader{props: props}
	cfg := &Config{
		API: APIConfig{
			URL:     r.str("api.url"),
			Timeout: r.duration("api.timeout"),
		},
		Live: LiveConfig{
			Transport:        strings.ToLower(r.str("live.transport")),
			URL:              r.str("live.url"),
			Subject:          r.str("live.subject"),
			BackoffBase:      r.duration("live.backoff.base"),
			BackoffMax:       r.duration("live.backoff.max"),
			BackoffDecay:     r.float("live.backoff.decay"),
			MaxAttempts:      r.integer("live.max_attempts"),
			HandshakeTimeout: r.duration("live.handshake_timeout"),
			PingInterval:     r.duration("live.ping_interval"),
		},
		Queue: QueueConfig{
			PollInterval:    r.duration("queue.poll_interval"),
			DisconnectGrace: r.duration("queue.disconnect_grace"),
			RecentHours:     r.integer("queue.recent_hours"),
			UrgentAfter:     r.duration("queue.urgent_after"),
		},
		Auth: AuthConfig{
			Token: r.str("auth.token"),
		},
		LogLevel: r.str("log.level"),
		WebPort:  r.str("web.port"),
	}

	if name := r.str("auth.role"); name != "" {
		parsed, ok := role.ByName(name)
		if !ok {
			r.fail("auth.role", fmt.Errorf("unknown role %q", name))
		}
		cfg.Auth.Role = parsed
	}

	if len(r.errs) > 0 {
		return nil, errors.Join(r.errs...)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.API.URL == "" {
		c.API.URL = api.DefaultOrigin
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = api.DefaultTimeout
	}
	if c.Live.Transport == "" {
		c.Live.Transport = TransportWebSocket
	}
	if c.Live.Subject == "" {
		c.Live.Subject = event.OrdersTopic
	}
	if c.Live.BackoffBase == 0 {
		c.Live.BackoffBase = live.DefaultBackoffBase
	}
	if c.Live.BackoffMax == 0 {
		c.Live.BackoffMax = live.DefaultBackoffMax
	}
	if c.Live.BackoffDecay == 0 {
		c.Live.BackoffDecay = live.DefaultBackoffDecay
	}
	if c.Live.HandshakeTimeout == 0 {
		c.Live.HandshakeTimeout = live.DefaultHandshakeTimeout
	}
	if c.Queue.PollInterval == 0 {
		c.Queue.PollInterval = DefaultPollInterval
	}
	if c.Queue.DisconnectGrace == 0 {
		c.Queue.DisconnectGrace = DefaultDisconnectGrace
	}
	if c.Queue.RecentHours == 0 {
		c.Queue.RecentHours = api.DefaultRecentHours
	}
	if c.Queue.UrgentAfter == 0 {
		c.Queue.UrgentAfter = queue.DefaultUrgentAfter
	}
	if c.Auth.Role == "" {
		c.Auth.Role = role.Cook
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.WebPort == "" {
		c.WebPort = DefaultWebPort
	}
}

func (c *Config) validate() error {
	var errs []error

	if c.Live.Transport != TransportWebSocket && c.Live.Transport != TransportNATS {
		errs = append(errs, fmt.Errorf("live.transport: must be %q or %q, got %q", TransportWebSocket, TransportNATS, c.Live.Transport))
	}
	if c.Live.Transport == TransportNATS && c.Live.URL == "" {
		errs = append(errs, errors.New("live.url: required for the nats transport"))
	}
	if c.Live.BackoffMax < c.Live.BackoffBase {
		errs = append(errs, fmt.Errorf("live.backoff.max: %s is below live.backoff.base %s", c.Live.BackoffMax, c.Live.BackoffBase))
	}
	if c.Live.BackoffDecay < 1 {
		errs = append(errs, fmt.Errorf("live.backoff.decay: must be at least 1, got %v", c.Live.BackoffDecay))
	}
	if c.Live.MaxAttempts < 0 {
		errs = append(errs, errors.New("live.max_attempts: must not be negative"))
	}

	durations := []struct {
		key   string
		value time.Duration
	}{
		{"api.timeout", c.API.Timeout},
		{"live.backoff.base", c.Live.BackoffBase},
		{"live.handshake_timeout", c.Live.HandshakeTimeout},
		{"queue.poll_interval", c.Queue.PollInterval},
		{"queue.disconnect_grace", c.Queue.DisconnectGrace},
		{"queue.urgent_after", c.Queue.UrgentAfter},
	}
	for _, d := range durations {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive", d.key))
		}
	}
	if c.Live.PingInterval < 0 {
		errs = append(errs, errors.New("live.ping_interval: must not be negative"))
	}
	if c.Queue.RecentHours < 0 {
		errs = append(errs, errors.New("queue.recent_hours: must not be negative"))
	}

	return errors.Join(errs...)
}

// SetRole overrides the configured role, typically from a command line flag.
func (c *Config) SetRole(name string) error {
	parsed, ok := role.ByName(name)
	if !ok {
		return fmt.Errorf("auth.role: unknown role %q", name)
	}
	c.Auth.Role = parsed
	return nil
}

// LiveURL is the configured channel URL, or the one derived from the API
// origin for the WebSocket transport.
func (c *Config) LiveURL() (string, error) {
	if c.Live.URL != "" {
		return c.Live.URL, nil
	}
	return live.EndpointFromOrigin(c.API.URL)
}

type reader struct {
	props Properties
	errs  []error
}

func (r *reader) str(key string) string {
	v, _ := r.props.GetString(key)
	return strings.TrimSpace(v)
}

func (r *reader) duration(key string) time.Duration {
	v := r.str(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
		return 0
	}
	return d
}

func (r *reader) integer(key string) int {
	v := r.str(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, err)
		return 0
	}
	return n
}

func (r *reader) float(key string) float64 {
	v := r.str(key)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, err)
		return 0
	}
	return f
}

func (r *reader) fail(key string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
}
