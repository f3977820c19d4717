package config

import (
	"testing"
	"time"

	"github.com/appetiteclub/appetite-client/pkg/enums/role"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type props map[string]string

func (p props) GetString(key string) (string, bool) {
	v, ok := p[key]
	return v, ok
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(props{})
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.API.URL)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, TransportWebSocket, cfg.Live.Transport)
	assert.Equal(t, "pedidos.cola", cfg.Live.Subject)
	assert.Equal(t, time.Second, cfg.Live.BackoffBase)
	assert.Equal(t, 30*time.Second, cfg.Live.BackoffMax)
	assert.Equal(t, 1.5, cfg.Live.BackoffDecay)
	assert.Equal(t, 0, cfg.Live.MaxAttempts)
	assert.Equal(t, time.Duration(0), cfg.Live.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.Queue.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.Queue.DisconnectGrace)
	assert.Equal(t, 24, cfg.Queue.RecentHours)
	assert.Equal(t, 15*time.Minute, cfg.Queue.UrgentAfter)
	assert.Equal(t, role.Cook, cfg.Auth.Role)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DefaultWebPort, cfg.WebPort)

	liveURL, err := cfg.LiveURL()
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8000/ws/pedidos/", liveURL)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(props{
		"api.url":             "https://api.example.com",
		"api.timeout":         "5s",
		"live.transport":      "NATS",
		"live.url":            "nats://broker:4222",
		"live.backoff.base":   "500ms",
		"live.backoff.max":    "10s",
		"live.backoff.decay":  "2",
		"live.max_attempts":   "8",
		"live.ping_interval":  "25s",
		"queue.poll_interval": "30s",
		"queue.recent_hours":  " 6 ",
		"auth.token":          "tkn",
		"auth.role":           "mesero",
		"web.port":            ":9000",
	})
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, TransportNATS, cfg.Live.Transport)
	assert.Equal(t, 500*time.Millisecond, cfg.Live.BackoffBase)
	assert.Equal(t, 2.0, cfg.Live.BackoffDecay)
	assert.Equal(t, 8, cfg.Live.MaxAttempts)
	assert.Equal(t, 25*time.Second, cfg.Live.PingInterval)
	assert.Equal(t, 30*time.Second, cfg.Queue.PollInterval)
	assert.Equal(t, 6, cfg.Queue.RecentHours)
	assert.Equal(t, "tkn", cfg.Auth.Token)
	assert.Equal(t, role.Waiter, cfg.Auth.Role)
	assert.Equal(t, ":9000", cfg.WebPort)

	liveURL, err := cfg.LiveURL()
	require.NoError(t, err)
	assert.Equal(t, "nats://broker:4222", liveURL)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		props   props
		wantKey string
	}{
		{name: "badDuration", props: props{"api.timeout": "soon"}, wantKey: "api.timeout"},
		{name: "badInt", props: props{"live.max_attempts": "many"}, wantKey: "live.max_attempts"},
		{name: "badFloat", props: props{"live.backoff.decay": "x"}, wantKey: "live.backoff.decay"},
		{name: "unknownRole", props: props{"auth.role": "chef"}, wantKey: "auth.role"},
		{name: "unknownTransport", props: props{"live.transport": "smoke"}, wantKey: "live.transport"},
		{name: "natsWithoutURL", props: props{"live.transport": "nats"}, wantKey: "live.url"},
		{name: "maxBelowBase", props: props{"live.backoff.base": "10s", "live.backoff.max": "2s"}, wantKey: "live.backoff.max"},
		{name: "shrinkingDecay", props: props{"live.backoff.decay": "0.5"}, wantKey: "live.backoff.decay"},
		{name: "negativeAttempts", props: props{"live.max_attempts": "-1"}, wantKey: "live.max_attempts"},
		{name: "negativePoll", props: props{"queue.poll_interval": "-5s"}, wantKey: "queue.poll_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.props)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantKey)
		})
	}

	t.Run("nilProperties", func(t *testing.T) {
		_, err := Load(nil)
		assert.Error(t, err)
	})
}

func TestSetRole(t *testing.T) {
	cfg, err := Load(props{})
	require.NoError(t, err)

	require.NoError(t, cfg.SetRole("Mesero"))
	assert.Equal(t, role.Waiter, cfg.Auth.Role)

	assert.Error(t, cfg.SetRole("chef"))
	assert.Equal(t, role.Waiter, cfg.Auth.Role)
}
