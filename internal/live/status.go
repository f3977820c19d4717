package live

// Status is the lifecycle state of a live channel session.
type Status string

const (
	StatusIdle               Status = "idle"
	StatusConnecting         Status = "connecting"
	StatusAuthenticating     Status = "authenticating"
	StatusConnected          Status = "connected"
	StatusDisconnected       Status = "disconnected"
	StatusReconnecting       Status = "reconnecting"
	StatusConnectionFailed   Status = "connection_failed"
	StatusAuthFailed         Status = "auth_failed"
	StatusAuthTimeout        Status = "auth_timeout"
	StatusError              Status = "error"
	StatusNoAuth             Status = "no_auth"
	StatusMaxRetriesExceeded Status = "max_retries_exceeded"
)

var AllStatuses = []Status{
	StatusIdle,
	StatusConnecting,
	StatusAuthenticating,
	StatusConnected,
	StatusDisconnected,
	StatusReconnecting,
	StatusConnectionFailed,
	StatusAuthFailed,
	StatusAuthTimeout,
	StatusError,
	StatusNoAuth,
	StatusMaxRetriesExceeded,
}

func (s Status) String() string {
	return string(s)
}

// Busy reports whether a channel is open or being opened.
func (s Status) Busy() bool {
	switch s {
	case StatusConnecting, StatusAuthenticating, StatusConnected:
		return true
	}
	return false
}

// Failure reports whether s is one of the failed-attempt states.
func (s Status) Failure() bool {
	switch s {
	case StatusConnectionFailed, StatusAuthFailed, StatusAuthTimeout, StatusError:
		return true
	}
	return false
}

// NeedsAttention reports whether reconnection has stopped and only a manual
// action can bring the channel back.
func (s Status) NeedsAttention() bool {
	return s == StatusMaxRetriesExceeded || s == StatusNoAuth
}
