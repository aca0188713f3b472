package relay

import (
	"log/slog"
)

// HubOption configures a Hub.
type HubOption func(*hubOptions)

type hubOptions struct {
	sessions   SessionStore
	trustQuery bool
	logger     *slog.Logger
	sendBuffer int
}

func hubDefaults() hubOptions {
	return hubOptions{
		logger:     slog.Default(),
		sendBuffer: 64,
	}
}

// WithSessions sets the store that recognizes presenter session cookies.
func WithSessions(s SessionStore) HubOption {
	return func(o *hubOptions) {
		o.sessions = s
	}
}

// WithRoleQuery makes the hub trust the client-declared ?role= query
// parameter, as older deployments did.
func WithRoleQuery(trust bool) HubOption {
	return func(o *hubOptions) {
		o.trustQuery = trust
	}
}

// WithLogger sets the hub's logger.
func WithLogger(l *slog.Logger) HubOption {
	return func(o *hubOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSendBuffer sets how many outbound frames may queue per connection
// before the connection is dropped as too slow.
func WithSendBuffer(n int) HubOption {
	return func(o *hubOptions) {
		if n > 0 {
			o.sendBuffer = n
		}
	}
}
