package slidesync

import "context"

// PushFunc is called by the host whenever its local state changes. remote
// reports that the change was itself caused by an inbound update.
type PushFunc func(state any, remote bool)

// SyncMethod is the contract a presentation host uses to synchronize one
// piece of shared state. Init returns nil when the method declines to serve
// the channel.
type SyncMethod interface {
	Init(channelKey string, onUpdate UpdateFunc, state any, persist bool) PushFunc
}

// SyncHost accepts sync methods. It is implemented by the presentation
// application.
type SyncHost interface {
	AddSyncMethod(m SyncMethod)
}

// Setup is the application-setup hook: it registers the client's WebSocket
// sync method with host. Call it once at startup.
func Setup(host SyncHost, client *Client) {
	host.AddSyncMethod(client.SyncMethod())
}

// SyncMethod returns a SyncMethod backed by this client.
func (c *Client) SyncMethod() SyncMethod {
	return websocketSync{client: c}
}

type websocketSync struct {
	client *Client
}

// Init connects the client for a non-persistent channel and returns the push
// function. Persisted channels are left to other sync methods.
func (s websocketSync) Init(channelKey string, onUpdate UpdateFunc, _ any, persist bool) PushFunc {
	if persist {
		return nil
	}

	if err := s.client.Connect(context.Background(), onUpdate); err != nil {
		s.client.logger.Warn("slidesync: sync init failed", "channel", channelKey, "err", err)
		return nil
	}

	return func(state any, remote bool) {
		// Changes applied from the wire are not echoed back.
		if remote {
			return
		}
		s.client.Send(state)
	}
}
