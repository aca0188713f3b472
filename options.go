package slidesync

// HandlerOption configures handler registration.
type HandlerOption func(*handlerOptions)

type handlerOptions struct {
	types []string
}

func handlerDefaults() handlerOptions {
	return handlerOptions{}
}

// ForTypes restricts a handler to messages whose discriminator value is one
// of types. Without it a handler sees every typed message.
func ForTypes(types ...string) HandlerOption {
	return func(o *handlerOptions) {
		o.types = append(o.types, types...)
	}
}

// ClientOption configures a Client beyond what Config carries.
type ClientOption func(*clientOptions)

type clientOptions struct {
	dialer dialer
	clock  clock
}

func clientDefaults() clientOptions {
	return clientOptions{}
}

// withDialer replaces the WebSocket dialer. Used by tests.
func withDialer(d dialer) ClientOption {
	return func(o *clientOptions) {
		o.dialer = d
	}
}

// withClock replaces the timer source for reconnect scheduling.
func withClock(c clock) ClientOption {
	return func(o *clientOptions) {
		o.clock = c
	}
}
