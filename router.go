package slidesync

import (
	"fmt"
	"sync"
	"time"
)

// router decides where an inbound frame goes: typed messages fan out to the
// handler registry, untyped ones go to the legacy update callback.
type router struct {
	field    string
	registry *handlerRegistry
	onError  ErrorHandler

	mu       sync.RWMutex
	onUpdate UpdateFunc
}

func newRouter(field string, registry *handlerRegistry, onError ErrorHandler) *router {
	return &router{
		field:    field,
		registry: registry,
		onError:  onError,
	}
}

func (r *router) setUpdateFunc(fn UpdateFunc) {
	r.mu.Lock()
	r.onUpdate = fn
	r.mu.Unlock()
}

func (r *router) updateFunc() UpdateFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.onUpdate
}

// dispatch parses raw and routes it. Malformed frames are reported and
// dropped; nothing here panics into the caller.
func (r *router) dispatch(raw []byte) {
	msg, err := parseMessage(raw)
	if err != nil {
		r.onError(SyncError{
			Kind:      ErrParseFailure,
			Raw:       raw,
			Cause:     err,
			Timestamp: time.Now(),
		})
		return
	}
	r.route(msg)
}

func (r *router) route(msg Message) {
	if !msg.hasField(r.field) {
		if fn := r.updateFunc(); fn != nil {
			r.call("", func() { fn(msg) })
		}
		return
	}

	msgType := fmt.Sprint(msg[r.field])
	for _, entry := range r.registry.snapshot() {
		if !entry.accepts(msgType) {
			continue
		}
		// Skip handlers unregistered by an earlier handler in this dispatch.
		if !r.registry.contains(entry.id) {
			continue
		}
		r.call(msgType, func() { entry.fn(msg) })
	}
}

// call runs fn and turns a panic into an ErrHandlerPanic report.
func (r *router) call(msgType string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.onError(SyncError{
				Kind:      ErrHandlerPanic,
				Type:      msgType,
				Cause:     fmt.Errorf("panic: %v", p),
				Timestamp: time.Now(),
			})
		}
	}()
	fn()
}
