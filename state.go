package slidesync

import "sync"

// Status is the lifecycle state of a Client's connection.
type Status int

const (
	StatusDisconnected Status = iota // initial, or after an explicit Disconnect
	StatusConnecting                 // dial in flight or reconnect pending
	StatusConnected                  // transport open, inbound frames are processed
)

var statusNames = [...]string{
	StatusDisconnected: "Disconnected",
	StatusConnecting:   "Connecting",
	StatusConnected:    "Connected",
}

func (s Status) String() string {
	if int(s) >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "Unknown"
}

// StatusFunc observes status transitions.
type StatusFunc func(Status)

type statusObserver struct {
	id uint64
	fn StatusFunc
}

// connectionState holds the single connection handle and the tri-state status.
// Status changes are queued and delivered by flush so observers never run
// under a lock and always see transitions in the order they happened.
type connectionState struct {
	mu        sync.Mutex
	conn      conn
	current   Status
	observers []statusObserver
	nextID    uint64

	queue    []Status
	draining bool
}

func newConnectionState() *connectionState {
	return &connectionState{current: StatusDisconnected}
}

func (s *connectionState) connection() conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *connectionState) setConnection(c conn) {
	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()
}

// clearConnection drops the handle only if it is still c, so a late close of
// an old connection cannot discard its replacement.
func (s *connectionState) clearConnection(c conn) {
	s.mu.Lock()
	if s.conn == c {
		s.conn = nil
	}
	s.mu.Unlock()
}

func (s *connectionState) status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// changeStatus records the new status and queues a notification if it differs
// from the current one. Call flush once no caller-held locks remain.
func (s *connectionState) changeStatus(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == st {
		return
	}
	s.current = st
	s.queue = append(s.queue, st)
}

func (s *connectionState) subscribe(fn StatusFunc) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.observers = append(s.observers, statusObserver{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, o := range s.observers {
				if o.id == id {
					s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// flush delivers queued transitions. Only one goroutine drains at a time;
// transitions queued by an observer are delivered by the active drainer.
func (s *connectionState) flush() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.queue) > 0 {
		st := s.queue[0]
		s.queue = s.queue[1:]
		observers := append([]statusObserver(nil), s.observers...)
		s.mu.Unlock()

		for _, o := range observers {
			o.fn(st)
		}

		s.mu.Lock()
	}
	s.draining = false
	s.mu.Unlock()
}
