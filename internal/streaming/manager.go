package streaming

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types emitted over the run event surface.
const (
	EventPhaseEntered          = "PHASE_ENTERED"
	EventSectionStatusChanged  = "SECTION_STATUS_CHANGED"
	EventToolCallStarted       = "TOOL_CALL_STARTED"
	EventToolCallEnded         = "TOOL_CALL_ENDED"
	EventClarificationRequest  = "CLARIFICATION_REQUESTED"
	EventEntityDiscovered      = "ENTITY_DISCOVERED"
	EventReviewCompleted       = "REVIEW_COMPLETED"
	EventReportReady           = "REPORT_READY"
	EventErrorOccurred         = "ERROR_OCCURRED"
)

// Event is one entry of a run's event stream, consumed by SSE and websocket
// subscribers.
type Event struct {
	RunID     string                 `json:"run_id"`
	Type      string                 `json:"type"`
	Phase     string                 `json:"phase,omitempty"`
	Section   string                 `json:"section,omitempty"`
	Tool      string                 `json:"tool,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Seq       uint64                 `json:"seq"`
}

// Marshal returns JSON for SSE frames and logs.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Manager provides in-memory pub/sub for run events with a per-run ring
// buffer so reconnecting clients can replay from their last seen Seq.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	history     map[string]*ring
	capacity    int
}

var (
	defaultMgr      *Manager
	once            sync.Once
	defaultCapacity = 256
)

// Get returns the global streaming manager, initializing it lazily.
func Get() *Manager {
	once.Do(func() {
		defaultMgr = NewManager(defaultCapacity)
	})
	return defaultMgr
}

// Configure sets ring capacity for rings created after the call.
func Configure(capacity int) {
	if capacity <= 0 {
		return
	}
	defaultCapacity = capacity
	if defaultMgr != nil {
		defaultMgr.mu.Lock()
		defaultMgr.capacity = capacity
		defaultMgr.mu.Unlock()
	}
}

func NewManager(capacity int) *Manager {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Manager{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
	}
}

// Subscribe adds a subscriber channel for a run; caller must drain and call
// Unsubscribe.
func (m *Manager) Subscribe(runID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[runID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[runID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes the subscriber channel and closes it.
func (m *Manager) Unsubscribe(runID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[runID]; ok {
		if _, present := subs[ch]; present {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(m.subscribers, runID)
		}
	}
}

// Publish assigns the event a sequence number, records it for replay, and
// fans it out to all subscribers without blocking. Slow subscribers drop.
// The assigned sequence number is returned for durable mirroring.
//
// Fan-out happens under the lock: the sends are non-blocking, and holding
// the lock keeps Subscribe/Unsubscribe from mutating the subscriber map or
// closing a channel mid-send.
func (m *Manager) Publish(runID string, evt Event) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	rg := m.history[runID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[runID] = rg
	}
	evt.Seq = rg.nextSeq
	rg.nextSeq++
	rg.push(evt)
	for ch := range m.subscribers[runID] {
		select {
		case ch <- evt:
		default:
		}
	}
	return evt.Seq
}

// ReplaySince returns recorded events with Seq > since, best-effort within
// ring capacity.
func (m *Manager) ReplaySince(runID string, since uint64) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rg := m.history[runID]
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity)} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
