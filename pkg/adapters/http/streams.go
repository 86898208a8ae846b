package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/appflow/pkg/flow"
	"github.com/aretw0/appflow/pkg/session"
)

// Event is the SSE payload sent for every state change of a session.
type Event struct {
	Session string       `json:"session"`
	Node    flow.NodeRef `json:"node"`
	State   any          `json:"state"`
	Time    time.Time    `json:"time"`
}

type stream struct {
	subscribers map[chan string]struct{}
	unsubscribe func()
}

// StreamManager handles active SSE connections. A session's machine is
// observed while at least one client listens to it.
type StreamManager struct {
	mu      sync.Mutex
	streams map[string]*stream // SessionID -> listeners
	logger  *slog.Logger
}

// NewStreamManager creates an empty StreamManager.
func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		streams: make(map[string]*stream),
		logger:  logger,
	}
}

// Subscribe returns a channel receiving the JSON encoded changes of s and a
// function closing it.
func (sm *StreamManager) Subscribe(s *session.Session) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	st, ok := sm.streams[s.ID]
	if !ok {
		st = &stream{subscribers: make(map[chan string]struct{})}
		sm.streams[s.ID] = st
		id := s.ID
		st.unsubscribe = s.Machine.Subscribe(func(c flow.Change) {
			sm.broadcast(id, c)
		})
	}
	st.subscribers[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			delete(st.subscribers, ch)
			close(ch)
			if len(st.subscribers) == 0 {
				st.unsubscribe()
				delete(sm.streams, s.ID)
			}
		})
	}
}

// Listeners returns the number of clients listening to sessionID.
func (sm *StreamManager) Listeners(sessionID string) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if st, ok := sm.streams[sessionID]; ok {
		return len(st.subscribers)
	}
	return 0
}

func (sm *StreamManager) broadcast(sessionID string, c flow.Change) {
	payload, err := json.Marshal(Event{Session: sessionID, Node: c.Node, State: c.State, Time: time.Now()})
	if err != nil {
		sm.logger.Warn("SSE: cannot encode change", "session_id", sessionID, "err", err)
		return
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	st, ok := sm.streams[sessionID]
	if !ok {
		return
	}
	for ch := range st.subscribers {
		select {
		case ch <- string(payload):
		default:
			// Drop message if channel is full (slow client)
			sm.logger.Warn("SSE: Client buffer full, dropping message", "session_id", sessionID)
		}
	}
}
