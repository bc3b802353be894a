package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/replayio/devtools-sub005/internal/inspector"
	"github.com/replayio/devtools-sub005/internal/shared/id"
)

// EventType names a node lifecycle event
type EventType string

const (
	EventCreated  EventType = "created"
	EventState    EventType = "state"
	EventTornDown EventType = "torndown"
)

// Event is one change in a session's tree
type Event struct {
	Type     EventType `json:"type"`
	Session  string    `json:"session"`
	Node     string    `json:"node"`
	Parent   string    `json:"parent,omitempty"`
	From     string    `json:"from,omitempty"`
	To       string    `json:"to,omitempty"`
	Children []string  `json:"children,omitempty"`
	Time     time.Time `json:"time"`
}

// Hub fans events out to subscribers. Slow subscribers lose events rather
// than block the tree.
type Hub struct {
	logger *zap.Logger

	mu     sync.RWMutex
	subs   map[id.SubscriberID]chan Event
	closed bool
}

// NewHub creates an empty hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger: logger,
		subs:   make(map[id.SubscriberID]chan Event),
	}
}

// Subscribe registers a subscriber with the given buffer. The channel is
// closed by the returned cancel function or when the hub closes.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	sid := id.NewSubscriberID()
	h.subs[sid] = ch
	h.logger.Debug("Subscriber attached", zap.String("subscriber", sid.String()))

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[sid]; ok {
				delete(h.subs, sid)
				close(c)
			}
		})
	}
}

// Publish delivers an event to every subscriber without blocking
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sid, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.logger.Warn("Dropping event for slow subscriber",
				zap.String("subscriber", sid.String()),
				zap.String("type", string(e.Type)),
				zap.String("node", e.Node),
			)
		}
	}
}

// Subscribers returns the number of attached subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close detaches every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sid, ch := range h.subs {
		delete(h.subs, sid)
		close(ch)
	}
}

// index addresses a session's live nodes by ID and turns tree
// notifications into events
type index struct {
	session string
	hub     *Hub

	mu    sync.RWMutex
	nodes map[string]*inspector.Node
}

func newIndex(session string, hub *Hub) *index {
	return &index{
		session: session,
		hub:     hub,
		nodes:   make(map[string]*inspector.Node),
	}
}

func (x *index) get(nid string) (*inspector.Node, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n, ok := x.nodes[nid]
	return n, ok
}

func (x *index) size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.nodes)
}

func (x *index) NodesCreated(parent *inspector.Node, children []*inspector.Node) {
	// Nodes torn down before this notification arrived stay out of the index
	x.mu.Lock()
	ids := make([]string, 0, len(children))
	for _, c := range children {
		if c.Detached() {
			continue
		}
		x.nodes[c.ID()] = c
		ids = append(ids, c.ID())
		if ek := c.EntryKey(); ek != nil && !ek.Detached() {
			x.nodes[ek.ID()] = ek
		}
	}
	x.mu.Unlock()
	if len(ids) == 0 && len(children) > 0 {
		return
	}

	e := Event{Type: EventCreated, Session: x.session, Children: ids, Time: time.Now()}
	if parent != nil {
		e.Node = parent.ID()
	} else if len(ids) == 1 {
		e.Node = ids[0]
	}
	x.hub.Publish(e)
}

func (x *index) NodeStateChanged(n *inspector.Node, from, to inspector.State) {
	e := Event{
		Type:    EventState,
		Session: x.session,
		Node:    n.ID(),
		From:    from.String(),
		To:      to.String(),
		Time:    time.Now(),
	}
	if p := n.Parent(); p != nil {
		e.Parent = p.ID()
	}
	x.hub.Publish(e)
}

func (x *index) NodeTornDown(n *inspector.Node) {
	x.mu.Lock()
	delete(x.nodes, n.ID())
	x.mu.Unlock()

	x.hub.Publish(Event{Type: EventTornDown, Session: x.session, Node: n.ID(), Time: time.Now()})
}
