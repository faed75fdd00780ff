package share

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cppla/sharedrop/models"
)

// DefaultOutboxSize bounds how many events may queue for one slow peer before
// it is dropped.
const DefaultOutboxSize = 64

// Peer is one subscriber connection. Events are queued on its outbox and
// written by the transport in order.
type Peer struct {
	ID    string
	Label string

	out       chan models.Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewPeer creates a peer with a bounded outbox.
func NewPeer(label string, outboxSize int) *Peer {
	if outboxSize <= 0 {
		outboxSize = DefaultOutboxSize
	}
	return &Peer{
		ID:    uuid.NewString(),
		Label: label,
		out:   make(chan models.Event, outboxSize),
		done:  make(chan struct{}),
	}
}

// Outbox is drained by the transport writer.
func (p *Peer) Outbox() <-chan models.Event { return p.out }

// Done is closed once the peer has been dropped or closed.
func (p *Peer) Done() <-chan struct{} { return p.done }

// Close marks the peer as gone. Safe to call more than once.
func (p *Peer) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

func (p *Peer) deliver(ev models.Event) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.out <- ev:
		return true
	default:
		return false
	}
}

// Hub fans room events out to the peers joined to each room.
type Hub struct {
	mu       sync.Mutex
	rooms    map[string]map[string]*Peer
	peerRoom map[string]string

	log     *zap.Logger
	metrics *Metrics
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger, metrics *Metrics) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Hub{
		rooms:    make(map[string]map[string]*Peer),
		peerRoom: make(map[string]string),
		log:      log,
		metrics:  metrics,
	}
}

// Join subscribes p to sessionID and tells the other members. A peer belongs
// to at most one room; joining another room leaves the previous one.
func (h *Hub) Join(sessionID string, p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.peerRoom[p.ID]; ok {
		if prev == sessionID {
			return
		}
		h.leaveLocked(p.ID)
	}
	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[string]*Peer)
		h.rooms[sessionID] = room
	}
	h.publishLocked(sessionID, models.Event{
		Event: models.EventPeerJoined,
		Data:  models.PeerJoined{PeerLabel: p.Label},
	}, p.ID)
	room[p.ID] = p
	h.peerRoom[p.ID] = sessionID
	h.metrics.PeersConnected.Inc()
}

// Leave unsubscribes p from whatever room it is in. Files are owned by the
// room, so nothing else happens.
func (h *Hub) Leave(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(p.ID)
}

func (h *Hub) leaveLocked(peerID string) {
	sessionID, ok := h.peerRoom[peerID]
	if !ok {
		return
	}
	delete(h.peerRoom, peerID)
	if room, ok := h.rooms[sessionID]; ok {
		delete(room, peerID)
		if len(room) == 0 {
			delete(h.rooms, sessionID)
		}
	}
	h.metrics.PeersConnected.Dec()
}

// RoomOf returns the room p is joined to.
func (h *Hub) RoomOf(p *Peer) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id, ok := h.peerRoom[p.ID]
	return id, ok
}

// Publish queues ev for every member of sessionID except exceptPeerID and
// returns how many peers accepted it. Members that cannot accept are dropped.
func (h *Hub) Publish(sessionID string, ev models.Event, exceptPeerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.publishLocked(sessionID, ev, exceptPeerID)
}

func (h *Hub) publishLocked(sessionID string, ev models.Event, exceptPeerID string) int {
	delivered := 0
	for id, p := range h.rooms[sessionID] {
		if id == exceptPeerID {
			continue
		}
		if p.deliver(ev) {
			delivered++
			continue
		}
		h.log.Info("dropping unresponsive peer",
			zap.String("session_id", sessionID), zap.String("peer_id", id), zap.String("event", ev.Event))
		h.leaveLocked(id)
		p.Close()
		h.metrics.BroadcastDroppedPeers.Inc()
	}
	return delivered
}

// Send queues ev for a single peer.
func (h *Hub) Send(p *Peer, ev models.Event) bool {
	if p.deliver(ev) {
		return true
	}
	h.Leave(p)
	p.Close()
	return false
}

// Counts returns the number of rooms with subscribers and the number of peers.
func (h *Hub) Counts() (rooms, peers int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms), len(h.peerRoom)
}

// CloseAll drops every peer, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range h.rooms {
		for _, p := range room {
			p.Close()
		}
	}
	h.metrics.PeersConnected.Sub(float64(len(h.peerRoom)))
	h.rooms = make(map[string]map[string]*Peer)
	h.peerRoom = make(map[string]string)
}
