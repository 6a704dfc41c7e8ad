/**
 * @description
 * This package implements the group-scoped broadcast hub: the mapping from a
 * payment reference to the set of live client channels subscribed to it, and
 * the fan-out of status messages to exactly those channels. Groups are keyed
 * by the reference value itself, never by a formatted group name, so
 * unescaped characters in a reference cannot collide two groups.
 *
 * The hub holds non-owning handles only; the websocket transport owns
 * connection lifetime and reports disconnects via Detach.
 */

package hub

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/qrpaylink/payment-relay-service/internal/domain"
)

// Client is one connected subscriber channel. Writes go through a buffered
// send channel drained by writePump, so a broadcast never blocks on a slow
// socket.
type Client struct {
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

// NewClient wraps a websocket connection and starts its write pump.
func NewClient(conn *websocket.Conn) *Client {
	c := &Client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// Hub maintains reference-scoped subscriber groups.
type Hub struct {
	mu sync.RWMutex
	// groups maps a payment reference to its subscribed clients.
	groups map[string]map[*Client]struct{}
	// members maps a client back to the references it joined, so a
	// disconnect can clear all of its memberships.
	members map[*Client]map[string]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		groups:  make(map[string]map[*Client]struct{}),
		members: make(map[*Client]map[string]struct{}),
	}
}

// Join adds the client to the reference's group. Joining a group the client
// is already in is a no-op.
func (h *Hub) Join(reference string, c *Client) {
	if reference == "" || c == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	group, ok := h.groups[reference]
	if !ok {
		group = make(map[*Client]struct{})
		h.groups[reference] = group
	}
	group[c] = struct{}{}

	refs, ok := h.members[c]
	if !ok {
		refs = make(map[string]struct{})
		h.members[c] = refs
	}
	refs[reference] = struct{}{}
}

// Leave removes the client from the reference's group. Removal is idempotent;
// leaving a group the client never joined is a no-op.
func (h *Hub) Leave(reference string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(reference, c)
}

func (h *Hub) leaveLocked(reference string, c *Client) {
	if group, ok := h.groups[reference]; ok {
		delete(group, c)
		if len(group) == 0 {
			delete(h.groups, reference)
		}
	}
	if refs, ok := h.members[c]; ok {
		delete(refs, reference)
		if len(refs) == 0 {
			delete(h.members, c)
		}
	}
}

// Detach removes the client from every group it joined and releases its send
// channel. Called by the transport when the connection closes. The channel is
// closed while holding the write lock; Broadcast sends under the read lock, so
// a send can never race the close.
func (h *Hub) Detach(c *Client) {
	h.mu.Lock()
	for reference := range h.members[c] {
		h.leaveLocked(reference, c)
	}
	delete(h.members, c)
	c.close()
	h.mu.Unlock()
}

// Broadcast delivers the message to every client currently in the reference's
// group and returns the number of clients it was handed to. An empty group is
// not an error; the message is simply dropped. Clients whose send buffer is
// full are disconnected rather than allowed to stall the fan-out.
func (h *Hub) Broadcast(reference string, msg domain.StatusMessage) int {
	data, err := msg.Envelope()
	if err != nil {
		log.Printf("level=error component=hub msg=\"envelope marshal failed\" prn=%s err=%v", reference, err)
		return 0
	}

	// Sends happen under the read lock: detaching closes a client's send
	// channel under the write lock, so no send can hit a closed channel.
	// Slow clients are collected and detached after the lock is released.
	h.mu.RLock()
	delivered := 0
	var slow []*Client
	for c := range h.groups[reference] {
		select {
		case c.send <- data:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Printf("level=warn component=hub msg=\"client too slow; detaching\" prn=%s", reference)
		h.Detach(c)
	}
	return delivered
}

// GroupSize reports the current subscriber count for a reference.
func (h *Hub) GroupSize(reference string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[reference])
}
