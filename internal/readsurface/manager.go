package readsurface

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/kestrelquant/silentobserver/internal/hub"
	"github.com/kestrelquant/silentobserver/internal/wire"
)

// Manager handles client registration and broadcast fan-out. One Manager
// serves the single instrument a kernel run observes.
type Manager struct {
	mu         sync.RWMutex
	clients    map[uint64]*Client
	bufferSize int

	lastBroadcastSnapshotID uint64
}

// NewManager creates a read-surface manager. bufferSize bounds each
// client's per-connection send buffer (config: readsurface.send_buffer).
func NewManager(bufferSize int) *Manager {
	return &Manager{
		clients:    make(map[uint64]*Client),
		bufferSize: bufferSize,
	}
}

// Register adds a newly-upgraded connection and returns its Client.
func (m *Manager) Register(conn *websocket.Conn) *Client {
	c := NewClient(conn, m.bufferSize)
	m.mu.Lock()
	m.clients[c.ID] = c
	m.mu.Unlock()
	log.Printf("readsurface: client %d connected (%s)", c.ID, conn.RemoteAddr())
	return c
}

// Unregister removes and closes a client.
func (m *Manager) Unregister(c *Client) {
	m.mu.Lock()
	delete(m.clients, c.ID)
	m.mu.Unlock()
	c.Close()
	log.Printf("readsurface: client %d disconnected", c.ID)
}

// ClientCount returns the number of currently registered clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// BroadcastLatest pushes h.Latest() to every subscribed client, once per
// advance of snapshot_id — calling this more often than the hub publishes
// is a harmless no-op. Each client receives the frame in its own chosen
// encoding; JSON and binary frames are each encoded at most once per
// broadcast regardless of subscriber count.
func (m *Manager) BroadcastLatest(h *hub.Hub) {
	snap, ok := h.Latest()
	if !ok {
		return
	}

	m.mu.Lock()
	if snap.SnapshotID == m.lastBroadcastSnapshotID {
		m.mu.Unlock()
		return
	}
	m.lastBroadcastSnapshotID = snap.SnapshotID
	m.mu.Unlock()

	var jsonFrame, binFrame []byte
	var jsonOnce, binOnce sync.Once

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.clients {
		if !c.IsSubscribed() {
			continue
		}
		switch c.Format() {
		case FormatJSON:
			jsonOnce.Do(func() {
				jsonFrame, _ = wire.EncodeJSON(snap)
			})
			if jsonFrame != nil {
				c.Send(jsonFrame)
			}
		case FormatBinary:
			binOnce.Do(func() {
				binFrame = wire.EncodeBinary(snap)
			})
			c.Send(binFrame)
		}
	}
}
