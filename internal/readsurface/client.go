// Package readsurface is the WebSocket transport that pushes published
// snapshots to external subscribers. It never renders anything — "the
// UI" that interprets a pushed frame is out of scope (spec.md §1) — it
// only fans out whatever the DataHub last published, in the subscriber's
// chosen encoding.
//
// Grounded on the teacher's internal/session package (Manager/Client/
// Handler) nearly whole: the per-client buffered-channel-plus-
// writePump/readPump goroutine pair, the ping/pong keepalive, and the
// format-switch control message are all kept. What changes is the
// subscription model — one instrument, so "subscribe" just toggles
// "include me in the next broadcast" — and the payload, a whole snapshot
// encoded by wire.EncodeJSON or wire.EncodeBinary rather than an
// itch.Message.
package readsurface

import (
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Format is a client's preferred snapshot encoding.
type Format int

const (
	FormatJSON   Format = 0
	FormatBinary Format = 1
)

// Client represents one connected WebSocket reader.
type Client struct {
	ID   uint64
	Conn *websocket.Conn

	mu         sync.RWMutex
	format     Format
	subscribed bool

	sendCh     chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	bufferSize int

	Dropped uint64
}

var clientIDCounter uint64

// NewClient wraps conn in a Client with a send buffer of bufferSize.
// Clients start subscribed: with a single instrument there is no
// meaningful "not yet subscribed" default the way a multi-ticker feed
// would have.
func NewClient(conn *websocket.Conn, bufferSize int) *Client {
	return &Client{
		ID:         atomic.AddUint64(&clientIDCounter, 1),
		Conn:       conn,
		format:     FormatJSON,
		subscribed: true,
		sendCh:     make(chan []byte, bufferSize),
		done:       make(chan struct{}),
		bufferSize: bufferSize,
	}
}

func (c *Client) Format() Format {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.format
}

func (c *Client) SetFormat(f Format) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.format = f
}

// Subscribe marks the client as wanting future broadcasts.
func (c *Client) Subscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = true
}

// Unsubscribe stops future broadcasts from reaching this client until it
// subscribes again.
func (c *Client) Unsubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = false
}

func (c *Client) IsSubscribed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscribed
}

// Send enqueues data for the write pump. Returns false, counting a drop,
// if the client's send buffer is full — a slow reader never blocks the
// broadcaster (spec.md §5's "nothing outside the Engine mutates state
// visible to readers" extends to "no reader stalls a publisher").
func (c *Client) Send(data []byte) bool {
	select {
	case c.sendCh <- data:
		return true
	default:
		atomic.AddUint64(&c.Dropped, 1)
		return false
	}
}

func (c *Client) SendCh() <-chan []byte { return c.sendCh }
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.Conn.Close()
	})
}
