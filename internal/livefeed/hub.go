package livefeed

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
	"github.com/priyankabp/stock-smart-kitchen/internal/log"
)

const (
	broadcastBuffer = 256
	clientBuffer    = 64
	writeTimeout    = 5 * time.Second
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type message struct {
	location string
	payload  []byte
}

// Client is a registered connection. Each client has its own writer
// goroutine, which owns the connection until Done is closed.
type Client struct {
	conn     Conn
	location string
	send     chan []byte
	stop     chan struct{}
	done     chan struct{}
}

// Done is closed once the client's writer has stopped and closed the
// connection.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Hub fans accepted observations out to websocket clients. A client may
// narrow its feed to one location; an empty location receives everything.
// A client that falls clientBuffer messages behind is dropped.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
	quit       chan struct{}

	mu      sync.Mutex
	clients map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, broadcastBuffer),
		quit:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
	}
}

// Run serves the hub until ctx is done, then stops every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.quit)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				h.removeLocked(c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			go h.write(c)
			log.L.WithField("location", c.location).Debug("live feed client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(c)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if c.location != "" && c.location != msg.location {
					continue
				}
				select {
				case c.send <- msg.payload:
				default:
					log.L.WithField("location", c.location).Warn("live feed client too slow; dropping")
					h.removeLocked(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) removeLocked(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.stop)
	}
}

// write delivers c's queued messages until the hub stops it or a write fails.
func (h *Hub) write(c *Client) {
	defer close(c.done)
	defer c.conn.Close()

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		select {
		case <-c.stop:
			return
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.L.WithError(err).Debug("dropping live feed client")
				select {
				case h.unregister <- c:
				case <-h.quit:
				}
				return
			}
		}
	}
}

// Register adds conn and starts its writer. It returns nil when ctx is done
// or the hub has stopped before the hub took the client.
func (h *Hub) Register(ctx context.Context, conn Conn, location string) *Client {
	c := &Client{
		conn:     conn,
		location: location,
		send:     make(chan []byte, clientBuffer),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	select {
	case h.register <- c:
		return c
	case <-h.quit:
	case <-ctx.Done():
	}
	return nil
}

// Unregister removes c and waits until its writer has let go of the
// connection, or ctx is done.
func (h *Hub) Unregister(ctx context.Context, c *Client) {
	if c == nil {
		return
	}
	select {
	case h.unregister <- c:
	case <-h.quit:
	case <-ctx.Done():
		return
	}
	select {
	case <-c.done:
	case <-ctx.Done():
	}
}

// Publish queues obs for every interested client. It never blocks; when the
// queue is full the observation is dropped from the feed.
func (h *Hub) Publish(obs kitchen.Observation) {
	payload, err := json.Marshal(obs)
	if err != nil {
		log.L.WithError(err).Warn("encode live feed observation")
		return
	}

	select {
	case h.broadcast <- message{location: obs.Location, payload: payload}:
	default:
		log.L.WithField("id", obs.ID).Warn("live feed queue full; dropping observation")
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
