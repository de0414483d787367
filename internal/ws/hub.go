package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatstack/routing-service/internal/config"
	"github.com/chatstack/routing-service/internal/observability"
)

// Transport is the write side of one socket connection.
type Transport interface {
	WriteJSON(v any) error
	Close() error
}

// Client is one registered connection. Frames queue on a per-client
// channel and a single writer goroutine drains it, which gives FIFO
// ordering within any group this client belongs to.
type Client struct {
	ID        string
	hub       *Hub
	transport Transport
	send      chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

// Hub groups connections and fans frames out to them. Delivery is
// best-effort with bounded retry; a closed connection cancels only its
// own pending sends.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	groups  map[string]map[string]*Client

	retries int
	backoff time.Duration
	logger  *zap.Logger
}

// NewHub creates the hub.
func NewHub(cfg config.GatewayConfig, logger *zap.Logger) *Hub {
	retries := cfg.SendRetries
	if retries < 0 {
		retries = 0
	}
	backoff := time.Duration(cfg.SendBackoffMS) * time.Millisecond
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &Hub{
		clients: make(map[string]*Client),
		groups:  make(map[string]map[string]*Client),
		retries: retries,
		backoff: backoff,
		logger:  logger,
	}
}

// Register attaches a transport and starts its writer.
func (h *Hub) Register(transport Transport) *Client {
	client := &Client{
		ID:        uuid.NewString(),
		hub:       h,
		transport: transport,
		send:      make(chan Frame, 256),
		done:      make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	go client.writeLoop()
	return client
}

// Unregister removes the client from every group and cancels its pending
// sends. In-flight deliveries to other members are unaffected.
func (h *Hub) Unregister(client *Client) {
	client.closeOnce.Do(func() {
		close(client.done)
	})
	h.mu.Lock()
	delete(h.clients, client.ID)
	for name, members := range h.groups {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.groups, name)
		}
	}
	h.mu.Unlock()
	_ = client.transport.Close()
}

// Join adds the client to a group.
func (h *Hub) Join(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]*Client)
		h.groups[group] = members
	}
	members[client.ID] = client
}

// Leave removes the client from a group.
func (h *Hub) Leave(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.groups[group]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
}

// SendGroup enqueues a frame for every member of the group. Each member
// receives the frame at most once.
func (h *Hub) SendGroup(group string, frame Frame) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.groups[group]))
	for _, c := range h.groups[group] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.enqueue(frame, h)
	}
}

// SendGroupExcept behaves like SendGroup but skips one connection, used
// by the duplicate-tab check so the new connection does not answer its
// own probe.
func (h *Hub) SendGroupExcept(group string, exceptID string, frame Frame) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.groups[group]))
	for id, c := range h.groups[group] {
		if id != exceptID {
			members = append(members, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.enqueue(frame, h)
	}
}

// SendClient enqueues a frame for one connection.
func (h *Hub) SendClient(id string, frame Frame) bool {
	h.mu.RLock()
	client, ok := h.clients[id]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	client.enqueue(frame, h)
	return true
}

// GroupSize reports the member count of a group.
func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

func (c *Client) enqueue(frame Frame, h *Hub) {
	select {
	case <-c.done:
	case c.send <- frame:
	default:
		// Saturated slow consumer: dropping beats blocking the group.
		observability.GroupSendFailed()
		h.logger.Error("send buffer full, dropping frame",
			zap.String("connection", c.ID),
			zap.String("action", frame.Action),
		)
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			c.deliver(frame)
		}
	}
}

func (c *Client) deliver(frame Frame) {
	h := c.hub
	var err error
	for attempt := 0; attempt <= h.retries; attempt++ {
		if attempt > 0 {
			observability.GroupSendRetried()
			select {
			case <-c.done:
				return
			case <-time.After(h.backoff):
			}
		}
		if err = c.transport.WriteJSON(frame); err == nil {
			return
		}
	}
	observability.GroupSendFailed()
	h.logger.Error("group send failed",
		zap.String("connection", c.ID),
		zap.String("action", frame.Action),
		zap.Error(err),
	)
}
