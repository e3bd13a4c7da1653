// Package server coordinates client registration, outbound delivery, and
// connection cleanup for the roomchat WebSocket system via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/Tyrowin/roomchat/internal/chat"
)

var (
	// ErrUnknownConnection is returned by Send for an id the hub does not hold.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrSendBufferFull is returned by Send when a connection's outbound
	// queue is full. The connection is dropped.
	ErrSendBufferFull = errors.New("send buffer full")
	// ErrHubClosed is returned when registering with a hub that has shut down.
	ErrHubClosed = errors.New("hub closed")
)

// Handler receives connection lifecycle events and inbound frames.
// *chat.Router satisfies it.
type Handler interface {
	OnConnect(ctx context.Context, connID string)
	Dispatch(ctx context.Context, connID string, frame []byte)
	OnDisconnect(ctx context.Context, connID string)
}

type nopHandler struct{}

func (nopHandler) OnConnect(context.Context, string)        {}
func (nopHandler) Dispatch(context.Context, string, []byte) {}
func (nopHandler) OnDisconnect(context.Context, string)     {}

// Hub manages all WebSocket client connections and routes outbound envelopes
// to them by connection id. It implements chat.Emitter.
type Hub struct {
	clients        map[string]*Client
	register       chan *Client
	unregister     chan *Client
	handler        Handler
	metrics        *Metrics
	logger         *slog.Logger
	sendBufferSize int
	maxMessageSize int64
	mutex          sync.RWMutex
	wg             sync.WaitGroup
	ctx            context.Context
	cancel         context.CancelFunc
	done           chan struct{}
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHandler sets the receiver of connection events.
func WithHandler(handler Handler) HubOption {
	return func(h *Hub) {
		h.handler = handler
	}
}

// WithLogger sets the hub logger.
func WithLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithMetrics attaches connection and delivery metrics.
func WithMetrics(metrics *Metrics) HubOption {
	return func(h *Hub) {
		h.metrics = metrics
	}
}

// WithSendBufferSize sets the per-connection outbound queue length.
func WithSendBufferSize(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.sendBufferSize = size
		}
	}
}

// WithMaxMessageSize sets the read limit applied to every connection.
func WithMaxMessageSize(size int64) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.maxMessageSize = size
		}
	}
}

// NewHub creates and initializes a new Hub instance with all necessary channels
// and client map. The returned Hub is ready to manage WebSocket connections.
func NewHub(opts ...HubOption) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:        make(map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		handler:        nopHandler{},
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		sendBufferSize: defaultSendBufferSize,
		maxMessageSize: defaultMaxMessageSize,
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetHandler replaces the handler. It must be called before Run.
func (h *Hub) SetHandler(handler Handler) {
	h.handler = handler
}

// Register hands a client to the run loop, which starts its pumps. It fails
// once the hub is shutting down.
func (h *Hub) Register(client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	}
}

// Send encodes env and queues it for connID without blocking. A connection
// whose queue is full is dropped.
func (h *Hub) Send(connID string, env chat.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Event, err)
	}

	h.mutex.RLock()
	client, ok := h.clients[connID]
	h.mutex.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}
	return h.deliver(client, payload)
}

// deliver queues payload for client. A client released after the lookup in
// Send is reported as unknown and is not counted as a dropped send.
func (h *Hub) deliver(client *Client, payload []byte) error {
	if h.safeSend(client, payload) {
		return nil
	}
	if !h.registered(client) {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, client.id)
	}
	h.removeFailedClients([]*Client{client})
	return fmt.Errorf("%w: %s", ErrSendBufferFull, client.id)
}

func (h *Hub) registered(client *Client) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	current, ok := h.clients[client.id]
	return ok && current == client && !client.closed
}

// Connections returns the ids of every registered connection.
func (h *Hub) Connections() []string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return lo.Keys(h.clients)
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) safeSend(client *Client, message []byte) (sent bool) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Recovered from panic in safeSend", "conn", client.id, "panic", r)
			sent = false
		}
	}()

	// The read lock keeps the channel open for the duration of the send.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.clients[client.id]; !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. It returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn("Received nil client registration; skipping")
				continue
			}
			h.add(client)

		case client := <-h.unregister:
			h.release(client)
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()

	h.metrics.connectionOpened()
	h.logger.Info("Client registered", "conn", client.id, "remote", client.addr, "clients", clientCount)

	// The session must exist before the read pump can dispatch frames.
	h.handler.OnConnect(h.ctx, client.id)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// leave is called by a read pump on exit. Once the run loop has stopped the
// client is released directly.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
		h.release(client)
	}
}

// release removes the client if it is still registered, closes its queue and
// runs disconnect cleanup exactly once.
func (h *Hub) release(client *Client) {
	h.mutex.Lock()
	if current, ok := h.clients[client.id]; ok && current == client {
		delete(h.clients, client.id)
		client.closed = true
		clientCount := len(h.clients)
		h.mutex.Unlock()
		close(client.send)
		h.logger.Info("Client unregistered", "conn", client.id, "remote", client.addr, "clients", clientCount)
	} else {
		h.mutex.Unlock()
	}

	client.cleanup.Do(func() {
		h.metrics.connectionClosed()
		h.handler.OnDisconnect(context.WithoutCancel(h.ctx), client.id)
	})
}

func (h *Hub) dispatch(client *Client, frame []byte) {
	h.handler.Dispatch(h.ctx, client.id, frame)
}

// removeFailedClients removes clients that failed to receive messages and closes their channels.
// Their read pumps notice the closed socket and run the normal disconnect path.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if current, exists := h.clients[client.id]; exists && current == client {
			delete(h.clients, client.id)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			h.metrics.sendDropped()
			h.logger.Warn("Client removed due to full send buffer", "conn", client.id, "remote", client.addr)
		}
	}
	h.mutex.Unlock()

	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients closes every active connection. Each read pump then exits
// and runs its disconnect cleanup.
func (h *Hub) shutdownClients() {
	h.logger.Info("Shutting down all client connections")

	h.mutex.RLock()
	clients := lo.Values(h.clients)
	h.mutex.RUnlock()

	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.logger.Warn("Error closing client connection", "conn", client.id, "error", err)
		}
	}

	h.logger.Info("Closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("Initiating hub shutdown")

	h.cancel()

	select {
	case <-h.done:
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
