package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hazixroland-ai/tiktoklive/internal/adapter/metrics"
	"github.com/jonboulle/clockwork"
)

const (
	commandTimeout = 5 * time.Second  // Actor command timeout
	stopTimeout    = 10 * time.Second // Graceful shutdown timeout
)

var (
	ErrTooManyClients = errors.New("too many overlay clients for streamer")
	ErrHubStopped     = errors.New("hub stopped")
)

type streamerClients map[Conn]*clientWriter

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type subscribeCmd struct {
	baseHubCmd
	streamerID   string
	connection   Conn
	snapshot     func() any
	replyChannel chan subscribeReply
}

type subscribeReply struct {
	clientID string
	err      error
}

type unsubscribeCmd struct {
	baseHubCmd
	streamerID string
	connection Conn
}

type disconnectCmd struct {
	baseHubCmd
	streamerID string
	reason     string
}

type publishCmd struct {
	baseHubCmd
	streamerID string
	data       []byte
}

type writerFailedCmd struct {
	baseHubCmd
	streamerID string
	connection Conn
	writer     *clientWriter
}

type clientCountCmd struct {
	baseHubCmd
	streamerID   string
	replyChannel chan int
}

type stopCmd struct {
	baseHubCmd
}

// Hub fans overlay messages out to the WebSocket clients of each streamer.
type Hub struct {
	cmdCh                 chan hubCmd
	clock                 clockwork.Clock
	metrics               *metrics.HubMetrics
	activeClients         map[string]streamerClients
	done                  chan struct{}
	stopTimeout           time.Duration
	maxClientsPerStreamer int
}

// NewHub creates and starts a hub.
// maxClientsPerStreamer limits connections per streamer (prevents resource exhaustion).
func NewHub(clock clockwork.Clock, m *metrics.HubMetrics, maxClientsPerStreamer int) *Hub {
	h := &Hub{
		cmdCh:                 make(chan hubCmd, 256),
		clock:                 clock,
		metrics:               m,
		activeClients:         make(map[string]streamerClients),
		done:                  make(chan struct{}),
		stopTimeout:           stopTimeout,
		maxClientsPerStreamer: maxClientsPerStreamer,
	}
	go h.run()
	return h
}

// Subscribe registers conn for streamerID. The value returned by snapshot is
// written to the client before any message published after registration.
func (h *Hub) Subscribe(streamerID string, conn Conn, snapshot func() any) (string, error) {
	replyCh := make(chan subscribeReply, 1)
	if err := h.send(subscribeCmd{streamerID: streamerID, connection: conn, snapshot: snapshot, replyChannel: replyCh}); err != nil {
		return "", err
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case reply := <-replyCh:
		return reply.clientID, reply.err
	case <-h.done:
		return "", ErrHubStopped
	case <-timer.Chan():
		return "", fmt.Errorf("subscribe command timed out after %v", commandTimeout)
	}
}

// Unsubscribe removes conn. Unknown streamers or connections are ignored.
func (h *Hub) Unsubscribe(streamerID string, conn Conn) {
	_ = h.send(unsubscribeCmd{streamerID: streamerID, connection: conn})
}

// Disconnect closes every client of streamerID with a normal close frame
// carrying reason.
func (h *Hub) Disconnect(streamerID, reason string) {
	_ = h.send(disconnectCmd{streamerID: streamerID, reason: reason})
}

// Publish serializes msg once and enqueues it to every client of streamerID.
// Clients that cannot keep up are dropped; they never fail the publish.
func (h *Hub) Publish(streamerID string, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal overlay message: %w", err)
	}
	return h.send(publishCmd{streamerID: streamerID, data: data})
}

// ClientCount returns the number of connected clients for a streamer.
// Returns -1 if the command times out.
func (h *Hub) ClientCount(streamerID string) int {
	replyCh := make(chan int, 1)
	if err := h.send(clientCountCmd{streamerID: streamerID, replyChannel: replyCh}); err != nil {
		return 0
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-h.done:
		return 0
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts down the hub, closing all client connections.
// Blocks until the hub goroutine has exited or timeout is reached.
func (h *Hub) Stop() {
	if err := h.send(stopCmd{}); err != nil {
		return
	}

	timeout := h.clock.NewTimer(h.stopTimeout)
	defer timeout.Stop()

	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Hub stop timeout exceeded", "timeout", h.stopTimeout)
	}
}

func (h *Hub) send(cmd hubCmd) error {
	select {
	case h.cmdCh <- cmd:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) run() {
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r)
			h.closeAllClients("hub panic")
		}
	}()

	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case subscribeCmd:
			c.replyChannel <- h.handleSubscribe(c)
		case unsubscribeCmd:
			h.remove(c.streamerID, c.connection)
		case disconnectCmd:
			h.handleDisconnect(c)
		case publishCmd:
			h.handlePublish(c)
		case writerFailedCmd:
			h.handleWriterFailed(c)
		case clientCountCmd:
			c.replyChannel <- len(h.activeClients[c.streamerID])
		case stopCmd:
			h.handleStop()
			return
		default:
			slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (h *Hub) handleSubscribe(c subscribeCmd) subscribeReply {
	clients := h.activeClients[c.streamerID]
	if h.maxClientsPerStreamer > 0 && len(clients) >= h.maxClientsPerStreamer {
		slog.Warn("Rejecting client: max clients reached", "streamer_id", c.streamerID, "max_clients", h.maxClientsPerStreamer)
		h.metrics.RejectedClients.Inc()
		return subscribeReply{err: fmt.Errorf("%w (%d)", ErrTooManyClients, h.maxClientsPerStreamer)}
	}

	var initial []byte
	if c.snapshot != nil {
		data, err := json.Marshal(c.snapshot())
		if err != nil {
			return subscribeReply{err: fmt.Errorf("failed to marshal snapshot: %w", err)}
		}
		initial = data
	}

	if clients == nil {
		clients = make(streamerClients)
		h.activeClients[c.streamerID] = clients
		h.metrics.ActiveStreamers.Set(float64(len(h.activeClients)))
	}

	cw := newClientWriter(c.connection, h.clock, h.metrics, func(failed *clientWriter) {
		_ = h.send(writerFailedCmd{streamerID: c.streamerID, connection: c.connection, writer: failed})
	})
	if initial != nil {
		cw.sendChannel <- initial
	}
	clients[c.connection] = cw
	h.metrics.ActiveConnections.Inc()

	clientID := uuid.NewString()
	slog.Debug("Client subscribed", "streamer_id", c.streamerID, "client_id", clientID, "total_clients", len(clients))
	return subscribeReply{clientID: clientID}
}

func (h *Hub) handlePublish(c publishCmd) {
	clients := h.activeClients[c.streamerID]
	if len(clients) == 0 {
		return
	}

	var slow []Conn
	for conn, writer := range clients {
		select {
		case writer.sendChannel <- c.data:
		default:
			slow = append(slow, conn)
		}
	}
	h.metrics.MessagesPublished.Inc()

	for _, conn := range slow {
		slog.Warn("Disconnecting slow client", "streamer_id", c.streamerID)
		h.metrics.SlowClientsEvicted.Inc()
		h.remove(c.streamerID, conn)
	}
}

func (h *Hub) handleWriterFailed(c writerFailedCmd) {
	if cw, ok := h.activeClients[c.streamerID][c.connection]; !ok || cw != c.writer {
		return
	}
	slog.Debug("Dropping client after write failure", "streamer_id", c.streamerID)
	h.metrics.WriteFailures.Inc()
	h.remove(c.streamerID, c.connection)
}

func (h *Hub) remove(streamerID string, conn Conn) {
	clients, exists := h.activeClients[streamerID]
	if !exists {
		return
	}
	cw, exists := clients[conn]
	if !exists {
		return
	}

	cw.stop()
	delete(clients, conn)
	h.metrics.ActiveConnections.Dec()

	if len(clients) == 0 {
		delete(h.activeClients, streamerID)
		h.metrics.ActiveStreamers.Set(float64(len(h.activeClients)))
		slog.Info("Last overlay client disconnected", "streamer_id", streamerID)
	} else {
		slog.Debug("Client unsubscribed", "streamer_id", streamerID, "remaining_clients", len(clients))
	}
}

func (h *Hub) handleDisconnect(c disconnectCmd) {
	clients, exists := h.activeClients[c.streamerID]
	if !exists {
		return
	}
	for _, cw := range clients {
		cw.stopGraceful(c.reason)
		h.metrics.ActiveConnections.Dec()
	}
	delete(h.activeClients, c.streamerID)
	h.metrics.ActiveStreamers.Set(float64(len(h.activeClients)))
	slog.Info("Overlay clients disconnected", "streamer_id", c.streamerID, "clients", len(clients), "reason", c.reason)
}

func (h *Hub) handleStop() {
	totalClients := 0
	for _, clients := range h.activeClients {
		totalClients += len(clients)
	}

	slog.Info("Hub shutting down", "streamers", len(h.activeClients), "total_clients", totalClients)
	h.closeAllClients("Server shutting down")
	slog.Info("Hub shutdown complete", "disconnected_clients", totalClients)
}

// closeAllClients closes all client connections with the given reason.
// Used during panic recovery and graceful shutdown.
func (h *Hub) closeAllClients(reason string) {
	for streamerID, clients := range h.activeClients {
		for _, cw := range clients {
			cw.stopGraceful(reason)
			h.metrics.ActiveConnections.Dec()
		}
		delete(h.activeClients, streamerID)
	}
	h.metrics.ActiveStreamers.Set(0)
}
