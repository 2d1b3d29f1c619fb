package realtime

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/storefront-backend/internal/platform/logger"
)

type HubOptions struct {
	ClientBuffer      int
	HeartbeatInterval time.Duration
}

type Hub struct {
	mu            sync.RWMutex
	logger        *logger.Logger
	subscriptions map[string]map[*Client]bool
	buffer        int
	heartbeat     time.Duration
}

func NewHub(log *logger.Logger, opts HubOptions) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.ClientBuffer <= 0 {
		opts.ClientBuffer = 16
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 25 * time.Second
	}
	return &Hub{
		logger:        log.With("component", "SSEHub"),
		subscriptions: make(map[string]map[*Client]bool),
		buffer:        opts.ClientBuffer,
		heartbeat:     opts.HeartbeatInterval,
	}
}

func (hub *Hub) NewClient(sessionID string) *Client {
	id := uuid.New()
	return &Client{
		ID:        id,
		SessionID: sessionID,
		Channels:  make(map[string]bool),
		Outbound:  make(chan Message, hub.buffer),
		done:      make(chan struct{}),
		Logger:    hub.logger.With("client_id", id.String()),
	}
}

func (hub *Hub) AddChannel(client *Client, channel string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}
	client.Channels[channel] = true

	clients, exists := hub.subscriptions[channel]
	if !exists {
		clients = make(map[*Client]bool)
		hub.subscriptions[channel] = clients
	}
	clients[client] = true
	hub.logger.Debug("SSE client subscribed", "client_id", client.ID, "session_id", channel)
}

func (hub *Hub) RemoveClient(client *Client) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.removeLocked(client)
}

func (hub *Hub) removeLocked(client *Client) {
	for ch := range client.Channels {
		if subMap, ok := hub.subscriptions[ch]; ok {
			delete(subMap, client)
			if len(subMap) == 0 {
				delete(hub.subscriptions, ch)
			}
		}
	}
	client.Channels = make(map[string]bool)
}

// Broadcast never blocks. A client with a full buffer misses the message;
// the next snapshot supersedes it anyway.
func (hub *Hub) Broadcast(msg Message) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if msg.Channel == "" {
		return
	}
	clients, ok := hub.subscriptions[msg.Channel]
	if !ok {
		return
	}
	for c := range clients {
		select {
		case c.Outbound <- msg:
		default:
			hub.logger.Warn("Dropping SSE message; outbound buffer full", "client_id", c.ID)
		}
	}
}

// Clients reports how many streams listen on channel.
func (hub *Hub) Clients(channel string) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.subscriptions[channel])
}

func (hub *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request, client *Client) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "retry: 3000\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(hub.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			client.Logger.Debug("SSE client context done", "err", ctx.Err())
			return
		case <-client.done:
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-client.Outbound:
			if !ok {
				return
			}
			_, _ = fmt.Fprintf(w, "event: %s\n", msg.Event)
			_, _ = fmt.Fprintf(w, "data: %s\n\n", msg.Data)
			flusher.Flush()
		}
	}
}

// CloseClient unsubscribes the client and closes its channels. Safe to call
// more than once.
func (hub *Hub) CloseClient(client *Client) {
	client.closeOnce.Do(func() {
		hub.mu.Lock()
		hub.removeLocked(client)
		close(client.done)
		close(client.Outbound)
		hub.mu.Unlock()
	})
}
