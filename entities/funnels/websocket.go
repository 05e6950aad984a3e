package funnels

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spacearena/lead-pipeline/schemas"
)

const (
	WS_ACTION_STAGE_CHANGED = "stage_changed"
	WS_ACTION_BULK_FINISHED = "bulk_finished"
)

type FunnelWSMessage struct {
	Action     string `json:"action"`
	CampaignID string `json:"campaignId,omitempty"`
	Board      any    `json:"board"`
	Details    string `json:"details"`
}

const (
	DEFAULT_WS_WRITE_WAIT  = 5 * time.Second
	DEFAULT_WS_SEND_BUFFER = 64
)

// Hub pushes funnel board updates to connected websocket clients. Clients
// may pass ?campaignId= to receive a single campaign's events.
// A client whose send queue is full is disconnected.
type Hub struct {
	upgrader   websocket.Upgrader
	logger     *slog.Logger
	writeWait  time.Duration
	sendBuffer int

	mu      sync.Mutex
	clients map[*hubClient]struct{}
}

type hubClient struct {
	conn       *websocket.Conn
	campaignID string
	send       chan FunnelWSMessage
}

type HubOption func(*Hub)

func WithWriteWait(wait time.Duration) HubOption {
	return func(h *Hub) {
		if wait > 0 {
			h.writeWait = wait
		}
	}
}

func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

func NewHub(logger *slog.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:     logger.With("component", "funnel_ws"),
		writeWait:  DEFAULT_WS_WRITE_WAIT,
		sendBuffer: DEFAULT_WS_SEND_BUFFER,
		clients:    make(map[*hubClient]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Broadcast(msg FunnelWSMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if client.campaignID != "" && client.campaignID != msg.CampaignID {
			continue
		}
		select {
		case client.send <- msg:
		default:
			h.logger.Warn("dropping slow websocket client", "campaign_id", client.campaignID)
			h.dropLocked(client)
		}
	}
}

// dropLocked must be called with h.mu held.
func (h *Hub) dropLocked(client *hubClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	client.conn.Close()
}

func (h *Hub) drop(client *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(client)
}

func (h *Hub) writeLoop(client *hubClient) {
	for msg := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
		if err := client.conn.WriteJSON(msg); err != nil {
			h.drop(client)
		}
	}
}

func (h *Hub) TransitionApplied(ctx context.Context, outcome schemas.TransitionOutcome) {
	h.Broadcast(FunnelWSMessage{
		Action:     WS_ACTION_STAGE_CHANGED,
		CampaignID: outcome.CampaignID.Hex(),
		Board:      outcome,
	})
}

func (h *Hub) BulkCompleted(ctx context.Context, result schemas.BulkTransitionResult) {
	h.Broadcast(FunnelWSMessage{
		Action:     WS_ACTION_BULK_FINISHED,
		CampaignID: result.CampaignID,
		Board:      result,
	})
}

// Clients reports the number of connected sockets.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &hubClient{
		conn:       conn,
		campaignID: r.URL.Query().Get("campaignId"),
		send:       make(chan FunnelWSMessage, h.sendBuffer),
	}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(client)

	// Board clients only listen; reading keeps the connection alive and
	// notices when the peer goes away.
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}
	h.drop(client)
}
