package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/calebfinn/sitewarden/internal/service"
)

const (
	eventScanStarted   = "scan_started"
	eventFindingsAdded = "findings_added"
	eventScanFinished  = "scan_finished"
)

// ScanEvent is pushed to dashboards as the external scanner reports
// progress against a project.
type ScanEvent struct {
	Type         string `json:"type"`
	ProjectID    int64  `json:"project_id"`
	ScanID       int64  `json:"scan_id"`
	Status       string `json:"status,omitempty"`
	FindingCount int    `json:"finding_count,omitempty"`
}

// Hub manages WebSocket clients subscribed to a project's scan events.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[int64]map[*websocket.Conn]struct{}),
	}
}

func (h *Hub) Subscribe(projectID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[projectID] == nil {
		h.clients[projectID] = make(map[*websocket.Conn]struct{})
	}
	h.clients[projectID][conn] = struct{}{}
}

func (h *Hub) Unsubscribe(projectID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[projectID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, projectID)
		}
	}
}

func (h *Hub) Broadcast(projectID int64, event ScanEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	// Snapshot under the lock; subscribers come and go while we write.
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients[projectID]))
	for conn := range h.clients[projectID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		err := conn.Write(context.Background(), websocket.MessageText, data)
		if err != nil {
			slog.Debug("ws write error", "error", err)
			h.Unsubscribe(projectID, conn)
			conn.Close(websocket.StatusNormalClosure, "")
		}
	}
}

type wsSubscribeMsg struct {
	ProjectID int64 `json:"project_id"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("ws accept error", "error", err)
		return
	}
	defer conn.CloseNow()

	// Read subscribe message
	_, data, err := conn.Read(r.Context())
	if err != nil {
		return
	}

	var msg wsSubscribeMsg
	if err := json.Unmarshal(data, &msg); err != nil || msg.ProjectID == 0 {
		conn.Close(websocket.StatusInvalidFramePayloadData, "invalid subscribe message")
		return
	}

	// Only the project's owner may watch its scan events; an unowned
	// project looks exactly like a missing one.
	if _, err := s.svc.GetProject(callerID(r), msg.ProjectID); err != nil {
		if errors.Is(err, service.ErrNotFound) || errors.Is(err, service.ErrNoIdentity) {
			conn.Close(websocket.StatusPolicyViolation, "project not found")
		} else {
			conn.Close(websocket.StatusInternalError, "subscribe failed")
		}
		return
	}

	s.hub.Subscribe(msg.ProjectID, conn)
	defer s.hub.Unsubscribe(msg.ProjectID, conn)

	// Keep connection alive until the client goes away.
	for {
		_, _, err := conn.Read(r.Context())
		if err != nil {
			return
		}
	}
}
