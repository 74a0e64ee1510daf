package events

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/concord-kg/concord/pkg/apperror"
	"github.com/concord-kg/concord/pkg/logger"
)

// HeartbeatInterval is how often heartbeat events are sent.
const HeartbeatInterval = 30 * time.Second

// Handler handles SSE connections for decision events.
type Handler struct {
	svc *Service
	log *slog.Logger

	connMu      sync.RWMutex
	connections map[string]*SSEConnection

	heartbeatCtx    context.Context
	heartbeatCancel context.CancelFunc
}

// NewHandler creates a new events handler.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Handler{
		svc:             svc,
		log:             log.With(logger.Scope("events.handler")),
		connections:     make(map[string]*SSEConnection),
		heartbeatCtx:    ctx,
		heartbeatCancel: cancel,
	}
	go h.heartbeatLoop()
	return h
}

// Stop stops the handler and closes all connections.
func (h *Handler) Stop() {
	h.heartbeatCancel()

	h.connMu.Lock()
	defer h.connMu.Unlock()

	for connID, conn := range h.connections {
		close(conn.Done)
		delete(h.connections, connID)
	}
}

func (h *Handler) heartbeatLoop() {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.heartbeatCtx.Done():
			return
		case <-ticker.C:
			h.sendHeartbeats()
		}
	}
}

func (h *Handler) sendHeartbeats() {
	h.connMu.RLock()
	connections := make([]*SSEConnection, 0, len(h.connections))
	for _, conn := range h.connections {
		connections = append(connections, conn)
	}
	h.connMu.RUnlock()

	if len(connections) == 0 {
		return
	}

	now := time.Now().UTC()
	heartbeat := HeartbeatEvent{Timestamp: now.Format(time.RFC3339)}

	for _, conn := range connections {
		select {
		case <-conn.Done:
			continue
		default:
			if err := h.sendEvent(conn, "heartbeat", heartbeat); err != nil {
				h.log.Warn("failed to send heartbeat",
					slog.String("connection_id", conn.ConnectionID),
					logger.Error(err),
				)
				h.removeConnection(conn.ConnectionID)
			} else {
				conn.LastHeartbeat = now
			}
		}
	}
}

// HandleStream handles GET /api/events/stream - SSE connection endpoint.
// An optional correlationId query parameter narrows the stream to one
// submission chain, including proposals the reasoning engine derives.
func (h *Handler) HandleStream(c echo.Context) error {
	correlationID := c.QueryParam("correlationId")

	connectionID := h.generateConnectionID()

	w := c.Response().Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		return apperror.ErrInternal.WithMessage("streaming not supported")
	}

	conn := &SSEConnection{
		ConnectionID:  connectionID,
		CorrelationID: correlationID,
		Writer:        w,
		Flusher:       flusher,
		Done:          make(chan struct{}),
		LastHeartbeat: time.Now(),
	}

	h.connMu.Lock()
	h.connections[connectionID] = conn
	h.connMu.Unlock()

	defer h.removeConnection(connectionID)

	h.log.Info("SSE connection established",
		slog.String("connection_id", connectionID),
		slog.String("correlation_id", correlationID),
	)

	connectedEvent := ConnectedEvent{
		ConnectionID:  connectionID,
		CorrelationID: correlationID,
	}
	if err := h.sendEvent(conn, "connected", connectedEvent); err != nil {
		h.log.Error("failed to send connected event", logger.Error(err))
		return nil
	}

	unsubscribe := h.svc.Subscribe(correlationID, func(event DecisionEvent) {
		select {
		case <-conn.Done:
			return
		default:
			if err := h.sendEvent(conn, "decision", event); err != nil {
				h.log.Warn("failed to send event to connection",
					slog.String("connection_id", connectionID),
					logger.Error(err),
				)
			}
		}
	})
	defer unsubscribe()

	ctx := c.Request().Context()
	select {
	case <-ctx.Done():
		h.log.Info("SSE connection closed (client disconnected)",
			slog.String("connection_id", connectionID),
		)
	case <-conn.Done:
		h.log.Info("SSE connection closed (server closed)",
			slog.String("connection_id", connectionID),
		)
	}

	return nil
}

// HandleConnectionsCount handles GET /api/events/connections/count.
func (h *Handler) HandleConnectionsCount(c echo.Context) error {
	h.connMu.RLock()
	count := len(h.connections)
	h.connMu.RUnlock()

	return c.JSON(http.StatusOK, map[string]int{"count": count})
}

func (h *Handler) sendEvent(conn *SSEConnection, event string, data any) error {
	select {
	case <-conn.Done:
		return fmt.Errorf("connection closed")
	default:
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	conn.writeMu.Lock()
	defer conn.writeMu.Unlock()

	fmt.Fprintf(conn.Writer, "event: %s\n", event)
	fmt.Fprintf(conn.Writer, "data: %s\n\n", jsonData)
	conn.Flusher.Flush()

	return nil
}

func (h *Handler) removeConnection(connectionID string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()

	if conn, ok := h.connections[connectionID]; ok {
		select {
		case <-conn.Done:
		default:
			close(conn.Done)
		}
		delete(h.connections, connectionID)
	}
}

func (h *Handler) generateConnectionID() string {
	bytes := make([]byte, 16)
	rand.Read(bytes)
	return fmt.Sprintf("sse_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(bytes)[:12])
}
