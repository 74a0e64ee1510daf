// Package events publishes governance decision events. Events are emitted
// only after the decision is durable in the log, and delivery is
// best-effort fanout to live subscribers.
package events

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConflictInfo summarizes one detected conflict and how it was resolved.
type ConflictInfo struct {
	Kind     string `json:"kind"`
	EntityID string `json:"entityId,omitempty"`
	Strategy string `json:"strategy,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
}

// DecisionEvent is the payload published for every proposal decision.
type DecisionEvent struct {
	ProposalID    uuid.UUID      `json:"proposalId"`
	CorrelationID string         `json:"correlationId"`
	Operation     string         `json:"operation"`
	EntityID      string         `json:"entityId,omitempty"`
	Decision      string         `json:"decision"`
	Escalation    string         `json:"escalation,omitempty"`
	Conflicts     []ConflictInfo `json:"conflicts,omitempty"`
	Warnings      []string       `json:"warnings,omitempty"`
	InferredFacts map[string]any `json:"inferredFacts,omitempty"`
	Timestamp     string         `json:"timestamp"`
}

// SSEConnection represents one SSE subscriber connection. The mutex
// serializes writes: heartbeats and decision callbacks arrive from
// different goroutines but share one ResponseWriter.
type SSEConnection struct {
	ConnectionID  string
	CorrelationID string
	Writer        http.ResponseWriter
	Flusher       http.Flusher
	Done          chan struct{}
	LastHeartbeat time.Time

	writeMu sync.Mutex
}

// ConnectedEvent is sent when a client connects.
type ConnectedEvent struct {
	ConnectionID  string `json:"connectionId"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// HeartbeatEvent is sent periodically to keep connections alive.
type HeartbeatEvent struct {
	Timestamp string `json:"timestamp"`
}
