// Package events publishes the engine's structured observability records.
// Events are append-only audit material; core decision logic never consumes
// them.
package events

import (
	"context"
	"sync"
	"time"
)

// Type enumerates the emitted event kinds.
type Type string

const (
	RouteComputed                 Type = "route_computed"
	HopExecuted                   Type = "hop_executed"
	ArbitrageExecuted             Type = "arbitrage_executed"
	ProtectedTransactionCreated   Type = "protected_transaction_created"
	ProtectedTransactionExecuted  Type = "protected_transaction_executed"
	ProtectedTransactionCancelled Type = "protected_transaction_cancelled"
	SandwichAttackDetected        Type = "sandwich_attack_detected"
	AttackReported                Type = "attack_reported"
)

// Event is one structured record.
type Event struct {
	Type      Type           `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields"`
}

// New builds an event stamped with the current time.
func New(t Type, fields map[string]any) Event {
	return Event{Type: t, Timestamp: time.Now().UTC(), Fields: fields}
}

// Emitter delivers events to the observability collaborator. Emission is
// best-effort: a failed emit must never fail the operation that produced it.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// MemoryEmitter collects events in memory, for tests and as a fallback when
// no stream backend is configured.
type MemoryEmitter struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryEmitter creates an empty in-memory emitter.
func NewMemoryEmitter() *MemoryEmitter {
	return &MemoryEmitter{}
}

// Emit appends the event.
func (m *MemoryEmitter) Emit(_ context.Context, ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

// Events returns a copy of everything emitted so far.
func (m *MemoryEmitter) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// ByType returns emitted events of one type.
func (m *MemoryEmitter) ByType(t Type) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, ev := range m.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
