package events

import (
	"strings"
	"time"
)

// Kind names an event as "<namespace>.<name>".
type Kind string

// Namespace returns the part of the kind before the first dot.
func (k Kind) Namespace() string {
	namespace, _, _ := strings.Cut(string(k), ".")
	return namespace
}

// Event is implemented by every value passed to an orchestrator event
// handler. Handlers type switch on the concrete event.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// Base is embedded by all events and stamps them at construction.
type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind           { return b.kind }
func (b Base) Timestamp() time.Time { return b.timestamp }
