package main

import (
	"log/slog"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/koscakluka/lumira-core/core/events"
)

type eventsMsg []events.Event

// eventBridge queues orchestrator events without blocking the emitter and
// hands them to the program in batches.
type eventBridge struct {
	mu     sync.Mutex
	queue  []events.Event
	signal chan struct{}
}

func newEventBridge() *eventBridge {
	return &eventBridge{signal: make(chan struct{}, 1)}
}

func (b *eventBridge) handle(event events.Event) {
	slog.Debug("orchestrator event", "namespace", event.Kind().Namespace(), "kind", event.Kind())

	b.mu.Lock()
	b.queue = append(b.queue, event)
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// wait returns a command resolving to the next batch of events.
func (b *eventBridge) wait() tea.Cmd {
	return func() tea.Msg {
		for {
			<-b.signal

			b.mu.Lock()
			batch := b.queue
			b.queue = nil
			b.mu.Unlock()
			if len(batch) > 0 {
				return eventsMsg(batch)
			}
		}
	}
}
