package orchestration

import "github.com/koscakluka/lumira-core/core/events"

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

// newHandlerEventEmitter forwards events to handler. A panicking handler is
// logged and does not take the emitting component down with it.
func newHandlerEventEmitter(handler func(events.Event)) eventEmitter {
	if handler == nil {
		return noopEventEmitter
	}

	return func(event events.Event) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.Error("event handler panicked", "kind", event.Kind(), "panic", recovered)
			}
		}()
		handler(event)
	}
}
