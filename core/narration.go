package orchestration

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/koscakluka/lumira-core/core/events"
	"github.com/koscakluka/lumira-core/core/texttospeech"
)

type NarrationState string

const (
	NarrationIdle    NarrationState = "idle"
	NarrationPlaying NarrationState = "playing"
)

type utterance struct {
	text    string
	ended   chan error
	stopped chan struct{}
}

// narrationQueue is the only caller of the synthesizer. It plays queued
// sentences one at a time in enqueue order.
//
// Every Speak and Stop call is made with mu held. Completion callbacks never
// take mu, they only signal the worker, so a CancelAll can never be followed
// by a stale Speak of an already dropped sentence.
type narrationQueue struct {
	mu      sync.Mutex
	synth   texttospeech.Synthesizer
	queue   []string
	current *utterance
	closed  bool

	signal  chan struct{}
	closing chan struct{}
	done    chan struct{}

	emit eventEmitter
}

func newNarrationQueue(synth texttospeech.Synthesizer, emit eventEmitter) *narrationQueue {
	if emit == nil {
		emit = noopEventEmitter
	}
	q := &narrationQueue{
		synth:   synth,
		signal:  make(chan struct{}, 1),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
		emit:    emit,
	}

	if synth == nil {
		close(q.done)
		return q
	}

	go func() {
		defer close(q.done)
		if err := panicSafeNamedWorker("narration", q.run)(context.Background()); err != nil {
			logger.Error("narration worker stopped", "error", err)
		}
	}()
	return q
}

func (q *narrationQueue) isConfigured() bool {
	return q != nil && q.synth != nil
}

// Enqueue schedules text after everything already queued. Blank text is
// ignored.
func (q *narrationQueue) Enqueue(text string) {
	if !q.isConfigured() || strings.TrimSpace(text) == "" {
		return
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.queue = append(q.queue, text)
	q.mu.Unlock()

	q.signalUpdate()
	q.emit(events.NewSentenceQueued(text))
}

// CancelAll stops the playing utterance and drops everything queued. It is a
// no-op when idle.
func (q *narrationQueue) CancelAll() {
	if !q.isConfigured() {
		return
	}

	q.mu.Lock()
	dropped := len(q.queue)
	q.queue = nil
	if q.current != nil {
		dropped++
		close(q.current.stopped)
		q.current = nil
		if err := q.synth.Stop(); err != nil {
			logger.Warn("failed to stop synthesizer", "error", err)
		}
	}
	q.mu.Unlock()

	if dropped > 0 {
		q.emit(events.NewNarrationCancelled(dropped))
	}
}

func (q *narrationQueue) State() NarrationState {
	if !q.isConfigured() {
		return NarrationIdle
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current != nil || len(q.queue) > 0 {
		return NarrationPlaying
	}
	return NarrationIdle
}

// Pending returns the number of queued utterances, not counting the one
// playing.
func (q *narrationQueue) Pending() int {
	if !q.isConfigured() {
		return 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.queue)
}

// Close cancels all narration and waits for the worker to exit.
func (q *narrationQueue) Close() {
	if q == nil {
		return
	}

	q.mu.Lock()
	alreadyClosed := q.closed
	q.closed = true
	q.mu.Unlock()

	q.CancelAll()
	if !alreadyClosed {
		close(q.closing)
	}
	<-q.done
}

func (q *narrationQueue) run(context.Context) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil
		}
		if len(q.queue) == 0 {
			q.mu.Unlock()
			select {
			case <-q.signal:
			case <-q.closing:
			}
			continue
		}

		u := &utterance{
			text:    q.queue[0],
			ended:   make(chan error, 1),
			stopped: make(chan struct{}),
		}
		q.queue = q.queue[1:]
		q.current = u
		err := q.synth.Speak(u.text, func(err error) {
			select {
			case u.ended <- err:
			default:
			}
		})
		q.mu.Unlock()

		if err != nil {
			logger.Warn("failed to start utterance", "error", err)
			q.finish(u, err)
			continue
		}

		select {
		case <-u.stopped:
			continue
		default:
			q.emit(events.NewUtteranceStarted(u.text))
		}

		select {
		case err := <-u.ended:
			q.finish(u, err)
		case <-u.stopped:
		}
	}
}

// finish releases u unless CancelAll already did.
func (q *narrationQueue) finish(u *utterance, err error) {
	q.mu.Lock()
	current := q.current == u
	if current {
		q.current = nil
	}
	q.mu.Unlock()

	if !current {
		return
	}
	if errors.Is(err, texttospeech.ErrStopped) {
		err = nil
	}
	q.emit(events.NewUtteranceEnded(u.text, err))
}

func (q *narrationQueue) signalUpdate() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
