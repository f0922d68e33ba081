package audio

import "sync"

// PlaybackBuffer queues audio for a device callback. Marks fire once the
// device has consumed every byte written before them, or when the buffer is
// cleared.
type PlaybackBuffer struct {
	mu      sync.Mutex
	pending []byte
	marks   []playbackMark
}

type playbackMark struct {
	name     string
	position int
	callback func(string)
}

func (b *PlaybackBuffer) Write(audio []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, audio...)
}

func (b *PlaybackBuffer) Mark(name string, callback func(string)) {
	b.mu.Lock()
	if len(b.pending) == 0 && len(b.marks) == 0 {
		b.mu.Unlock()
		callback(name)
		return
	}
	defer b.mu.Unlock()

	b.marks = append(b.marks, playbackMark{name: name, position: len(b.pending), callback: callback})
}

// Read fills dst with queued audio and silence after it. It reports how many
// bytes of real audio were copied. Marks passed are fired asynchronously, in
// order, so a device callback is never blocked by them.
func (b *PlaybackBuffer) Read(dst []byte, silence byte) int {
	b.mu.Lock()
	n := copy(dst, b.pending)
	b.pending = b.pending[n:]
	if len(b.pending) == 0 {
		b.pending = nil
	}

	passed := 0
	for i := range b.marks {
		if b.marks[i].position <= n {
			passed++
			continue
		}
		b.marks[i].position -= n
	}
	toCall := b.marks[:passed]
	b.marks = b.marks[passed:]
	b.mu.Unlock()

	for i := n; i < len(dst); i++ {
		dst[i] = silence
	}

	if len(toCall) > 0 {
		go fireMarks(toCall)
	}
	return n
}

// Clear drops all queued audio and fires every outstanding mark.
func (b *PlaybackBuffer) Clear() {
	b.mu.Lock()
	b.pending = nil
	marks := b.marks
	b.marks = nil
	b.mu.Unlock()

	fireMarks(marks)
}

func (b *PlaybackBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.pending)
}

func fireMarks(marks []playbackMark) {
	for _, mark := range marks {
		mark.callback(mark.name)
	}
}
