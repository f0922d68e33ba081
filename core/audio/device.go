package audio

import "context"

// Input is a microphone-like source. StartCapture delivers raw frames in the
// input's EncodingInfo until StopCapture is called or ctx is done.
type Input interface {
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
	EncodingInfo() EncodingInfo
}

// Output is a speaker-like sink.
type Output interface {
	SendAudio(audio []byte) error
	// ClearBuffer drops all audio that has not been played yet.
	ClearBuffer()
	// Mark calls callback once every byte sent before the mark has been
	// played (or dropped by ClearBuffer).
	Mark(name string, callback func(string)) error
	EncodingInfo() EncodingInfo
}
