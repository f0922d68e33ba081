// Package portaudio drives the default capture and playback devices through
// PortAudio. Only linear16 audio is supported.
package portaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/lumira-core/core/audio"
)

const DefaultFramesPerBuffer = 480

var (
	_ audio.Input  = (*Client)(nil)
	_ audio.Output = (*Client)(nil)
)

type Client struct {
	framesPerBuffer int
	encoding        audio.EncodingInfo

	playback *portaudio.Stream
	buffer   audio.PlaybackBuffer
	out      []byte

	capture    *portaudio.Stream
	stopOnDone func() bool
	mu         sync.Mutex

	onAudio    func(audio []byte)
	callbackMu sync.Mutex
}

func NewClient(framesPerBuffer int) (*Client, error) {
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	c := &Client{
		framesPerBuffer: framesPerBuffer,
		encoding:        audio.GetDefaultEncodingInfo(),
		out:             make([]byte, framesPerBuffer*audio.EncodingLinear16.ByteSize()),
	}

	playback, err := portaudio.OpenDefaultStream(0, 1, float64(c.encoding.SampleRate), framesPerBuffer, c.processPlayback)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open PortAudio playback stream: %w", err)
	}
	if err := playback.Start(); err != nil {
		playback.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start PortAudio playback stream: %w", err)
	}
	c.playback = playback

	return c, nil
}

func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setOnAudio(onAudio)
	if c.capture == nil {
		capture, err := portaudio.OpenDefaultStream(1, 0, float64(c.encoding.SampleRate), c.framesPerBuffer, c.processCapture)
		if err != nil {
			c.setOnAudio(nil)
			return fmt.Errorf("failed to open PortAudio capture stream: %w", err)
		}
		if err := capture.Start(); err != nil {
			capture.Close()
			c.setOnAudio(nil)
			return fmt.Errorf("failed to start PortAudio capture stream: %w", err)
		}
		c.capture = capture
	}

	if c.stopOnDone != nil {
		c.stopOnDone()
	}
	c.stopOnDone = context.AfterFunc(ctx, func() { _ = c.StopCapture() })
	return nil
}

func (c *Client) StopCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setOnAudio(nil)
	if c.stopOnDone != nil {
		c.stopOnDone()
		c.stopOnDone = nil
	}
	if c.capture == nil {
		return nil
	}

	capture := c.capture
	c.capture = nil
	if err := capture.Stop(); err != nil {
		log.Printf("Failed to stop PortAudio capture stream: %v", err)
	}
	if err := capture.Close(); err != nil {
		return fmt.Errorf("failed to close PortAudio capture stream: %w", err)
	}
	return nil
}

func (c *Client) Close() {
	_ = c.StopCapture()
	c.buffer.Clear()
	if c.playback != nil {
		c.playback.Stop()
		c.playback.Close()
	}
	portaudio.Terminate()
}

func (c *Client) SendAudio(audio []byte) error {
	c.buffer.Write(audio)
	return nil
}

func (c *Client) ClearBuffer() {
	c.buffer.Clear()
}

func (c *Client) Mark(name string, callback func(string)) error {
	c.buffer.Mark(name, callback)
	return nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}

func (c *Client) processPlayback(out []int16) {
	if need := len(out) * 2; len(c.out) < need {
		c.out = make([]byte, need)
	}
	raw := c.out[:len(out)*2]
	c.buffer.Read(raw, c.encoding.SilenceValue())
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
}

func (c *Client) processCapture(in []int16) {
	c.callbackMu.Lock()
	onAudio := c.onAudio
	c.callbackMu.Unlock()
	if onAudio == nil {
		return
	}

	raw := make([]byte, len(in)*2)
	for i, sample := range in {
		binary.LittleEndian.PutUint16(raw[2*i:], uint16(sample))
	}
	onAudio(raw)
}

func (c *Client) setOnAudio(onAudio func(audio []byte)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()

	c.onAudio = onAudio
}
