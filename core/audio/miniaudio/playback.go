package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/lumira-core/core/audio"
)

type playbackClient struct {
	device  *malgo.Device
	buffer  audio.PlaybackBuffer
	silence byte

	mu sync.Mutex
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	format, err := convertFormat(encoding)
	if err != nil {
		return err
	}
	channels := 1
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels
	c.silence = encoding.SilenceValue()

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = uint32(encoding.SampleRate)
	config.Playback.Format = format
	config.Playback.Channels = uint32(channels)
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = uint32(encoding.SampleRate / 10) // ~100ms of audio
	config.Periods = 4

	if c.device, err = malgo.InitDevice(
		audioContext.Context,
		config,
		malgo.DeviceCallbacks{Data: c.processAudio(bytesPerFrame)},
	); err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	return nil
}

func (c *playbackClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	return nil
}

func (c *playbackClient) SendAudio(audio []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if !c.device.IsStarted() {
		return fmt.Errorf("device not started")
	}

	c.buffer.Write(audio)
	return nil
}

func (c *playbackClient) ClearBuffer() {
	c.buffer.Clear()
}

func (c *playbackClient) Mark(mark string, callback func(string)) error {
	c.buffer.Mark(mark, callback)
	return nil
}

func (c *playbackClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return nil
	}

	c.device.Uninit()
	c.device = nil
	c.buffer.Clear()

	return nil
}

func (c *playbackClient) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := min(int(frameCount)*bytesPerFrame, len(pOutput))
		c.buffer.Read(pOutput[:need], c.silence)
	}
}

func convertFormat(encoding audio.EncodingInfo) (malgo.FormatType, error) {
	switch encoding.Format {
	case audio.EncodingLinear16:
		return malgo.FormatS16, nil
	default:
		return malgo.FormatUnknown, fmt.Errorf("unsupported playback encoding %q", encoding.Format.Name())
	}
}
