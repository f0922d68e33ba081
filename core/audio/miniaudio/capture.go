package miniaudio

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/lumira-core/core/audio"
)

type captureClient struct {
	device *malgo.Device

	stopOnDone func() bool
	mu         sync.Mutex

	// callbackMu is separate from mu because stopping the device waits for
	// the data callback to return.
	onAudio    func(audio []byte)
	callbackMu sync.Mutex
}

func (c *captureClient) Init(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	format, err := convertFormat(encoding)
	if err != nil {
		return err
	}
	channels := 1
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = uint32(encoding.SampleRate)
	config.Capture.Format = format
	config.Capture.Channels = uint32(channels)
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = uint32(encoding.SampleRate / 50) // ~20ms of audio
	config.Periods = 3

	c.device, err = malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}

			c.callbackMu.Lock()
			onAudio := c.onAudio
			c.callbackMu.Unlock()
			if onAudio != nil {
				onAudio(bytes.Clone(pInput[:n]))
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	return nil
}

// StartCapture delivers microphone frames to onAudio until StopCapture is
// called or ctx is done.
func (c *captureClient) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("capture device not initialized")
	}

	c.setOnAudio(onAudio)
	if !c.device.IsStarted() {
		if err := c.device.Start(); err != nil {
			c.setOnAudio(nil)
			return fmt.Errorf("failed to start capture device: %w", err)
		}
	}

	if c.stopOnDone != nil {
		c.stopOnDone()
	}
	c.stopOnDone = context.AfterFunc(ctx, func() { _ = c.Stop() })
	return nil
}

func (c *captureClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return nil
	}

	c.setOnAudio(nil)
	if c.stopOnDone != nil {
		c.stopOnDone()
		c.stopOnDone = nil
	}
	if !c.device.IsStarted() {
		return nil
	}
	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}

func (c *captureClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}

	c.setOnAudio(nil)
	return nil
}

func (c *captureClient) setOnAudio(onAudio func(audio []byte)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()

	c.onAudio = onAudio
}
