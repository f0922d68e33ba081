// Package miniaudio drives the default capture and playback devices through
// miniaudio.
package miniaudio

import (
	"fmt"
	"log"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/lumira-core/core/audio"
)

var (
	_ audio.Input  = (*Client)(nil)
	_ audio.Output = (*Client)(nil)
)

type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	encoding     audio.EncodingInfo
	playbackClient
	captureClient
}

type ClientOption func(*Client)

// WithSampleRate sets the rate both devices run at.
func WithSampleRate(sampleRate int) ClientOption {
	return func(c *Client) {
		c.encoding.SampleRate = sampleRate
	}
}

func NewClient(opts ...ClientOption) (*Client, error) {
	client := Client{encoding: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(&client)
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	client.audioContext = audioCtx

	if err := client.playbackClient.Init(audioCtx, client.encoding); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}

	if err := client.playbackClient.Start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	if err := client.captureClient.Init(audioCtx, client.encoding); err != nil {
		log.Printf("Capture device unavailable, continuing with playback only: %v", err)
	}

	return &client, nil
}

func (c *Client) StopCapture() error {
	return c.captureClient.Stop()
}

func (c *Client) Close() {
	_ = c.captureClient.Uninit()
	_ = c.playbackClient.Uninit()
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}
