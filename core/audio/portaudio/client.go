// Package portaudio is an alternative device backend for systems where
// miniaudio is unavailable. It serves both capture and playback through one
// duplex stream.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/voxloop/voxloop/core/audio"
)

type Client struct {
	bufferSize int
	stream     *portaudio.Stream

	in  []int16
	out []int16

	mu            sync.Mutex
	leftoverAudio []byte

	closeOnce sync.Once
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	in := make([]int16, bufferSize)
	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 1, audio.DefaultSampleRate, bufferSize, in, out)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		in:         in,
		out:        out,
	}, nil
}

// Stream reads fixed-size frames from the default input until the context
// is cancelled. Each frame is re-encoded to little-endian linear16 bytes
// before delivery.
func (c *Client) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start portaudio stream: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if err := c.stream.Read(); err != nil {
				return fmt.Errorf("failed to read from portaudio stream: %w", err)
			}

			frame := bytes.Buffer{}
			binary.Write(&frame, binary.LittleEndian, c.in)
			onAudio(frame.Bytes())
		}
	}
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.stream.Close()
		portaudio.Terminate()
	})
	return nil
}

// SendAudio writes whole device buffers to the stream and carries any
// remainder over to the next call.
func (c *Client) SendAudio(chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	bufferSize := c.bufferSize * 2

	chunk = append(c.leftoverAudio, chunk...)
	for i := 0; ; i++ {
		if (i+1)*bufferSize > len(chunk) {
			c.leftoverAudio = make([]byte, len(chunk)-i*bufferSize)
			copy(c.leftoverAudio, chunk[i*bufferSize:])
			break
		}

		binary.Read(bytes.NewBuffer(chunk[i*bufferSize:(i+1)*bufferSize]), binary.LittleEndian, c.out)
		if err := c.stream.Write(); err != nil {
			return fmt.Errorf("failed to write to portaudio stream: %w", err)
		}
	}

	return nil
}

func (c *Client) ClearBuffer() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leftoverAudio = nil
	return nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
	}
}
