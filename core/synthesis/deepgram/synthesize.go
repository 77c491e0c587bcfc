// Package deepgram synthesizes reply text over Deepgram's speak websocket.
// Each call opens a connection, sends the full text, and accumulates the
// raw audio until the server reports the buffer flushed.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/voxloop/voxloop/core/audio"
	"github.com/voxloop/voxloop/core/synthesis"
)

type SynthesisClient struct {
	apiKey string
	voice  deepgramVoice
}

func NewSynthesisClient(apiKey string, opts ...synthesis.Option) (*SynthesisClient, error) {
	options := synthesis.Options{Voice: string(defaultVoice)}
	for _, opt := range opts {
		opt(&options)
	}

	voice := deepgramVoice(options.Voice)
	if !slices.Contains(GetAvailableVoices(), voice) {
		return nil, fmt.Errorf("invalid voice %q", options.Voice)
	}

	return &SynthesisClient{apiKey: apiKey, voice: voice}, nil
}

func (c *SynthesisClient) Synthesize(ctx context.Context, text string, encoding audio.EncodingInfo) ([]byte, error) {
	if err := validateEncoding(encoding); err != nil {
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}

	conn, err := c.connectWebsocket(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to open websocket: %w", err)
	}
	defer conn.Close()

	watchdogDone := make(chan struct{})
	defer close(watchdogDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchdogDone:
		}
	}()

	if err := conn.WriteJSON(sendTextMsg(text)); err != nil {
		return nil, fmt.Errorf("failed to send websocket speak message: %w", err)
	}
	if err := conn.WriteJSON(flushMsg); err != nil {
		return nil, fmt.Errorf("failed to send websocket flush message: %w", err)
	}

	replyAudio, err := collectAudio(conn)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return replyAudio, nil
}

func (c *SynthesisClient) connectWebsocket(encoding audio.EncodingInfo) (*websocket.Conn, error) {
	urlValues := url.Values{}
	urlValues.Set("encoding", encoding.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	urlValues.Set("model", string(c.voice))
	urlValues.Set("container", "none")

	conn, _, err := websocket.DefaultDialer.Dial(
		(&url.URL{
			Scheme: "wss",
			Host:   "api.deepgram.com", Path: "/v1/speak",
			RawQuery: urlValues.Encode(),
		}).String(),
		http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

// collectAudio accumulates binary frames until the server confirms the text
// buffer flushed, which marks the end of the synthesized audio.
func collectAudio(conn *websocket.Conn) ([]byte, error) {
	var replyAudio []byte

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return replyAudio, nil
			}
			return nil, fmt.Errorf("failed to read deepgram websocket message: %w", err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			replyAudio = append(replyAudio, msg...)
		case websocket.TextMessage:
			var parsedMsg struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				log.Printf("Failed to unmarshal deepgram message: %v", err)
				continue
			}

			switch parsedMsg.Type {
			case "Flushed":
				if err := conn.WriteJSON(closeMsg); err != nil {
					log.Printf("Failed to send websocket close message: %v", err)
				}
				return replyAudio, nil
			case "Warning", "Error":
				return nil, fmt.Errorf("deepgram reported %s: %s", parsedMsg.Type, string(msg))
			}
		}
	}
}

func validateEncoding(encoding audio.EncodingInfo) error {
	switch encoding.Format {
	case audio.EncodingLinear16:
		switch encoding.SampleRate {
		case 8000, 16000, 24000, 32000, 48000:
			return nil
		}
		return fmt.Errorf("unsupported sample rate for linear16 encoding")
	case audio.EncodingMulaw, audio.EncodingALaw:
		if encoding.SampleRate != 8000 {
			return fmt.Errorf("unsupported sample rate for %s encoding", encoding.Format.Name())
		}
		return nil
	default:
		return fmt.Errorf("unsupported encoding")
	}
}

type websocketMessage struct {
	Type string `json:"type"`
}

var (
	sendTextMsg = func(text string) struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} {
		return struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{Type: "Speak", Text: text}
	}
	flushMsg = websocketMessage{Type: "Flush"}
	closeMsg = websocketMessage{Type: "Close"}
)
