// Package deepgram transcribes finished utterances over Deepgram's
// streaming websocket. Each call opens a connection, pushes the whole
// utterance, closes the stream, and folds the final results into one
// transcript.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"

	orchestration "github.com/voxloop/voxloop/core"
	"github.com/voxloop/voxloop/core/audio"
	"github.com/voxloop/voxloop/core/transcription"
)

// audioChunkSize bounds individual websocket writes; Deepgram recommends
// keeping binary messages well under a second of audio.
const audioChunkSize = 8 * 1024

type TranscriptionClient struct {
	apiKey  string
	options transcription.Options
}

func NewTranscriptionClient(apiKey string, opts ...transcription.Option) *TranscriptionClient {
	options := transcription.Options{
		Model:    "nova-3",
		Language: "en-US",
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &TranscriptionClient{apiKey: apiKey, options: options}
}

func (c *TranscriptionClient) Transcribe(ctx context.Context, utteranceAudio []byte, encoding audio.EncodingInfo) (orchestration.Transcript, error) {
	deepgramEncoding, err := convertEncoding(encoding)
	if err != nil {
		return orchestration.Transcript{}, fmt.Errorf("invalid encoding: %w", err)
	}

	conn, err := c.connectWebsocket(deepgramEncoding)
	if err != nil {
		return orchestration.Transcript{}, fmt.Errorf("failed to open websocket: %w", err)
	}
	defer conn.Close()

	// Unblock the read loop if the caller gives up mid-transcription.
	watchdogDone := make(chan struct{})
	defer close(watchdogDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchdogDone:
		}
	}()

	if err := sendUtterance(conn, utteranceAudio); err != nil {
		return orchestration.Transcript{}, err
	}

	transcript, err := collectFinals(conn)
	if err != nil {
		if ctx.Err() != nil {
			return orchestration.Transcript{}, ctx.Err()
		}
		return orchestration.Transcript{}, err
	}
	return transcript, nil
}

func (c *TranscriptionClient) connectWebsocket(encoding *encodingInfo) (*websocket.Conn, error) {
	listenUrl, _ := url.Parse("wss://api.deepgram.com/v1/listen")
	queryParams := listenUrl.Query()
	queryParams.Set("encoding", encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", c.options.Model)
	queryParams.Set("language", c.options.Language)
	queryParams.Set("smart_format", "true")

	listenUrl.RawQuery = queryParams.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(listenUrl.String(),
		http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func sendUtterance(conn *websocket.Conn, utteranceAudio []byte) error {
	for offset := 0; offset < len(utteranceAudio); offset += audioChunkSize {
		end := offset + audioChunkSize
		if end > len(utteranceAudio) {
			end = len(utteranceAudio)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, utteranceAudio[offset:end]); err != nil {
			return fmt.Errorf("failed to write to deepgram client: %w", err)
		}
	}

	if err := conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		return fmt.Errorf("failed to close deepgram stream: %w", err)
	}
	return nil
}

// collectFinals reads results until the server closes the stream and joins
// the final segments into a single transcript. Confidence is averaged over
// the non-empty final segments.
func collectFinals(conn *websocket.Conn) (orchestration.Transcript, error) {
	var segments []string
	var confidenceSum float64

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			return orchestration.Transcript{}, fmt.Errorf("failed to read deepgram websocket message: %w", err)
		}
		if msgType == websocket.BinaryMessage {
			continue
		}

		var parsedMsg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &parsedMsg); err != nil {
			log.Println("Failed to unmarshal deepgram message", "error", err)
			continue
		}

		switch api.TypeResponse(parsedMsg.Type) {
		case api.TypeMessageResponse:
			var msgResp api.MessageResponse
			if err := json.Unmarshal(msg, &msgResp); err != nil {
				log.Println("Failed to unmarshal deepgram message", err)
				continue
			}
			if !msgResp.IsFinal || len(msgResp.Channel.Alternatives) == 0 {
				continue
			}

			alternative := msgResp.Channel.Alternatives[0]
			segment := strings.TrimSpace(alternative.Transcript)
			if len(segment) > 0 {
				segments = append(segments, segment)
				confidenceSum += alternative.Confidence
			}
		case api.TypeCloseStreamResponse:
			return finalTranscript(segments, confidenceSum), nil
		}
	}

	return finalTranscript(segments, confidenceSum), nil
}

func finalTranscript(segments []string, confidenceSum float64) orchestration.Transcript {
	if len(segments) == 0 {
		return orchestration.Transcript{}
	}

	return orchestration.Transcript{
		Text:       strings.Join(segments, " "),
		Confidence: confidenceSum / float64(len(segments)),
	}
}
