// Package groq generates replies through Groq's OpenAI-compatible chat
// completions endpoint.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	orchestration "github.com/voxloop/voxloop/core"
	"github.com/voxloop/voxloop/core/agents"
)

const url = "https://api.groq.com/openai/v1/chat/completions"

const defaultModel = "llama-3.3-70b-versatile"

type Agent struct {
	apiKey  string
	options agents.Options

	httpClient *http.Client
}

func NewAgent(apiKey string, opts ...agents.Option) *Agent {
	options := agents.Options{Model: defaultModel}
	for _, opt := range opts {
		opt(&options)
	}

	return &Agent{
		apiKey:     apiKey,
		options:    options,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

func (a *Agent) Generate(ctx context.Context, history []orchestration.HistoryEntry) (string, error) {
	ctx, span := tracer.Start(ctx, "prompt llm")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", a.options.Model))

	reqBody := requestBody{
		Model:    a.options.Model,
		Messages: toMessages(a.options.Instructions, history),
	}

	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		err = fmt.Errorf("error marshalling JSON: %w", err)
		span.RecordError(err)
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		return "", err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, err := io.ReadAll(resp.Body); err == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}

		err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		span.RecordError(err)
		return "", err
	}

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("error reading response body: %w", err)
		span.RecordError(err)
		return "", err
	}

	var responseBody chatResponseBody
	if err := json.Unmarshal(respBodyBytes, &responseBody); err != nil {
		err = fmt.Errorf("error unmarshalling response: %w", err)
		span.RecordError(err)
		return "", err
	}
	if len(responseBody.Choices) == 0 {
		err := fmt.Errorf("response contained no choices")
		span.RecordError(err)
		return "", err
	}

	return responseBody.Choices[0].Message.Content, nil
}

type requestBody struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

type chatResponseBody struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
