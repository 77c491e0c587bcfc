// Package openai generates replies with the OpenAI chat completions API.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/openai/openai-go/v2/shared/constant"

	orchestration "github.com/voxloop/voxloop/core"
	"github.com/voxloop/voxloop/core/agents"
)

const defaultModel = "gpt-4o-mini"

type Agent struct {
	client  openai.Client
	options agents.Options
}

func NewAgent(apiKey string, opts ...agents.Option) *Agent {
	options := agents.Options{Model: defaultModel}
	for _, opt := range opts {
		opt(&options)
	}

	return &Agent{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		options: options,
	}
}

func (a *Agent) Generate(ctx context.Context, history []orchestration.HistoryEntry) (string, error) {
	completion, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(a.options.Model),
		Messages: toMessages(a.options.Instructions, history),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	return completion.Choices[0].Message.Content, nil
}

func toMessages(instructions string, history []orchestration.HistoryEntry) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if instructions != "" {
		messages = append(messages, openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: param.NewOpt(instructions),
				},
				Role: constant.ValueOf[constant.System](),
			},
		})
	}

	for _, entry := range history {
		if entry.Speaker == orchestration.SpeakerAgent {
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: param.NewOpt(entry.Text),
					},
					Role: constant.ValueOf[constant.Assistant](),
				},
			})
			continue
		}

		messages = append(messages, openai.ChatCompletionMessageParamUnion{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: param.NewOpt(entry.Text),
				},
				Role: constant.ValueOf[constant.User](),
			},
		})
	}

	return messages
}
