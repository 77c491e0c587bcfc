package groq

import (
	orchestration "github.com/voxloop/voxloop/core"
)

type message struct {
	Role    messageRole `json:"role"`
	Content string      `json:"content"`
}

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

func toMessages(instructions string, history []orchestration.HistoryEntry) []message {
	messages := []message{}
	if instructions != "" {
		messages = append(messages, message{
			Role:    messageRoleSystem,
			Content: instructions,
		})
	}

	for _, entry := range history {
		role := messageRoleUser
		if entry.Speaker == orchestration.SpeakerAgent {
			role = messageRoleAssistant
		}
		messages = append(messages, message{
			Role:    role,
			Content: entry.Text,
		})
	}

	return messages
}
