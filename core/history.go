package orchestration

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Speaker identifies which side of the conversation produced a history entry.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// HistoryEntry is one committed conversation turn half. Entries are
// append-only for the lifetime of a session.
type HistoryEntry struct {
	ID        string
	Speaker   Speaker
	Text      string
	Timestamp time.Time
}

// ConversationHistory holds the committed (speaker, text) sequence of a
// session. It is mutated only on the orchestrator goroutine; the lock exists
// so snapshots handed to agent calls and callbacks never observe a partial
// append.
type ConversationHistory struct {
	mu      sync.RWMutex
	entries []HistoryEntry
}

func newConversationHistory() *ConversationHistory {
	return &ConversationHistory{}
}

func (h *ConversationHistory) append(speaker Speaker, text string) HistoryEntry {
	entry := HistoryEntry{
		ID:        uuid.NewString(),
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Now(),
	}

	h.mu.Lock()
	h.entries = append(h.entries, entry)
	h.mu.Unlock()
	return entry
}

// Snapshot returns a point-in-time copy of the committed entries.
func (h *ConversationHistory) Snapshot() []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	entries := make([]HistoryEntry, len(h.entries))
	copy(entries, h.entries)
	return entries
}

// Len returns the number of committed entries.
func (h *ConversationHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
