package orchestration

import (
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/koscakluka/lumira-core/core/events"
)

type MessageID string

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID   MessageID
	Role Role
	Text string
}

// Conversation is the ordered transcript. Messages are append-only; the only
// mutation allowed is replacing the text of the message currently receiving
// a streamed reply.
type Conversation struct {
	mu sync.RWMutex

	messages  []Message
	streaming MessageID

	emit eventEmitter
}

func NewConversation() *Conversation {
	return newConversation(noopEventEmitter)
}

func newConversation(emit eventEmitter) *Conversation {
	if emit == nil {
		emit = noopEventEmitter
	}
	return &Conversation{emit: emit}
}

func (c *Conversation) AppendUser(text string) Message {
	return c.append(RoleUser, text, false)
}

// AppendAssistant appends a finished assistant message, e.g. a greeting.
func (c *Conversation) AppendAssistant(text string) Message {
	return c.append(RoleAssistant, text, false)
}

// AppendAssistantPlaceholder appends an empty assistant message and makes it
// the streaming target. Any previous target stops being one.
func (c *Conversation) AppendAssistantPlaceholder() MessageID {
	return c.append(RoleAssistant, "", true).ID
}

func (c *Conversation) append(role Role, text string, streaming bool) Message {
	message := Message{ID: MessageID(uuid.NewString()), Role: role, Text: text}

	c.mu.Lock()
	c.messages = append(c.messages, message)
	if streaming {
		c.streaming = message.ID
	}
	c.mu.Unlock()

	c.emit(events.NewMessageAppended(string(message.ID), string(message.Role), message.Text))
	return message
}

// UpdateText replaces the text of id. It does nothing and returns false unless
// id is the most recently appended assistant message and is still streaming.
func (c *Conversation) UpdateText(id MessageID, text string) bool {
	c.mu.Lock()
	if id == "" || id != c.streaming {
		c.mu.Unlock()
		return false
	}

	i := c.lastAssistantIndexLocked()
	if i < 0 || c.messages[i].ID != id {
		c.mu.Unlock()
		return false
	}
	if c.messages[i].Text == text {
		c.mu.Unlock()
		return true
	}
	c.messages[i].Text = text
	c.mu.Unlock()

	c.emit(events.NewMessageUpdated(string(id), text))
	return true
}

// FinishStreaming clears the streaming marker if it still points at id.
func (c *Conversation) FinishStreaming(id MessageID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.streaming == id {
		c.streaming = ""
	}
}

// InFlight returns the message currently receiving a streamed reply.
func (c *Conversation) InFlight() (MessageID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.streaming, c.streaming != ""
}

func (c *Conversation) Snapshot() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.messages)
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.messages)
}

func (c *Conversation) lastAssistantIndexLocked() int {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == RoleAssistant {
			return i
		}
	}
	return -1
}
