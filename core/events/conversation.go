package events

const (
	// KindMessageAppended identifies a new transcript entry.
	KindMessageAppended Kind = "conversation.message_appended"
	// KindMessageUpdated identifies an in-place text update of the streaming message.
	KindMessageUpdated Kind = "conversation.message_updated"
)

// MessageAppended carries the appended message.
type MessageAppended struct {
	Base
	MessageID string
	Role      string
	Text      string
}

// NewMessageAppended creates a message appended event.
func NewMessageAppended(messageID, role, text string) MessageAppended {
	return MessageAppended{Base: NewBase(KindMessageAppended), MessageID: messageID, Role: role, Text: text}
}

// MessageUpdated carries the full current text of an updated message.
type MessageUpdated struct {
	Base
	MessageID string
	Text      string
}

// NewMessageUpdated creates a message updated event.
func NewMessageUpdated(messageID, text string) MessageUpdated {
	return MessageUpdated{Base: NewBase(KindMessageUpdated), MessageID: messageID, Text: text}
}
