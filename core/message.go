package core

// Conversation roles used in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single role-tagged conversational turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserMessage builds a message with the user role.
func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// SystemMessage builds a message with the system role.
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// AssistantMessage builds a message with the assistant role.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// CloneMessages returns a copy of msgs (nil stays nil).
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
