package llm

// Roles accepted by Provider implementations.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// User builds a user-role message.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant builds an assistant-role message.
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}
