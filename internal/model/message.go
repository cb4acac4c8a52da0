package model

// Role represents the role of a message sender.
type Role string

const (
	RoleUser  Role = "ROLE_USER"
	RoleAdmin Role = "ROLE_ADMIN"
	RoleStaff Role = "ROLE_STAFF"
)

// IsCustomer reports whether the sender is an end customer rather than
// the back office.
func (r Role) IsCustomer() bool {
	return r == RoleUser
}

// Message represents a single chat message inside a conversation.
type Message struct {
	ID         int64  `json:"id"`
	SenderID   int64  `json:"senderId"`
	SenderName string `json:"senderName,omitempty"`
	SenderRole Role   `json:"senderRole"`
	Content    string `json:"content"`
	Read       bool   `json:"read"`
}

// OutboundMessage is the payload published to a conversation's send
// destination.
type OutboundMessage struct {
	SenderID       int64  `json:"senderId"`
	Content        string `json:"content"`
	ConversationID int64  `json:"conversationId"`
}

// SendMessageRequest is the request to send a new message.
type SendMessageRequest struct {
	Content string `json:"content"`
}
