// Package model defines data structures for the admin chat console.
package model

// Conversation represents a support thread between one customer and the
// back office.
type Conversation struct {
	ID         int64  `json:"id"`
	HostID     int64  `json:"hostId,omitempty"`
	HostName   string `json:"hostName"`
	HostAvatar string `json:"hostAvatar"`

	// Readed is the server-supplied highlight flag. It is false while the
	// customer has written something the back office has not acknowledged.
	Readed bool `json:"readed"`

	// MessageList is ordered by ID ascending.
	MessageList []Message `json:"messageList"`
}

// LastMessage returns the message with the highest ID.
func (c *Conversation) LastMessage() (Message, bool) {
	if len(c.MessageList) == 0 {
		return Message{}, false
	}
	last := c.MessageList[0]
	for _, m := range c.MessageList[1:] {
		if m.ID > last.ID {
			last = m
		}
	}
	return last, true
}

// LastMessageID returns the highest message ID, or 0 when the
// conversation is empty.
func (c *Conversation) LastMessageID() int64 {
	m, ok := c.LastMessage()
	if !ok {
		return 0
	}
	return m.ID
}

// Clone returns a deep copy. The message list is never shared between
// the copy and the original.
func (c Conversation) Clone() Conversation {
	if c.MessageList != nil {
		msgs := make([]Message, len(c.MessageList))
		copy(msgs, c.MessageList)
		c.MessageList = msgs
	}
	return c
}

// ConversationSummary is a presentation row for the conversation list.
type ConversationSummary struct {
	ID            int64  `json:"id"`
	HostName      string `json:"hostName"`
	HostAvatar    string `json:"hostAvatar"`
	Readed        bool   `json:"readed"`
	UnreadCount   int    `json:"unreadCount"`
	LastMessage   string `json:"lastMessage"`
	LastMessageID int64  `json:"lastMessageId,omitempty"`
}

// PageRequest selects a window of the ordered conversation list.
// PageIndex is 1-based.
type PageRequest struct {
	PageIndex int `json:"page"`
	PageSize  int `json:"size"`
}

// ConversationPage is the response for the paged conversation list.
type ConversationPage struct {
	Conversations []ConversationSummary `json:"conversations"`
	Page          int                   `json:"page"`
	Size          int                   `json:"size"`
	Total         int                   `json:"total"`
	HasMore       bool                  `json:"has_more"`
}
