package nats

import (
	"fmt"
	"strings"
)

const (
	// DefaultBroadcastTopic is the subject conversation updates are
	// broadcast on.
	DefaultBroadcastTopic = "topic.admin"

	// DefaultSendPrefix is the prefix of per-conversation send subjects.
	DefaultSendPrefix = "app.chat"
)

// SendSubject returns the subject a message for conversationID is
// published to.
func SendSubject(prefix string, conversationID int64) string {
	if prefix == "" {
		prefix = DefaultSendPrefix
	}
	return fmt.Sprintf("%s.%d", strings.TrimSuffix(prefix, "."), conversationID)
}
