// Package unread derives unread indicators from a conversation's
// message list. It keeps no state of its own.
package unread

import "github.com/capitalize-ai/admin-chat/internal/model"

// Count returns how many messages in conv are unread and were not sent
// by operatorID.
func Count(conv *model.Conversation, operatorID int64) int {
	n := 0
	for _, m := range conv.MessageList {
		if IsUnreadFor(m, operatorID) {
			n++
		}
	}
	return n
}

// Has reports whether Count would be positive.
func Has(conv *model.Conversation, operatorID int64) bool {
	for _, m := range conv.MessageList {
		if IsUnreadFor(m, operatorID) {
			return true
		}
	}
	return false
}

// Highlighted reports the server-supplied highlight signal. It is
// independent of Count and the two may disagree.
func Highlighted(conv *model.Conversation) bool {
	return !conv.Readed
}

// IsUnreadFor reports whether m counts as unread for operatorID.
func IsUnreadFor(m model.Message, operatorID int64) bool {
	return !m.Read && m.SenderID != operatorID
}

// NotSentBy returns a predicate selecting messages not sent by
// operatorID, for use with the store's MarkRead.
func NotSentBy(operatorID int64) func(model.Message) bool {
	return func(m model.Message) bool {
		return m.SenderID != operatorID
	}
}
