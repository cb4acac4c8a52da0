package middleware

import (
	"errors"
	"strconv"
	"unicode/utf8"
)

// MaxMessageBytes bounds the size of an outgoing message.
const MaxMessageBytes = 100000

// ValidateMessageContent checks size and encoding. Empty content passes;
// the chat service ignores it.
func ValidateMessageContent(content string) error {
	if len(content) > MaxMessageBytes {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ParseConversationID parses a positive numeric conversation ID.
func ParseConversationID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid conversation ID format")
	}
	return id, nil
}

// ParsePositiveInt parses an optional positive integer query value,
// returning def when raw is empty or invalid.
func ParsePositiveInt(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}
