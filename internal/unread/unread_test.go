package unread

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capitalize-ai/admin-chat/internal/model"
)

const (
	customer = int64(1)
	operator = int64(2)
)

func TestCount(t *testing.T) {
	tests := []struct {
		name string
		msgs []model.Message
		want int
	}{
		{
			name: "empty conversation",
			want: 0,
		},
		{
			name: "only the customer message counts",
			msgs: []model.Message{
				{ID: 1, SenderID: customer, Read: false},
				{ID: 2, SenderID: operator, Read: true},
			},
			want: 1,
		},
		{
			name: "own unread messages are ignored",
			msgs: []model.Message{
				{ID: 1, SenderID: operator, Read: false},
				{ID: 2, SenderID: operator, Read: false},
			},
			want: 0,
		},
		{
			name: "read customer messages are ignored",
			msgs: []model.Message{
				{ID: 1, SenderID: customer, Read: true},
				{ID: 2, SenderID: customer, Read: false},
				{ID: 3, SenderID: customer, Read: false},
			},
			want: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &model.Conversation{ID: 1, MessageList: tt.msgs}
			assert.Equal(t, tt.want, Count(c, operator))
			assert.Equal(t, tt.want > 0, Has(c, operator))
		})
	}
}

func TestHighlightedIsIndependentOfCount(t *testing.T) {
	// Server says everything is read, but a customer message is still
	// unread locally.
	c := &model.Conversation{
		ID:          1,
		Readed:      true,
		MessageList: []model.Message{{ID: 1, SenderID: customer}},
	}
	assert.False(t, Highlighted(c))
	assert.Equal(t, 1, Count(c, operator))

	// Server flags the conversation while every message is read locally.
	c = &model.Conversation{
		ID:          2,
		Readed:      false,
		MessageList: []model.Message{{ID: 1, SenderID: customer, Read: true}},
	}
	assert.True(t, Highlighted(c))
	assert.Zero(t, Count(c, operator))
}

func TestNotSentBy(t *testing.T) {
	pred := NotSentBy(operator)
	assert.True(t, pred(model.Message{SenderID: customer}))
	assert.False(t, pred(model.Message{SenderID: operator}))
}
