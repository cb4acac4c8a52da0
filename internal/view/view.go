// Package view projects a store snapshot into the ordered, paged
// conversation list shown to an operator.
package view

import (
	"sort"

	"github.com/capitalize-ai/admin-chat/internal/model"
	"github.com/capitalize-ai/admin-chat/internal/unread"
)

// Sort orders conversations by last message ID, newest first.
// Conversations without messages go last. Ties keep their input order,
// so repeated calls on the same snapshot agree. convs is not modified.
func Sort(convs []model.Conversation) []model.Conversation {
	type keyed struct {
		conv model.Conversation
		last int64
		has  bool
	}

	ks := make([]keyed, len(convs))
	for i := range convs {
		m, ok := convs[i].LastMessage()
		ks[i] = keyed{conv: convs[i], last: m.ID, has: ok}
	}

	sort.SliceStable(ks, func(i, j int) bool {
		a, b := ks[i], ks[j]
		if a.has != b.has {
			return a.has
		}
		return a.last > b.last
	})

	out := make([]model.Conversation, len(ks))
	for i := range ks {
		out[i] = ks[i].conv
	}
	return out
}

// Window returns the [(page-1)*size, page*size) slice of ordered.
// Out-of-range or non-positive requests yield an empty slice.
func Window(ordered []model.Conversation, req model.PageRequest) []model.Conversation {
	if req.PageIndex < 1 || req.PageSize < 1 {
		return []model.Conversation{}
	}

	start := (req.PageIndex - 1) * req.PageSize
	if start >= len(ordered) {
		return []model.Conversation{}
	}
	end := start + req.PageSize
	if end > len(ordered) {
		end = len(ordered)
	}
	return ordered[start:end]
}

// Page sorts snapshot and returns the requested window.
func Page(snapshot []model.Conversation, req model.PageRequest) []model.Conversation {
	return Window(Sort(snapshot), req)
}

// Summarize builds the presentation page, with unread indicators
// computed for operatorID.
func Summarize(snapshot []model.Conversation, req model.PageRequest, operatorID int64) *model.ConversationPage {
	window := Page(snapshot, req)

	rows := make([]model.ConversationSummary, len(window))
	for i := range window {
		rows[i] = summarize(&window[i], operatorID)
	}

	return &model.ConversationPage{
		Conversations: rows,
		Page:          req.PageIndex,
		Size:          req.PageSize,
		Total:         len(snapshot),
		HasMore:       req.PageIndex >= 1 && req.PageSize >= 1 && req.PageIndex*req.PageSize < len(snapshot),
	}
}

func summarize(c *model.Conversation, operatorID int64) model.ConversationSummary {
	row := model.ConversationSummary{
		ID:          c.ID,
		HostName:    c.HostName,
		HostAvatar:  c.HostAvatar,
		Readed:      c.Readed,
		UnreadCount: unread.Count(c, operatorID),
	}
	if last, ok := c.LastMessage(); ok {
		row.LastMessage = last.Content
		row.LastMessageID = last.ID
	}
	return row
}
