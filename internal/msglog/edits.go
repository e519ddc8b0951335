package msglog

import (
	"time"

	"github.com/msglog/msglog/internal/q/health"
	"github.com/msglog/msglog/internal/tokendiff"
)

// EditView is one entry of a message's edit history as shown to a reader.
type EditView struct {
	Timestamp time.Time        `json:"timestamp"`
	Content   string           `json:"content"`            // the content before this edit
	Segments  tokendiff.Result `json:"segments,omitempty"` // Content diffed against what replaced it; nil when no diff is shown
}

// Edits returns the edit history of a message, oldest first. Each entry is compared with the next entry's content, or with the current content for the last entry. Segments
// are filled when ShowEditDiffs is on, the message's diff view is enabled, and the replacement is non-empty and different. With InlineEdits off, Edits returns no entries.
func (s *Store) Edits(channelID, id string) ([]EditView, error) {
	m, ok := s.Get(channelID, id)
	if !ok {
		return nil, health.Wrap("edits", ErrUnknownMessage, "channel_id", channelID, "message_id", id)
	}
	if !s.rules.InlineEdits {
		return []EditView{}, nil
	}
	return s.editViews(m), nil
}

func (s *Store) editViews(m Message) []EditView {
	views := make([]EditView, len(m.EditHistory))
	diffs := s.rules.ShowEditDiffs && !m.DiffViewDisabled
	for i, edit := range m.EditHistory {
		next := m.Content
		if i+1 < len(m.EditHistory) {
			next = m.EditHistory[i+1].Content
		}
		views[i] = EditView{Timestamp: edit.Timestamp, Content: edit.Content}
		if diffs && next != "" && next != edit.Content {
			views[i].Segments = s.engine.Diff(edit.Content, next)
		}
	}
	return views
}

// LoggedMessage is a message with its rendered history, as reported by the replay command and the HTTP API.
type LoggedMessage struct {
	Message
	Edits []EditView `json:"edits"`
}

// Logged returns every deleted or edited message in the channel with its edit views, in Messages order.
func (s *Store) Logged(channelID string) []LoggedMessage {
	var out []LoggedMessage
	for _, m := range s.Messages(channelID) {
		if !m.Logged() {
			continue
		}
		views := []EditView{}
		if s.rules.InlineEdits {
			views = s.editViews(m)
		}
		out = append(out, LoggedMessage{Message: m, Edits: views})
	}
	return out
}
