package msglog

import (
	"github.com/msglog/msglog/internal/q/health"
	"github.com/msglog/msglog/internal/tokendiff"
)

// EventType names a gateway event.
type EventType string

const (
	EventChannelCreate     EventType = "CHANNEL_CREATE"
	EventMessageCreate     EventType = "MESSAGE_CREATE"
	EventMessageUpdate     EventType = "MESSAGE_UPDATE"
	EventMessageDelete     EventType = "MESSAGE_DELETE"
	EventMessageDeleteBulk EventType = "MESSAGE_DELETE_BULK"
)

// Event is the envelope Apply accepts. Which fields are used depends on Type:
//   - CHANNEL_CREATE: Channel
//   - MESSAGE_CREATE, MESSAGE_UPDATE: Message
//   - MESSAGE_DELETE: ChannelID, ID, and MLDeleted (forget the message instead of marking it deleted)
//   - MESSAGE_DELETE_BULK: ChannelID, IDs
type Event struct {
	Type      EventType `json:"type"`
	Channel   *Channel  `json:"channel,omitempty"`
	Message   *Message  `json:"message,omitempty"`
	ChannelID string    `json:"channelId,omitempty"`
	ID        string    `json:"id,omitempty"`
	IDs       []string  `json:"ids,omitempty"`
	MLDeleted bool      `json:"mlDeleted,omitempty"`
}

// EditNotice describes an edit that Apply just recorded.
type EditNotice struct {
	ChannelID string           `json:"channelId"`
	MessageID string           `json:"messageId"`
	Edit      Edit             `json:"edit"`
	Content   string           `json:"content"`  // the new content
	Segments  tokendiff.Result `json:"segments"` // Edit.Content diffed against Content
}

// Apply applies ev to the store. It returns a notice when a MESSAGE_UPDATE added an edit to a message's history, and nil otherwise.
func (s *Store) Apply(ev Event) (*EditNotice, error) {
	switch ev.Type {
	case EventChannelCreate:
		if ev.Channel == nil || ev.Channel.ID == "" {
			return nil, missing(ev, "channel")
		}
		s.PutChannel(*ev.Channel)

	case EventMessageCreate:
		if ev.Message == nil || ev.Message.ID == "" {
			return nil, missing(ev, "message")
		}
		s.Create(*ev.Message)

	case EventMessageUpdate:
		if ev.Message == nil || ev.Message.ID == "" {
			return nil, missing(ev, "message")
		}
		updated, edit, err := s.update(*ev.Message)
		if err != nil || edit == nil {
			return nil, err
		}
		return &EditNotice{
			ChannelID: updated.ChannelID,
			MessageID: updated.ID,
			Edit:      *edit,
			Content:   updated.Content,
			Segments:  s.engine.Diff(edit.Content, updated.Content),
		}, nil

	case EventMessageDelete:
		if ev.ChannelID == "" || ev.ID == "" {
			return nil, missing(ev, "channelId and id")
		}
		s.Delete(ev.ChannelID, ev.ID, ev.MLDeleted)

	case EventMessageDeleteBulk:
		if ev.ChannelID == "" {
			return nil, missing(ev, "channelId")
		}
		s.DeleteBulk(ev.ChannelID, ev.IDs)

	default:
		return nil, health.Wrap("apply event", ErrUnknownEvent, "type", string(ev.Type))
	}
	return nil, nil
}

func missing(ev Event, field string) error {
	return health.Wrap("apply event", ErrInvalidEvent, "type", string(ev.Type), "missing", field)
}
