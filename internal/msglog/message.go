package msglog

import (
	"slices"
	"time"
)

// FlagEphemeral marks a message that only its recipient can see. Such messages are never logged.
const FlagEphemeral = 64

// Author identifies who sent a message.
type Author struct {
	ID  string `json:"id"`
	Bot bool   `json:"bot,omitempty"`
}

// Attachment is a file attached to a message.
type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename,omitempty"`
	Deleted  bool   `json:"deleted,omitempty"` // removed from the message by an edit, or the message was deleted
}

// Channel is the part of a channel needed for ignore rules.
type Channel struct {
	ID       string `json:"id"`
	GuildID  string `json:"guild_id,omitempty"`
	ParentID string `json:"parent_id,omitempty"` // category
}

// Edit records the content a message had before an edit, and when the edit happened.
type Edit struct {
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
}

// Message is a logged message with its edit history.
type Message struct {
	ID              string       `json:"id"`
	ChannelID       string       `json:"channel_id"`
	Author          Author       `json:"author"`
	Content         string       `json:"content"`
	Flags           int          `json:"flags,omitempty"`
	Timestamp       time.Time    `json:"timestamp"`
	EditedTimestamp *time.Time   `json:"edited_timestamp,omitempty"`
	Attachments     []Attachment `json:"attachments,omitempty"`

	// Logger state. Incoming events leave these empty; the Store owns them.
	Deleted            bool      `json:"deleted,omitempty"`
	EditHistory        []Edit    `json:"edit_history,omitempty"` // oldest first
	FirstEditTimestamp time.Time `json:"first_edit_timestamp"`
	DiffViewDisabled   bool      `json:"diff_view_disabled,omitempty"`
}

// Ephemeral reports whether FlagEphemeral is set.
func (m Message) Ephemeral() bool {
	return m.Flags&FlagEphemeral == FlagEphemeral
}

// Logged reports whether m has anything worth showing: a deletion or an edit history.
func (m Message) Logged() bool {
	return m.Deleted || len(m.EditHistory) > 0
}

func (m Message) clone() Message {
	m.Attachments = slices.Clone(m.Attachments)
	m.EditHistory = slices.Clone(m.EditHistory)
	if m.EditedTimestamp != nil {
		ts := *m.EditedTimestamp
		m.EditedTimestamp = &ts
	}
	return m
}

// Rules decide which messages are logged.
type Rules struct {
	LogEdits   bool
	LogDeletes bool

	IgnoreBots     bool
	IgnoreSelf     bool
	SelfID         string // the local user, for IgnoreSelf
	IgnoreUsers    []string
	IgnoreChannels []string // a listed category also covers its channels
	IgnoreGuilds   []string

	ShowEditDiffs bool // Edits includes token diffs
	InlineEdits   bool // Edits reports history at all
}

// DefaultRules logs edits and deletes, ignores nobody, and shows history without diffs.
func DefaultRules() Rules {
	return Rules{LogEdits: true, LogDeletes: true, InlineEdits: true}
}
