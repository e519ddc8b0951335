package msglog

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"

	"github.com/msglog/msglog/internal/q/health"
	"github.com/msglog/msglog/internal/tokendiff"
)

// Store is the message log. It is safe for concurrent use.
type Store struct {
	rules  Rules
	engine *tokendiff.Engine
	logger *slog.Logger

	ignoreUsers    map[string]bool
	ignoreChannels map[string]bool
	ignoreGuilds   map[string]bool

	mu       sync.RWMutex
	channels map[string]Channel
	messages map[string]map[string]*Message // channel ID -> message ID -> message
}

// NewStore returns an empty Store. A nil engine means tokendiff.New(tokendiff.Options{}); a nil logger discards.
func NewStore(rules Rules, engine *tokendiff.Engine, logger *slog.Logger) *Store {
	if engine == nil {
		engine = tokendiff.New(tokendiff.Options{})
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		rules:          rules,
		engine:         engine,
		logger:         logger,
		ignoreUsers:    toSet(rules.IgnoreUsers),
		ignoreChannels: toSet(rules.IgnoreChannels),
		ignoreGuilds:   toSet(rules.IgnoreGuilds),
		channels:       map[string]Channel{},
		messages:       map[string]map[string]*Message{},
	}
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = true
		}
	}
	return set
}

// Rules returns the rules s was built with.
func (s *Store) Rules() Rules {
	return s.rules
}

// Engine returns the diff engine s renders edits with.
func (s *Store) Engine() *tokendiff.Engine {
	return s.engine
}

// PutChannel records (or replaces) ch, so ignore rules can see its guild and parent.
func (s *Store) PutChannel(ch Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[ch.ID] = ch
}

// Create inserts m, replacing any message with the same ID. FirstEditTimestamp defaults to the edited timestamp, else the creation timestamp.
func (s *Store) Create(m Message) {
	m = m.clone()
	if m.FirstEditTimestamp.IsZero() {
		m.FirstEditTimestamp = m.Timestamp
		if m.EditedTimestamp != nil {
			m.FirstEditTimestamp = *m.EditedTimestamp
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.messages[m.ChannelID]
	if byID == nil {
		byID = map[string]*Message{}
		s.messages[m.ChannelID] = byID
	}
	byID[m.ID] = &m
}

// Update applies an edit to a known message and returns the stored result. The old content is appended to the history when the update has an edited timestamp, its content
// changed, and the message is neither ephemeral nor ignored for edits. Attachments that disappeared are kept and marked deleted unless the message is ignored for deletes.
// Deleted state, history, first-edit time, and the diff-view toggle carry over; an empty author or zero timestamp in the update keeps the stored one.
func (s *Store) Update(m Message) (Message, error) {
	updated, _, err := s.update(m)
	return updated, err
}

// update is Update, also returning the edit it recorded, if any.
func (s *Store) update(m Message) (Message, *Edit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.lookup(m.ChannelID, m.ID)
	if old == nil {
		return Message{}, nil, health.Wrap("update message", ErrUnknownMessage, "channel_id", m.ChannelID, "message_id", m.ID)
	}

	next := m.clone()
	if next.Author.ID == "" {
		next.Author = old.Author
	}
	if next.Timestamp.IsZero() {
		next.Timestamp = old.Timestamp
	}
	next.Deleted = old.Deleted
	next.DiffViewDisabled = old.DiffViewDisabled
	next.EditHistory = slices.Clone(old.EditHistory)
	next.FirstEditTimestamp = old.FirstEditTimestamp
	if next.FirstEditTimestamp.IsZero() {
		next.FirstEditTimestamp = next.Timestamp
		if next.EditedTimestamp != nil {
			next.FirstEditTimestamp = *next.EditedTimestamp
		}
	}

	var edit *Edit
	if !next.Ephemeral() && !s.shouldIgnore(next, true) && next.EditedTimestamp != nil && next.Content != old.Content {
		edit = &Edit{Timestamp: *next.EditedTimestamp, Content: old.Content}
		next.EditHistory = append(next.EditHistory, *edit)
	}

	if !s.shouldIgnore(next, false) {
		next.Attachments = mergeAttachments(old.Attachments, next.Attachments)
	}

	s.messages[m.ChannelID][m.ID] = &next
	if edit != nil {
		s.logger.Debug("message edited", "channel_id", m.ChannelID, "message_id", m.ID, "edits", len(next.EditHistory))
	}
	return next.clone(), edit, nil
}

// mergeAttachments returns the attachments of oldList missing from newList, marked deleted, followed by newList.
func mergeAttachments(oldList, newList []Attachment) []Attachment {
	present := make(map[string]bool, len(newList))
	for _, a := range newList {
		present[a.ID] = true
	}
	var out []Attachment
	for _, a := range oldList {
		if !present[a.ID] {
			a.Deleted = true
			out = append(out, a)
		}
	}
	if out == nil {
		return newList
	}
	return append(out, newList...)
}

// Delete handles the deletion of a message. The message is dropped from the log if forget is set, it is ephemeral, or it is ignored for deletes; otherwise it is kept, marked
// deleted, with every attachment marked deleted. Unknown IDs are ignored.
func (s *Store) Delete(channelID, id string, forget bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(channelID, id, forget)
}

// DeleteBulk is Delete (without forget) for each of ids.
func (s *Store) DeleteBulk(channelID string, ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.deleteLocked(channelID, id, false)
	}
}

func (s *Store) deleteLocked(channelID, id string, forget bool) {
	m := s.lookup(channelID, id)
	if m == nil {
		return
	}
	if forget || m.Ephemeral() || s.shouldIgnore(*m, false) {
		delete(s.messages[channelID], id)
		return
	}
	m.Deleted = true
	for i := range m.Attachments {
		m.Attachments[i].Deleted = true
	}
	s.logger.Debug("message deleted", "channel_id", channelID, "message_id", id)
}

// ShouldIgnore reports whether m is excluded from the log. isEdit selects which toggle applies: LogEdits for edits, LogDeletes otherwise.
func (s *Store) ShouldIgnore(m Message, isEdit bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shouldIgnore(m, isEdit)
}

func (s *Store) shouldIgnore(m Message, isEdit bool) bool {
	r := s.rules
	ch := s.channels[m.ChannelID]
	switch {
	case r.IgnoreBots && m.Author.Bot:
	case r.IgnoreSelf && m.Author.ID != "" && m.Author.ID == r.SelfID:
	case s.ignoreUsers[m.Author.ID]:
	case s.ignoreChannels[m.ChannelID]:
	case ch.ParentID != "" && s.ignoreChannels[ch.ParentID]:
	case ch.GuildID != "" && s.ignoreGuilds[ch.GuildID]:
	case isEdit && !r.LogEdits:
	case !isEdit && !r.LogDeletes:
	default:
		return false
	}
	return true
}

// RemoveHistory forgets what was logged about a message: a deleted message is dropped, any other message loses its edit history.
func (s *Store) RemoveHistory(channelID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.lookup(channelID, id)
	if m == nil {
		return health.Wrap("remove history", ErrUnknownMessage, "channel_id", channelID, "message_id", id)
	}
	s.removeHistoryLocked(m)
	return nil
}

func (s *Store) removeHistoryLocked(m *Message) {
	if m.Deleted {
		delete(s.messages[m.ChannelID], m.ID)
		return
	}
	m.EditHistory = nil
}

// ClearChannel applies RemoveHistory to every logged message in the channel and returns how many it touched.
func (s *Store) ClearChannel(channelID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages[channelID] {
		if m.Logged() {
			s.removeHistoryLocked(m)
			n++
		}
	}
	if n > 0 {
		s.logger.Info("cleared channel log", "channel_id", channelID, "messages", n)
	}
	return n
}

// ToggleDiffView flips whether Edits diffs this message, and returns the new disabled state.
func (s *Store) ToggleDiffView(channelID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.lookup(channelID, id)
	if m == nil {
		return false, health.Wrap("toggle diff view", ErrUnknownMessage, "channel_id", channelID, "message_id", id)
	}
	m.DiffViewDisabled = !m.DiffViewDisabled
	return m.DiffViewDisabled, nil
}

// Get returns a copy of a message.
func (s *Store) Get(channelID, id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.lookup(channelID, id)
	if m == nil {
		return Message{}, false
	}
	return m.clone(), true
}

// Messages returns copies of the channel's messages, ordered by timestamp and then ID.
func (s *Store) Messages(channelID string) []Message {
	s.mu.RLock()
	out := make([]Message, 0, len(s.messages[channelID]))
	for _, m := range s.messages[channelID] {
		out = append(out, m.clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, compareMessages)
	return out
}

// Channels returns the IDs of channels that have messages, sorted.
func (s *Store) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.messages))
	for id, byID := range s.messages {
		if len(byID) > 0 {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func compareMessages(a, b Message) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func (s *Store) lookup(channelID, id string) *Message {
	return s.messages[channelID][id]
}
