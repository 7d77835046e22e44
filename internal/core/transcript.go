package core

// Transcript is the ordered list of messages rendered for the open room.
// Order is the order in which messages were appended; ids are unique.
// It is not safe for concurrent use; Session guards it.
type Transcript struct {
	order []int64
	byID  map[int64]*Message
}

// NewTranscript constructs an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{byID: make(map[int64]*Message)}
}

// Append adds msg unless a message with the same id is already present.
// Returns true if newly added.
func (t *Transcript) Append(msg Message) bool {
	if _, exists := t.byID[msg.ID]; exists {
		return false
	}
	m := msg
	t.byID[msg.ID] = &m
	t.order = append(t.order, msg.ID)
	return true
}

// MarkRead flags the message read. Returns true if the message exists and was unread.
func (t *Transcript) MarkRead(id int64) bool {
	m, ok := t.byID[id]
	if !ok || m.IsRead {
		return false
	}
	m.IsRead = true
	return true
}

// Has reports whether id is present.
func (t *Transcript) Has(id int64) bool {
	_, ok := t.byID[id]
	return ok
}

// Get returns a copy of the message with id.
func (t *Transcript) Get(id int64) (Message, bool) {
	m, ok := t.byID[id]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	return len(t.order)
}

// Messages returns a copy of the transcript in append order.
func (t *Transcript) Messages() []Message {
	out := make([]Message, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.byID[id])
	}
	return out
}

// Reset drops every message.
func (t *Transcript) Reset() {
	t.order = nil
	t.byID = make(map[int64]*Message)
}
