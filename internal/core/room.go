package core

// RoomSummary is one entry of the chat room list. It is rebuilt on every refresh.
type RoomSummary struct {
	ID           string
	Participants []string
	LastMessage  *Message
	OtherUser    User
}

const previewLimit = 30

// Preview renders the last-message line shown under a room in the list.
func (r RoomSummary) Preview() string {
	m := r.LastMessage
	if m == nil {
		return "No messages yet"
	}
	var text string
	switch {
	case m.HasImage() && m.Content != "":
		text = "📷 " + m.Content
	case m.HasImage():
		text = "📷 Image"
	case m.Content != "":
		text = m.Content
	default:
		return "No messages yet"
	}
	return truncate(text, previewLimit)
}

// OtherParticipant returns the first participant that is not self.
func OtherParticipant(participants []string, selfUsername string) string {
	for _, p := range participants {
		if p != selfUsername {
			return p
		}
	}
	return ""
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
