package core

import (
	"time"

	"github.com/vovakirdan/marketchat/internal/proto"
)

// User identifies a chat participant.
type User struct {
	ID           string
	Username     string
	ProfileImage string
}

// Message is the domain model for a chat message.
// Only IsRead changes after a message is received.
type Message struct {
	ID      int64
	Content string
	Image   string
	Sender  User
	SentAt  time.Time
	IsRead  bool
}

// HasImage reports whether the message carries an image attachment.
func (m Message) HasImage() bool {
	return m.Image != ""
}

// MessageFromWire converts the wire representation into a Message.
// Unparseable timestamps leave SentAt zero.
func MessageFromWire(w proto.ChatMessage) Message {
	msg := Message{
		ID:      w.ID,
		Content: w.Content,
		Image:   w.Image,
		IsRead:  w.IsRead,
	}
	if w.Sender != nil {
		msg.Sender = User{
			ID:           w.Sender.ID.String(),
			Username:     w.Sender.Username,
			ProfileImage: w.Sender.ProfileImage,
		}
	}
	if w.SentAt != "" {
		if ts, err := time.Parse(time.RFC3339Nano, w.SentAt); err == nil {
			msg.SentAt = ts
		}
	}
	return msg
}

// Same reports whether u and other denote the same account.
// Ids win when both sides have one; usernames are the fallback.
func (u User) Same(other User) bool {
	if u.ID != "" && other.ID != "" {
		return u.ID == other.ID
	}
	return u.Username != "" && u.Username == other.Username
}
