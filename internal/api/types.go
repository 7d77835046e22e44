package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vovakirdan/marketchat/internal/core"
	"github.com/vovakirdan/marketchat/internal/proto"
)

type userDTO struct {
	ID           proto.ID `json:"id"`
	Username     string   `json:"username"`
	ProfileImage string   `json:"profile_image,omitempty"`
}

func (u userDTO) toCore() core.User {
	return core.User{ID: u.ID.String(), Username: u.Username, ProfileImage: u.ProfileImage}
}

type profileDTO struct {
	ID           proto.ID `json:"id"`
	User         proto.ID `json:"user,omitempty"`
	Username     string   `json:"username,omitempty"`
	Nickname     string   `json:"nickname,omitempty"`
	ProfileImage string   `json:"profile_image,omitempty"`
}

type roomDTO struct {
	ID           proto.ID           `json:"id"`
	Participants []string           `json:"participants"`
	LastMessage  *proto.ChatMessage `json:"last_message,omitempty"`
}

func (r roomDTO) toCore() core.RoomSummary {
	summary := core.RoomSummary{ID: r.ID.String(), Participants: r.Participants}
	if r.LastMessage != nil {
		m := core.MessageFromWire(*r.LastMessage)
		summary.LastMessage = &m
	}
	return summary
}

type createRoomRequest struct {
	Participants []string `json:"participants"`
}

// searchMessageDTO is the flattened shape returned by message search.
type searchMessageDTO struct {
	ID           int64  `json:"id"`
	Content      string `json:"content,omitempty"`
	Image        string `json:"image,omitempty"`
	Username     string `json:"username"`
	ProfileImage string `json:"profile_image,omitempty"`
	SentAt       string `json:"sent_at,omitempty"`
}

func (m searchMessageDTO) toCore() core.Message {
	return core.MessageFromWire(proto.ChatMessage{
		ID:      m.ID,
		Content: m.Content,
		Image:   m.Image,
		SentAt:  m.SentAt,
		Sender:  &proto.Sender{Username: m.Username, ProfileImage: m.ProfileImage},
	})
}

// notificationDTO decodes either a notification object or a bare string.
type notificationDTO struct {
	ID        proto.ID `json:"id"`
	Message   string   `json:"message"`
	CreatedAt string   `json:"created_at,omitempty"`
	Sender    *struct {
		ProfileImage string `json:"profile_image,omitempty"`
	} `json:"sender,omitempty"`
}

func (n *notificationDTO) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return fmt.Errorf("decode notification: %w", err)
		}
		*n = notificationDTO{Message: text}
		return nil
	}
	type plain notificationDTO
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode notification: %w", err)
	}
	*n = notificationDTO(p)
	return nil
}

func (n notificationDTO) toCore() core.Notification {
	out := core.Notification{ID: n.ID.String(), Message: n.Message}
	if n.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339Nano, n.CreatedAt); err == nil {
			out.CreatedAt = ts
		}
	}
	if n.Sender != nil {
		out.SenderImage = n.Sender.ProfileImage
	}
	return out
}
