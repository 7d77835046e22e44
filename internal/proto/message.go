package proto

import (
	"encoding/json"
	"fmt"
)

const (
	OutboundTypeJoin        = "join"
	OutboundTypeHeartbeat   = "heartbeat"
	OutboundTypePing        = "ping"
	OutboundTypeReadReceipt = "read_receipt"

	InboundTypeConnectionEstablished = "connection_established"
	InboundTypeReadReceipt           = "read_receipt"

	InboundStatusReceived = "received"
	InboundStatusRead     = "read"
)

// Outbound is a frame sent by the client. Fields unused by a frame type are omitted.
type Outbound struct {
	Type      string `json:"type"`
	RoomID    string `json:"room_id,omitempty"`
	MessageID int64  `json:"message_id,omitempty"`
}

// Join announces the client in a room right after the socket opens.
func Join(roomID string) Outbound {
	return Outbound{Type: OutboundTypeJoin, RoomID: roomID}
}

// Heartbeat is the keepalive frame.
func Heartbeat() Outbound {
	return Outbound{Type: OutboundTypeHeartbeat}
}

// Ping is the secondary liveness frame.
func Ping() Outbound {
	return Outbound{Type: OutboundTypePing}
}

// ReadReceipt acknowledges that messageID has been seen in roomID.
func ReadReceipt(roomID string, messageID int64) Outbound {
	return Outbound{Type: OutboundTypeReadReceipt, RoomID: roomID, MessageID: messageID}
}

// Sender is the author block embedded in messages.
type Sender struct {
	ID           ID     `json:"id,omitempty"`
	Username     string `json:"username"`
	ProfileImage string `json:"profile_image,omitempty"`
}

// ChatMessage is the wire shape of a chat message, shared by REST and WebSocket payloads.
type ChatMessage struct {
	ID      int64   `json:"id"`
	Content string  `json:"content,omitempty"`
	Image   string  `json:"image,omitempty"`
	Sender  *Sender `json:"sender,omitempty"`
	SentAt  string  `json:"sent_at,omitempty"`
	IsRead  bool    `json:"is_read"`
}

// Inbound is the envelope for frames pushed by the server.
// Frames are discriminated by either Type or Status.
type Inbound struct {
	Type      string          `json:"type,omitempty"`
	Status    string          `json:"status,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
	MessageID int64           `json:"message_id,omitempty"`
}

// FrameKind classifies a decoded inbound frame.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameConnectionEstablished
	FrameMessageReceived
	FrameReadReceipt
)

func (k FrameKind) String() string {
	switch k {
	case FrameConnectionEstablished:
		return "connection_established"
	case FrameMessageReceived:
		return "message_received"
	case FrameReadReceipt:
		return "read_receipt"
	default:
		return "unknown"
	}
}

// Frame is a decoded inbound frame.
type Frame struct {
	Kind      FrameKind
	Message   *ChatMessage
	MessageID int64
	// Info carries the informational text of connection_established frames.
	Info string
}

// Decode parses raw into a Frame. Frames with an unknown discriminant decode to FrameUnknown
// without error; only undecodable JSON is an error.
func Decode(raw []byte) (Frame, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}

	switch {
	case in.Type == InboundTypeConnectionEstablished:
		var info string
		// message is free text here; ignore other shapes
		_ = json.Unmarshal(in.Message, &info)
		return Frame{Kind: FrameConnectionEstablished, Info: info}, nil
	case in.Status == InboundStatusReceived && len(in.Message) > 0 && string(in.Message) != "null":
		var msg ChatMessage
		if err := json.Unmarshal(in.Message, &msg); err != nil {
			return Frame{}, fmt.Errorf("decode received message: %w", err)
		}
		return Frame{Kind: FrameMessageReceived, Message: &msg}, nil
	case in.Type == InboundTypeReadReceipt || in.Status == InboundStatusRead:
		return Frame{Kind: FrameReadReceipt, MessageID: in.MessageID}, nil
	default:
		return Frame{Kind: FrameUnknown}, nil
	}
}

// NotificationFrame is pushed on the notification channel.
type NotificationFrame struct {
	Notification json.RawMessage `json:"notification,omitempty"`
}

// HasNotification reports whether raw carries a notification payload.
func HasNotification(raw []byte) (bool, error) {
	var nf NotificationFrame
	if err := json.Unmarshal(raw, &nf); err != nil {
		return false, fmt.Errorf("decode notification frame: %w", err)
	}
	return len(nf.Notification) > 0 && string(nf.Notification) != "null", nil
}
