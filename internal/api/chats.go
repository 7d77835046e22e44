package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/vovakirdan/marketchat/internal/core"
	"github.com/vovakirdan/marketchat/internal/proto"
)

// roomExistsDetail is the backend's 400 detail when a room with the user already exists.
const roomExistsDetail = "이미 이 사용자와의 채팅방이 존재합니다."

func roomPath(roomID, suffix string) string {
	return "/chats/chatrooms/" + url.PathEscape(roomID) + "/" + suffix
}

// ListRooms returns the rooms the user participates in. OtherUser is left empty.
func (c *Client) ListRooms(ctx context.Context) ([]core.RoomSummary, error) {
	body, err := c.do(ctx, request{method: http.MethodGet, endpoint: "rooms", path: "/chats/chatrooms/"})
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	items, err := decodeList[roomDTO](body)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	rooms := make([]core.RoomSummary, 0, len(items))
	for _, r := range items {
		rooms = append(rooms, r.toCore())
	}
	return rooms, nil
}

// RoomMessages returns the stored messages of roomID in server order.
func (c *Client) RoomMessages(ctx context.Context, roomID string) ([]core.Message, error) {
	body, err := c.do(ctx, request{method: http.MethodGet, endpoint: "room_messages", path: roomPath(roomID, "messages/")})
	if err != nil {
		return nil, fmt.Errorf("room %s messages: %w", roomID, err)
	}
	items, err := decodeList[proto.ChatMessage](body)
	if err != nil {
		return nil, fmt.Errorf("room %s messages: %w", roomID, err)
	}
	msgs := make([]core.Message, 0, len(items))
	for _, m := range items {
		msgs = append(msgs, core.MessageFromWire(m))
	}
	return msgs, nil
}

// CreateRoom starts a room with username. When such a room already exists the
// returned error wraps core.ErrConflict.
func (c *Client) CreateRoom(ctx context.Context, username string) (core.RoomSummary, error) {
	reqBody, err := jsonBody(createRoomRequest{Participants: []string{username}})
	if err != nil {
		return core.RoomSummary{}, err
	}
	body, err := c.do(ctx, request{
		method:      http.MethodPost,
		endpoint:    "create_room",
		path:        "/chats/chatrooms/",
		body:        reqBody,
		contentType: "application/json",
	})
	if err != nil {
		if isRoomExists(err) {
			return core.RoomSummary{}, fmt.Errorf("create room with %s: %w", username, core.ErrConflict)
		}
		return core.RoomSummary{}, fmt.Errorf("create room with %s: %w", username, err)
	}
	var room roomDTO
	if err := decodeObject(body, &room); err != nil {
		return core.RoomSummary{}, fmt.Errorf("create room with %s: %w", username, err)
	}
	if room.ID == "" {
		return core.RoomSummary{}, fmt.Errorf("create room with %s: %w: missing id", username, core.ErrMalformedResponse)
	}
	return room.toCore(), nil
}

func isRoomExists(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	return httpErr.Status == http.StatusConflict ||
		(httpErr.Status == http.StatusBadRequest && httpErr.Detail == roomExistsDetail)
}

// PostMessage uploads a message as multipart form data and returns the stored copy.
func (c *Client) PostMessage(ctx context.Context, roomID, content string, image *core.Image) (core.Message, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if content != "" {
		if err := form.WriteField("content", content); err != nil {
			return core.Message{}, fmt.Errorf("write content field: %w", err)
		}
	}
	if image != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, image.Name))
		ct := image.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		header.Set("Content-Type", ct)
		part, err := form.CreatePart(header)
		if err != nil {
			return core.Message{}, fmt.Errorf("create image part: %w", err)
		}
		if _, err := part.Write(image.Data); err != nil {
			return core.Message{}, fmt.Errorf("write image part: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return core.Message{}, fmt.Errorf("close form: %w", err)
	}

	body, err := c.do(ctx, request{
		method:      http.MethodPost,
		endpoint:    "post_message",
		path:        roomPath(roomID, "messages/"),
		body:        &buf,
		contentType: form.FormDataContentType(),
	})
	if err != nil {
		return core.Message{}, fmt.Errorf("post message to room %s: %w", roomID, err)
	}
	var msg proto.ChatMessage
	if err := decodeObject(body, &msg); err != nil {
		return core.Message{}, fmt.Errorf("post message to room %s: %w", roomID, err)
	}
	if msg.ID == 0 {
		return core.Message{}, fmt.Errorf("post message to room %s: %w: missing id", roomID, core.ErrMalformedResponse)
	}
	return core.MessageFromWire(msg), nil
}

// LeaveRoom removes the user from roomID. Leaving a room that is already gone succeeds.
func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, endpoint: "leave_room", path: roomPath(roomID, "leave/")})
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound {
		c.log.Debug().Str("room_id", roomID).Msg("room already left")
		return nil
	}
	if err != nil {
		return fmt.Errorf("leave room %s: %w", roomID, err)
	}
	return nil
}

// SearchMessages searches roomID's messages for query.
func (c *Client) SearchMessages(ctx context.Context, roomID, query string) ([]core.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	body, err := c.do(ctx, request{
		method:   http.MethodGet,
		endpoint: "search_messages",
		path:     "/search/chatrooms/" + url.PathEscape(roomID) + "/messages/",
		query:    url.Values{"q": {query}},
	})
	if err != nil {
		return nil, fmt.Errorf("search room %s: %w", roomID, err)
	}
	items, err := decodeList[searchMessageDTO](body)
	if err != nil {
		return nil, fmt.Errorf("search room %s: %w", roomID, err)
	}
	msgs := make([]core.Message, 0, len(items))
	for _, m := range items {
		msgs = append(msgs, m.toCore())
	}
	return msgs, nil
}
