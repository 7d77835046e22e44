package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/marketchat/internal/core"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestListRoomsPaginated(t *testing.T) {
	b := newFakeBackend(t)
	b.router.GET("/chats/chatrooms/", jsonHandler(http.StatusOK, `{
		"count": 1,
		"results": [{"id": 42, "participants": ["alice", "bob"],
			"last_message": {"id": 9, "content": "hi", "sender": {"id": 2, "username": "bob"}, "sent_at": "2024-05-01T10:00:00Z", "is_read": true}}]
	}`))
	c, _ := newTestClient(t, b, testToken)

	rooms, err := c.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "42", rooms[0].ID)
	assert.Equal(t, []string{"alice", "bob"}, rooms[0].Participants)
	require.NotNil(t, rooms[0].LastMessage)
	assert.Equal(t, "bob", rooms[0].LastMessage.Sender.Username)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), rooms[0].LastMessage.SentAt)
}

func TestRoomMessagesBareArray(t *testing.T) {
	b := newFakeBackend(t)
	b.router.GET("/chats/chatrooms/:id/messages/", func(c *gin.Context) {
		require.Equal(t, "42", c.Param("id"))
		c.Data(http.StatusOK, "application/json", []byte(`[
			{"id": 1, "content": "a", "sender": {"id": "u-1", "username": "alice"}},
			{"id": 2, "image": "/media/x.png", "sender": {"id": "u-2", "username": "bob"}}
		]`))
	})
	c, _ := newTestClient(t, b, testToken)

	msgs, err := c.RoomMessages(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "u-1", msgs[0].Sender.ID)
	assert.True(t, msgs[1].HasImage())
}

func TestRoomMessagesMalformedEnvelope(t *testing.T) {
	b := newFakeBackend(t)
	b.router.GET("/chats/chatrooms/:id/messages/", jsonHandler(http.StatusOK, `{"messages": []}`))
	c, _ := newTestClient(t, b, testToken)

	_, err := c.RoomMessages(context.Background(), "42")
	require.ErrorIs(t, err, core.ErrMalformedResponse)
}

func TestCreateRoom(t *testing.T) {
	b := newFakeBackend(t)
	b.router.POST("/chats/chatrooms/", func(c *gin.Context) {
		var req createRoomRequest
		require.NoError(t, c.ShouldBindJSON(&req))
		switch req.Participants[0] {
		case "bob":
			c.JSON(http.StatusCreated, gin.H{"id": 77, "participants": []string{"alice", "bob"}})
		case "carol":
			c.JSON(http.StatusBadRequest, gin.H{"detail": roomExistsDetail})
		case "dave":
			c.JSON(http.StatusConflict, gin.H{"detail": "exists"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"detail": "사용자를 찾을 수 없습니다."})
		}
	})
	c, _ := newTestClient(t, b, testToken)
	ctx := context.Background()

	room, err := c.CreateRoom(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "77", room.ID)

	_, err = c.CreateRoom(ctx, "carol")
	require.ErrorIs(t, err, core.ErrConflict)

	_, err = c.CreateRoom(ctx, "dave")
	require.ErrorIs(t, err, core.ErrConflict)

	_, err = c.CreateRoom(ctx, "nobody")
	require.ErrorIs(t, err, core.ErrBadRequest)
	assert.NotErrorIs(t, err, core.ErrConflict)
}

func TestPostMessageMultipart(t *testing.T) {
	b := newFakeBackend(t)
	b.router.POST("/chats/chatrooms/:id/messages/", func(c *gin.Context) {
		b.captureMultipart(c)
		c.JSON(http.StatusCreated, gin.H{
			"id":      501,
			"content": c.PostForm("content"),
			"image":   "/media/chat/upload.png",
			"sender":  gin.H{"id": 1, "username": "alice"},
			"sent_at": "2024-05-01T10:00:00.123456Z",
			"is_read": false,
		})
	})
	c, _ := newTestClient(t, b, testToken)

	img := &core.Image{Data: pngBytes}
	require.NoError(t, img.Validate(5<<20))
	msg, err := c.PostMessage(context.Background(), "42", "caption", img)
	require.NoError(t, err)

	assert.Equal(t, int64(501), msg.ID)
	assert.Equal(t, "caption", msg.Content)
	assert.Equal(t, "1", msg.Sender.ID)
	assert.False(t, msg.SentAt.IsZero())

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, "caption", b.lastForm["content"])
	assert.Equal(t, pngBytes, b.lastImage)
	assert.Equal(t, "image/png", b.imageType)
}

func TestPostMessageTextOnly(t *testing.T) {
	b := newFakeBackend(t)
	b.router.POST("/chats/chatrooms/:id/messages/", func(c *gin.Context) {
		b.captureMultipart(c)
		c.JSON(http.StatusCreated, gin.H{"id": 3, "content": "hello", "sender": gin.H{"username": "alice"}})
	})
	c, _ := newTestClient(t, b, testToken)

	_, err := c.PostMessage(context.Background(), "42", "hello", nil)
	require.NoError(t, err)

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, "hello", b.lastForm["content"])
	assert.Nil(t, b.lastImage)
}

func TestLeaveRoom(t *testing.T) {
	b := newFakeBackend(t)
	var left string
	b.router.DELETE("/chats/chatrooms/:id/leave/", func(c *gin.Context) {
		left = c.Param("id")
		c.Status(http.StatusNoContent)
	})
	c, _ := newTestClient(t, b, testToken)

	require.NoError(t, c.LeaveRoom(context.Background(), "42"))
	assert.Equal(t, "42", left)
}

func TestLeaveRoomAlreadyLeft(t *testing.T) {
	b := newFakeBackend(t)
	b.router.DELETE("/chats/chatrooms/:id/leave/", func(c *gin.Context) {
		if c.Param("id") == "42" {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
			return
		}
		c.JSON(http.StatusForbidden, gin.H{"detail": "forbidden"})
	})
	c, _ := newTestClient(t, b, testToken)

	require.NoError(t, c.LeaveRoom(context.Background(), "42"))
	require.ErrorIs(t, c.LeaveRoom(context.Background(), "43"), core.ErrBadRequest)
}

func TestSearchMessages(t *testing.T) {
	b := newFakeBackend(t)
	b.router.GET("/search/chatrooms/:id/messages/", func(c *gin.Context) {
		require.Equal(t, "사과", c.Query("q"))
		c.JSON(http.StatusOK, []gin.H{{"id": 4, "content": "사과 팝니다", "username": "bob", "profile_image": "/media/b.png"}})
	})
	c, _ := newTestClient(t, b, testToken)

	msgs, err := c.SearchMessages(context.Background(), "42", " 사과 ")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "bob", msgs[0].Sender.Username)
	assert.Empty(t, msgs[0].Sender.ID)

	none, err := c.SearchMessages(context.Background(), "42", "  ")
	require.NoError(t, err)
	assert.Nil(t, none)
}
