package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/marketchat/internal/core"
)

func TestNotificationsMixedShapes(t *testing.T) {
	b := newFakeBackend(t)
	b.router.GET("/notifications/", jsonHandler(http.StatusOK, `[
		{"id": 1, "message": "bob sent you a message", "created_at": "2024-05-01T10:00:00Z", "sender": {"profile_image": "/media/bob.png"}},
		"system maintenance tonight"
	]`))
	c, _ := newTestClient(t, b, testToken)

	list, err := c.Notifications(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "1", list[0].ID)
	assert.True(t, list[0].Deletable())
	assert.Equal(t, "/media/bob.png", list[0].SenderImage)
	assert.False(t, list[0].CreatedAt.IsZero())

	assert.Equal(t, "system maintenance tonight", list[1].Message)
	assert.False(t, list[1].Deletable())
}

func TestDeleteAndClearNotifications(t *testing.T) {
	b := newFakeBackend(t)
	var deleted []string
	cleared := false
	b.router.DELETE("/notifications/:id/", func(c *gin.Context) {
		if c.Param("id") == "delete_all" {
			cleared = true
		} else {
			deleted = append(deleted, c.Param("id"))
		}
		c.Status(http.StatusNoContent)
	})
	c, _ := newTestClient(t, b, testToken)
	ctx := context.Background()

	require.NoError(t, c.DeleteNotification(ctx, "9"))
	require.NoError(t, c.ClearNotifications(ctx))
	assert.Equal(t, []string{"9"}, deleted)
	assert.True(t, cleared)

	require.ErrorIs(t, c.DeleteNotification(ctx, ""), core.ErrBadRequest)
}
