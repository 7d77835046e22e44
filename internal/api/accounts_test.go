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

func TestUserAndProfileLookup(t *testing.T) {
	b := newFakeBackend(t)
	b.router.GET("/accounts/user/:username/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": "5b1c", "username": c.Param("username")})
	})
	b.router.GET("/profiles/profile/:id/", func(c *gin.Context) {
		require.Equal(t, "5b1c", c.Param("id"))
		c.JSON(http.StatusOK, gin.H{"id": 3, "profile_image": "/media/bob.png"})
	})
	c, _ := newTestClient(t, b, testToken)
	ctx := context.Background()

	user, err := c.UserByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, core.User{ID: "5b1c", Username: "bob"}, user)

	img, err := c.ProfileImage(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "/media/bob.png", img)
}

func TestCurrentUserRequiresUsername(t *testing.T) {
	b := newFakeBackend(t)
	b.router.GET("/accounts/current-user/", jsonHandler(http.StatusOK, `{"id": 1}`))
	c, _ := newTestClient(t, b, testToken)

	_, err := c.CurrentUser(context.Background())
	require.ErrorIs(t, err, core.ErrMalformedResponse)
}

func TestSearchProfiles(t *testing.T) {
	b := newFakeBackend(t)
	b.router.GET("/search/search-profile/", func(c *gin.Context) {
		require.Equal(t, "bo", c.Query("q"))
		c.JSON(http.StatusOK, gin.H{"results": []gin.H{
			{"id": 10, "user": "u-2", "username": "bob", "profile_image": "/media/bob.png"},
			{"id": 11, "nickname": "boris"},
		}})
	})
	c, _ := newTestClient(t, b, testToken)

	users, err := c.SearchProfiles(context.Background(), "bo")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, core.User{ID: "u-2", Username: "bob", ProfileImage: "/media/bob.png"}, users[0])
	assert.Equal(t, core.User{ID: "11", Username: "boris"}, users[1])
}
