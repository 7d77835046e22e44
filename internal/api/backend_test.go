package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const testToken = "secret-token"

// fakeBackend is a gin router standing in for the marketplace REST API.
type fakeBackend struct {
	t      *testing.T
	router *gin.Engine
	server *httptest.Server

	mu        sync.Mutex
	requests  []*http.Request
	lastForm  map[string]string
	lastImage []byte
	imageType string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	gin.SetMode(gin.TestMode)
	b := &fakeBackend{t: t, router: gin.New()}
	b.router.Use(func(c *gin.Context) {
		b.mu.Lock()
		b.requests = append(b.requests, c.Request.Clone(context.Background()))
		b.mu.Unlock()
		if c.GetHeader("Authorization") != "Bearer "+testToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Authentication credentials were not provided."})
			return
		}
		c.Next()
	})
	b.server = httptest.NewServer(b.router)
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBackend) lastRequest() *http.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(b.t, b.requests)
	return b.requests[len(b.requests)-1]
}

// captureMultipart records the form fields and the uploaded image of the request.
func (b *fakeBackend) captureMultipart(c *gin.Context) {
	form := map[string]string{}
	if v, ok := c.GetPostForm("content"); ok {
		form["content"] = v
	}
	var data []byte
	var ct string
	if fh, err := c.FormFile("image"); err == nil {
		f, err := fh.Open()
		require.NoError(b.t, err)
		data, err = io.ReadAll(f)
		require.NoError(b.t, err)
		f.Close()
		ct = fh.Header.Get("Content-Type")
	}
	b.mu.Lock()
	b.lastForm, b.lastImage, b.imageType = form, data, ct
	b.mu.Unlock()
}

type memCreds struct {
	mu      sync.Mutex
	token   string
	cleared int
}

func (m *memCreds) Token(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *memCreds) ClearAuth(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.cleared++
	return nil
}

func newTestClient(t *testing.T, b *fakeBackend, token string) (*Client, *memCreds) {
	t.Helper()
	creds := &memCreds{token: token}
	c, err := New(Config{BaseURL: b.server.URL, Timeout: 5 * time.Second, Credentials: creds})
	require.NoError(t, err)
	return c, creds
}

func jsonHandler(status int, body string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Data(status, "application/json", []byte(strings.TrimSpace(body)))
	}
}
