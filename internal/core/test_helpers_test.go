package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/marketchat/internal/proto"
)

const waitFor = 2 * time.Second

type fakeConn struct {
	url    string
	frames chan []byte
	done   chan struct{}

	mu        sync.Mutex
	writes    []proto.Outbound
	closeCode int
	closed    bool
}

func newFakeConn(url string) *fakeConn {
	return &fakeConn{url: url, frames: make(chan []byte, 16), done: make(chan struct{})}
}

func (c *fakeConn) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return nil, &CloseError{Code: c.closeCode}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) WriteFrame(_ context.Context, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("write on closed conn")
	}
	frame, ok := v.(proto.Outbound)
	if !ok {
		return fmt.Errorf("unexpected frame %T", v)
	}
	c.writes = append(c.writes, frame)
	return nil
}

func (c *fakeConn) Close(code int, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.closeCode = code
	close(c.done)
	return nil
}

// drop simulates the server or network ending the connection.
func (c *fakeConn) drop(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	close(c.done)
}

func (c *fakeConn) push(t *testing.T, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	c.frames <- raw
}

func (c *fakeConn) written(kind string) []proto.Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []proto.Outbound
	for _, w := range c.writes {
		if w.Type == kind {
			out = append(out, w)
		}
	}
	return out
}

func (c *fakeConn) code() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	fail  error
}

func (d *fakeDialer) Dial(_ context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		err := d.fail
		d.fail = nil
		return nil, err
	}
	c := newFakeConn(url)
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

type staticTokens string

func (t staticTokens) Token(context.Context) (string, error) { return string(t), nil }

type fakePoster struct {
	mu    sync.Mutex
	calls int
	reply Message
	err   error
}

func (p *fakePoster) PostMessage(_ context.Context, _ string, content string, _ *Image) (Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return Message{}, p.err
	}
	reply := p.reply
	if reply.Content == "" {
		reply.Content = content
	}
	return reply, nil
}

func (p *fakePoster) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeHistory struct {
	mu   sync.Mutex
	msgs map[string][]Message
}

func (h *fakeHistory) RoomMessages(_ context.Context, roomID string) ([]Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.msgs[roomID], nil
}

type fakeLeaver struct {
	mu   sync.Mutex
	left []string
}

func (l *fakeLeaver) LeaveRoom(_ context.Context, roomID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.left = append(l.left, roomID)
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

type harness struct {
	session *Session
	dialer  *fakeDialer
	poster  *fakePoster
	history *fakeHistory
	leaver  *fakeLeaver
	events  *recorder
	clock   *clock.Mock
}

func newHarness(t *testing.T, tweak func(*SessionConfig)) *harness {
	t.Helper()
	h := &harness{
		dialer:  &fakeDialer{},
		poster:  &fakePoster{},
		history: &fakeHistory{msgs: map[string][]Message{}},
		leaver:  &fakeLeaver{},
		events:  &recorder{},
		clock:   clock.NewMock(),
	}
	cfg := SessionConfig{
		WSBaseURL:         "ws://chat.test",
		HeartbeatInterval: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReconnectDelay:    3 * time.Second,
		MaxImageBytes:     5 << 20,
		Dialer:            h.dialer,
		Tokens:            staticTokens("tok"),
		Poster:            h.poster,
		History:           h.history,
		Leaver:            h.leaver,
		Observer:          h.events,
		Clock:             h.clock,
	}
	if tweak != nil {
		tweak(&cfg)
	}
	h.session = NewSession(cfg)
	h.session.SetSelf(User{ID: "1", Username: "alice"})
	t.Cleanup(h.session.Close)
	return h
}

func (h *harness) waitState(t *testing.T, st State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.session.State() == st }, waitFor, 5*time.Millisecond,
		"state never became %s (now %s)", st, h.session.State())
}

func receivedFrame(id int64, senderID, username string) map[string]any {
	return map[string]any{
		"status": "received",
		"message": map[string]any{
			"id":      id,
			"content": fmt.Sprintf("message %d", id),
			"sent_at": "2024-05-01T10:00:00Z",
			"is_read": false,
			"sender":  map[string]any{"id": senderID, "username": username},
		},
	}
}

func countIDs(msgs []Message, id int64) int {
	n := 0
	for _, m := range msgs {
		if m.ID == id {
			n++
		}
	}
	return n
}

func roomOf(url string) string {
	rest := strings.TrimPrefix(url, "ws://chat.test/ws/chat/")
	return strings.SplitN(rest, "/", 2)[0]
}
