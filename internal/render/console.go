package render

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/vovakirdan/marketchat/internal/core"
)

const timeLayout = "15:04"

// Console prints session events and listings as plain text lines.
// It is safe for concurrent use; the session calls it from its read goroutine.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	media   func(string) string
	loc     *time.Location
	lastErr string
}

// NewConsole writes to out. media resolves image paths to full URLs and may be nil.
func NewConsole(out io.Writer, media func(string) string) *Console {
	if media == nil {
		media = func(p string) string { return p }
	}
	return &Console{out: out, media: media, loc: time.Local}
}

// OnEvent implements core.Observer.
func (c *Console) OnEvent(ev core.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case core.EventStateChanged:
		if line := stateLine(ev.State); line != "" {
			c.printf("* %s\n", line)
		}
	case core.EventHistoryLoaded:
		c.printf("* room %s: %d earlier messages\n", ev.RoomID, len(ev.Messages))
		for _, m := range ev.Messages {
			c.message(m, false)
		}
	case core.EventMessageAppended:
		c.message(ev.Message, ev.Own)
	case core.EventMessageRead:
		c.printf("  (read #%d)\n", ev.MessageID)
	case core.EventConnectionInfo:
		if ev.Text != "" {
			c.printf("* %s\n", ev.Text)
		}
	case core.EventNotice:
		// repeated notices while reconnecting say nothing new
		if ev.Text != c.lastErr {
			c.printf("! %s\n", ev.Text)
			c.lastErr = ev.Text
		}
	case core.EventLeft:
		c.printf("* left room %s\n", ev.RoomID)
	}
	if ev.Kind == core.EventStateChanged && ev.State == core.StateOpen {
		c.lastErr = ""
	}
}

func stateLine(st core.State) string {
	switch st {
	case core.StateConnecting:
		return "connecting..."
	case core.StateOpen:
		return "connected"
	case core.StateReconnectPending:
		return "connection lost, reconnecting"
	default:
		return ""
	}
}

func (c *Console) message(m core.Message, own bool) {
	who := m.Sender.Username
	if own {
		who = "you"
	}
	if who == "" {
		who = "?"
	}
	var parts []string
	if m.Content != "" {
		parts = append(parts, m.Content)
	}
	if m.HasImage() {
		parts = append(parts, "[📷 "+c.media(m.Image)+"]")
	}
	stamp := "--:--"
	if !m.SentAt.IsZero() {
		stamp = m.SentAt.In(c.loc).Format(timeLayout)
	}
	read := ""
	if own && m.IsRead {
		read = " ✓"
	}
	c.printf("[%s] %s: %s%s\n", stamp, who, strings.Join(parts, " "), read)
}

// Rooms prints the room directory.
func (c *Console) Rooms(rooms []core.RoomSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(rooms) == 0 {
		c.printf("no chat rooms yet\n")
		return
	}
	for _, r := range rooms {
		name := r.OtherUser.Username
		if name == "" {
			name = "(no other participant)"
		}
		c.printf("%6s  %-20s %s\n", r.ID, name, r.Preview())
	}
}

// Users prints profile search results.
func (c *Console) Users(users []core.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(users) == 0 {
		c.printf("no users found\n")
		return
	}
	for _, u := range users {
		if u.ProfileImage != "" {
			c.printf("%s  %s\n", u.Username, c.media(u.ProfileImage))
			continue
		}
		c.printf("%s\n", u.Username)
	}
}

// SearchResults prints messages found by a room search.
func (c *Console) SearchResults(query string, msgs []core.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(msgs) == 0 {
		c.printf("no messages match %q\n", query)
		return
	}
	c.printf("%d messages match %q:\n", len(msgs), query)
	for _, m := range msgs {
		c.message(m, false)
	}
}

// Notifications prints the notification list. pushed marks a list refreshed by a push.
func (c *Console) Notifications(items []core.Notification, pushed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pushed {
		c.printf("* new notification (%d total)\n", len(items))
	}
	if len(items) == 0 {
		c.printf("no notifications\n")
		return
	}
	for _, n := range items {
		id := n.ID
		if id == "" {
			id = "-"
		}
		stamp := ""
		if !n.CreatedAt.IsZero() {
			stamp = n.CreatedAt.In(c.loc).Format("2006-01-02 15:04") + "  "
		}
		msg := n.Message
		if msg == "" {
			msg = "(empty notification)"
		}
		c.printf("%6s  %s%s\n", id, stamp, msg)
	}
}

// User prints one account.
func (c *Console) User(u core.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.printf("%s (id %s)\n", u.Username, u.ID)
}

// Info prints a status line.
func (c *Console) Info(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.printf("* "+format+"\n", args...)
}

// Error prints err as a user-facing line.
func (c *Console) Error(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.printf("! %s\n", describe(err))
}

func describe(err error) string {
	switch core.CodeOf(err) {
	case core.ErrCodeAuthRequired:
		return "not signed in; run `marketchat login --token <token>`"
	case core.ErrCodeNotConnected:
		return "no active chat connection"
	default:
		return err.Error()
	}
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}
