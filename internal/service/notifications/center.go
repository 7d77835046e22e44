package notifications

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat/internal/core"
	"github.com/vovakirdan/marketchat/internal/observability"
	"github.com/vovakirdan/marketchat/internal/proto"
)

const (
	channelNotifications  = "notifications"
	defaultReconnectDelay = 5 * time.Second
)

// Backend is the subset of the REST API the center needs.
type Backend interface {
	Notifications(ctx context.Context) ([]core.Notification, error)
	DeleteNotification(ctx context.Context, id string) error
	ClearNotifications(ctx context.Context) error
}

// Update is delivered to the listener whenever the list changes.
type Update struct {
	Items []core.Notification
	// Pushed is set when the change was triggered by a server push.
	Pushed bool
	Err    error
}

// Config wires a Center.
type Config struct {
	WSBaseURL      string
	ReconnectDelay time.Duration
	Dialer         core.Dialer
	Clock          clock.Clock
	Logger         *zerolog.Logger
	Listener       func(Update)
}

// Center holds the notification list and keeps it in sync with the push channel.
type Center struct {
	backend Backend
	cfg     Config
	log     *zerolog.Logger

	mu      sync.Mutex
	items   []core.Notification
	userID  string
	watch   bool
	visible bool
	gen     uint64
	conn    core.Conn
	timer   *clock.Timer
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewCenter creates a center that is not yet watching.
func NewCenter(backend Backend, cfg Config) *Center {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		nop := zerolog.Nop()
		cfg.Logger = &nop
	}
	if cfg.Listener == nil {
		cfg.Listener = func(Update) {}
	}
	return &Center{backend: backend, cfg: cfg, log: cfg.Logger, visible: true}
}

// Items returns the current list.
func (c *Center) Items() []core.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Notification, len(c.items))
	copy(out, c.items)
	return out
}

// Count returns the badge number.
func (c *Center) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Refresh refetches the list.
func (c *Center) Refresh(ctx context.Context) ([]core.Notification, error) {
	return c.refresh(ctx, false)
}

func (c *Center) refresh(ctx context.Context, pushed bool) ([]core.Notification, error) {
	items, err := c.backend.Notifications(ctx)
	if err != nil {
		c.cfg.Listener(Update{Items: c.Items(), Pushed: pushed, Err: err})
		return nil, fmt.Errorf("refresh notifications: %w", err)
	}
	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
	c.cfg.Listener(Update{Items: append([]core.Notification(nil), items...), Pushed: pushed})
	return append([]core.Notification(nil), items...), nil
}

// Delete removes one notification on the server and then locally.
func (c *Center) Delete(ctx context.Context, id string) error {
	if err := c.backend.DeleteNotification(ctx, id); err != nil {
		return err
	}
	c.mu.Lock()
	kept := make([]core.Notification, 0, len(c.items))
	for _, n := range c.items {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	c.items = kept
	items := append([]core.Notification(nil), kept...)
	c.mu.Unlock()
	c.cfg.Listener(Update{Items: items})
	return nil
}

// Clear removes every notification.
func (c *Center) Clear(ctx context.Context) error {
	if err := c.backend.ClearNotifications(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
	c.cfg.Listener(Update{})
	return nil
}

// Watch loads the list and subscribes to pushes for userID. Each push triggers a
// refetch. A dropped channel is reopened after the reconnect delay while visible.
func (c *Center) Watch(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("watch notifications: %w: user id is required", core.ErrBadRequest)
	}

	c.mu.Lock()
	closePrev := c.stopLocked()
	c.userID = userID
	c.watch = true
	c.ctx, c.cancel = context.WithCancel(context.Background())
	gen := c.gen
	c.mu.Unlock()
	closePrev()

	if _, err := c.Refresh(ctx); err != nil {
		if errors.Is(err, core.ErrAuthRequired) {
			c.Stop()
			return err
		}
		c.log.Warn().Err(err).Msg("initial notification fetch failed")
	}
	return c.connect(ctx, gen)
}

// SetVisible pauses reconnects while hidden. Becoming visible while disconnected
// reconnects immediately.
func (c *Center) SetVisible(ctx context.Context, visible bool) error {
	c.mu.Lock()
	was := c.visible
	c.visible = visible
	if !visible || was || !c.watch || c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	gen := c.gen
	c.mu.Unlock()

	observability.IncReconnect(channelNotifications, "visibility")
	return c.connect(ctx, gen)
}

// Stop closes the channel; no reconnect follows.
func (c *Center) Stop() {
	c.mu.Lock()
	closeConn := c.stopLocked()
	c.mu.Unlock()
	closeConn()
}

func (c *Center) stopLocked() func() {
	c.gen++
	c.watch = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	conn := c.conn
	c.conn = nil
	if conn == nil {
		return func() {}
	}
	observability.SetConnected(channelNotifications, false)
	return func() { _ = conn.Close(core.StatusNormalClosure, "stopped") }
}

func (c *Center) url(userID string) string {
	return strings.TrimRight(c.cfg.WSBaseURL, "/") + "/ws/notifications/" + url.PathEscape(userID) + "/"
}

func (c *Center) connect(ctx context.Context, gen uint64) error {
	c.mu.Lock()
	if gen != c.gen || !c.watch {
		c.mu.Unlock()
		return nil
	}
	target := c.url(c.userID)
	c.mu.Unlock()

	conn, err := c.cfg.Dialer.Dial(ctx, target)

	c.mu.Lock()
	if gen != c.gen || !c.watch {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close(core.StatusNormalClosure, "superseded")
		}
		return nil
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("notification channel dial failed")
		c.scheduleLocked(gen)
		c.mu.Unlock()
		return fmt.Errorf("watch notifications: %w: %w", core.ErrNetwork, err)
	}
	c.conn = conn
	readCtx := c.ctx
	c.mu.Unlock()

	observability.SetConnected(channelNotifications, true)
	c.log.Info().Msg("notification channel connected")
	go c.readLoop(readCtx, conn, gen)
	return nil
}

func (c *Center) readLoop(ctx context.Context, conn core.Conn, gen uint64) {
	for {
		raw, err := conn.ReadFrame(ctx)
		if err != nil {
			c.handleClosed(gen, core.CloseCode(err))
			return
		}
		has, err := proto.HasNotification(raw)
		if err != nil {
			observability.IncFrame(channelNotifications, "in", "malformed")
			c.log.Warn().Err(err).Msg("ignoring malformed notification frame")
			continue
		}
		if !has {
			observability.IncFrame(channelNotifications, "in", "unknown")
			continue
		}
		observability.IncFrame(channelNotifications, "in", "notification")
		if _, err := c.refresh(ctx, true); err != nil {
			c.log.Warn().Err(err).Msg("refetch after push failed")
		}
	}
}

func (c *Center) handleClosed(gen uint64, code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || !c.watch {
		return
	}
	c.conn = nil
	observability.SetConnected(channelNotifications, false)
	c.log.Info().Int("code", code).Msg("notification channel closed")
	c.scheduleLocked(gen)
}

// scheduleLocked arms the reconnect timer unless the client is hidden.
func (c *Center) scheduleLocked(gen uint64) {
	if !c.visible {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = c.cfg.Clock.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.mu.Lock()
		if gen != c.gen || !c.watch || c.conn != nil {
			c.mu.Unlock()
			return
		}
		c.timer = nil
		ctx := c.ctx
		c.mu.Unlock()

		observability.IncReconnect(channelNotifications, "backoff")
		_ = c.connect(ctx, gen)
	})
}
