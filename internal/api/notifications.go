package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/vovakirdan/marketchat/internal/core"
)

// Notifications lists the user's notifications.
func (c *Client) Notifications(ctx context.Context) ([]core.Notification, error) {
	body, err := c.do(ctx, request{method: http.MethodGet, endpoint: "notifications", path: "/notifications/"})
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	items, err := decodeList[notificationDTO](body)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out := make([]core.Notification, 0, len(items))
	for _, n := range items {
		out = append(out, n.toCore())
	}
	return out, nil
}

// DeleteNotification removes one notification.
func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("delete notification: %w: id is required", core.ErrBadRequest)
	}
	_, err := c.do(ctx, request{
		method:   http.MethodDelete,
		endpoint: "delete_notification",
		path:     "/notifications/" + url.PathEscape(id) + "/",
	})
	if err != nil {
		return fmt.Errorf("delete notification %s: %w", id, err)
	}
	return nil
}

// ClearNotifications removes every notification.
func (c *Client) ClearNotifications(ctx context.Context) error {
	_, err := c.do(ctx, request{method: http.MethodDelete, endpoint: "clear_notifications", path: "/notifications/delete_all/"})
	if err != nil {
		return fmt.Errorf("clear notifications: %w", err)
	}
	return nil
}
