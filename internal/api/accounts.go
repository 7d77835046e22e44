package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/vovakirdan/marketchat/internal/core"
)

// CurrentUser returns the account that owns the token.
func (c *Client) CurrentUser(ctx context.Context) (core.User, error) {
	var u userDTO
	if err := c.getJSON(ctx, "current_user", "/accounts/current-user/", nil, &u); err != nil {
		return core.User{}, fmt.Errorf("current user: %w", err)
	}
	if u.Username == "" {
		return core.User{}, fmt.Errorf("current user: %w: missing username", core.ErrMalformedResponse)
	}
	return u.toCore(), nil
}

// UserByUsername looks an account up by username.
func (c *Client) UserByUsername(ctx context.Context, username string) (core.User, error) {
	var u userDTO
	path := "/accounts/user/" + url.PathEscape(username) + "/"
	if err := c.getJSON(ctx, "user_by_username", path, nil, &u); err != nil {
		return core.User{}, fmt.Errorf("user %s: %w", username, err)
	}
	if u.Username == "" {
		u.Username = username
	}
	return u.toCore(), nil
}

// ProfileImage returns the profile image path of userID, or "" when the profile has none.
func (c *Client) ProfileImage(ctx context.Context, userID string) (string, error) {
	var p profileDTO
	path := "/profiles/profile/" + url.PathEscape(userID) + "/"
	if err := c.getJSON(ctx, "profile", path, nil, &p); err != nil {
		return "", fmt.Errorf("profile %s: %w", userID, err)
	}
	return p.ProfileImage, nil
}

// SearchProfiles finds accounts whose profile matches query.
func (c *Client) SearchProfiles(ctx context.Context, query string) ([]core.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	body, err := c.do(ctx, request{
		method:   http.MethodGet,
		endpoint: "search_profiles",
		path:     "/search/search-profile/",
		query:    url.Values{"q": {query}},
	})
	if err != nil {
		return nil, fmt.Errorf("search profiles: %w", err)
	}
	items, err := decodeList[profileDTO](body)
	if err != nil {
		return nil, fmt.Errorf("search profiles: %w", err)
	}
	users := make([]core.User, 0, len(items))
	for _, p := range items {
		id := p.User
		if id == "" {
			id = p.ID
		}
		name := p.Username
		if name == "" {
			name = p.Nickname
		}
		users = append(users, core.User{ID: id.String(), Username: name, ProfileImage: p.ProfileImage})
	}
	return users, nil
}
