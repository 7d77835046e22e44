package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/marketchat/internal/core"
	"github.com/vovakirdan/marketchat/internal/store"
)

const lookupConcurrency = 4

var (
	// ErrCannotChatSelf is returned when starting a chat with the current user.
	ErrCannotChatSelf = fmt.Errorf("%w: cannot start a chat with yourself", core.ErrBadRequest)
	// ErrNoUsername is returned when starting a chat without a username.
	ErrNoUsername = fmt.Errorf("%w: username is required", core.ErrBadRequest)
)

// Backend is the subset of the REST API the directory needs.
type Backend interface {
	ListRooms(ctx context.Context) ([]core.RoomSummary, error)
	RoomMessages(ctx context.Context, roomID string) ([]core.Message, error)
	UserByUsername(ctx context.Context, username string) (core.User, error)
	ProfileImage(ctx context.Context, userID string) (string, error)
	CreateRoom(ctx context.Context, username string) (core.RoomSummary, error)
	SearchProfiles(ctx context.Context, query string) ([]core.User, error)
}

// Service keeps the room directory of the signed-in user.
type Service struct {
	backend Backend
	marker  store.RoomMarker
	log     *zerolog.Logger

	mu    sync.RWMutex
	rooms []core.RoomSummary
}

// New creates a room directory.
func New(backend Backend, marker store.RoomMarker, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{backend: backend, marker: marker, log: logger}
}

// Refresh rebuilds the directory from scratch: every room gets its last message and
// the other participant resolved. Lookup failures for a single room only degrade
// that entry.
func (s *Service) Refresh(ctx context.Context, self core.User) ([]core.RoomSummary, error) {
	listed, err := s.backend.ListRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh rooms: %w", err)
	}

	summaries := make([]core.RoomSummary, len(listed))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for i, room := range listed {
		i, room := i, room
		g.Go(func() error {
			summary, err := s.enrich(gctx, room, self)
			if err != nil {
				return err
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("refresh rooms: %w", err)
	}

	s.mu.Lock()
	s.rooms = summaries
	s.mu.Unlock()

	s.log.Debug().Int("rooms", len(summaries)).Msg("room directory refreshed")
	return summaries, nil
}

// enrich fills LastMessage and OtherUser. Only auth failures are returned.
func (s *Service) enrich(ctx context.Context, room core.RoomSummary, self core.User) (core.RoomSummary, error) {
	if room.LastMessage == nil {
		msgs, err := s.backend.RoomMessages(ctx, room.ID)
		switch {
		case errors.Is(err, core.ErrAuthRequired):
			return room, err
		case err != nil:
			s.log.Warn().Err(err).Str("room_id", room.ID).Msg("load last message failed")
		case len(msgs) > 0:
			last := msgs[len(msgs)-1]
			room.LastMessage = &last
		}
	}

	other := core.OtherParticipant(room.Participants, self.Username)
	room.OtherUser = core.User{Username: other}
	if other == "" {
		return room, nil
	}

	user, err := s.backend.UserByUsername(ctx, other)
	if err != nil {
		if errors.Is(err, core.ErrAuthRequired) {
			return room, err
		}
		s.log.Warn().Err(err).Str("username", other).Msg("resolve participant failed")
		return room, nil
	}
	room.OtherUser.ID = user.ID

	img, err := s.backend.ProfileImage(ctx, user.ID)
	if err != nil {
		if errors.Is(err, core.ErrAuthRequired) {
			return room, err
		}
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("load profile failed")
		return room, nil
	}
	room.OtherUser.ProfileImage = img
	return room, nil
}

// Rooms returns the last refreshed directory.
func (s *Service) Rooms() []core.RoomSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.RoomSummary, len(s.rooms))
	copy(out, s.rooms)
	return out
}

// Find returns the room with id from the last refresh.
func (s *Service) Find(id string) (core.RoomSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rooms {
		if r.ID == id {
			return r, true
		}
	}
	return core.RoomSummary{}, false
}

// FindWith returns the room shared with username from the last refresh.
func (s *Service) FindWith(username string) (core.RoomSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rooms {
		for _, p := range r.Participants {
			if p == username {
				return r, true
			}
		}
	}
	return core.RoomSummary{}, false
}

// StartChat creates a room with username. If one already exists the directory is
// refreshed and the existing room is returned with existing set. A newly created
// room is remembered so the next chat view opens it.
func (s *Service) StartChat(ctx context.Context, self core.User, username string) (room core.RoomSummary, existing bool, err error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return core.RoomSummary{}, false, ErrNoUsername
	}
	if username == self.Username {
		return core.RoomSummary{}, false, ErrCannotChatSelf
	}

	created, err := s.backend.CreateRoom(ctx, username)
	if errors.Is(err, core.ErrConflict) {
		s.log.Info().Str("username", username).Msg("chat room already exists")
		if _, err := s.Refresh(ctx, self); err != nil {
			return core.RoomSummary{}, false, err
		}
		found, ok := s.FindWith(username)
		if !ok {
			return core.RoomSummary{}, false, fmt.Errorf("start chat with %s: %w: existing room not listed", username, core.ErrConflict)
		}
		return found, true, nil
	}
	if err != nil {
		return core.RoomSummary{}, false, fmt.Errorf("start chat with %s: %w", username, err)
	}

	if s.marker != nil {
		if err := s.marker.SetLastCreatedRoom(ctx, created.ID); err != nil {
			s.log.Warn().Err(err).Str("room_id", created.ID).Msg("remember created room failed")
		}
	}
	if _, err := s.Refresh(ctx, self); err != nil {
		s.log.Warn().Err(err).Msg("refresh after create failed")
	}
	if r, ok := s.Find(created.ID); ok {
		created = r
	}
	return created, false, nil
}

// TakePending returns the room created by the last StartChat, once.
func (s *Service) TakePending(ctx context.Context) (string, error) {
	if s.marker == nil {
		return "", nil
	}
	return s.marker.TakeLastCreatedRoom(ctx)
}

// SettlePending forgets the pending room when roomID is being opened directly.
// A marker for another room is kept for the next run.
func (s *Service) SettlePending(ctx context.Context, roomID string) error {
	if s.marker == nil || roomID == "" {
		return nil
	}
	pending, err := s.marker.TakeLastCreatedRoom(ctx)
	if err != nil || pending == "" || pending == roomID {
		return err
	}
	return s.marker.SetLastCreatedRoom(ctx, pending)
}

// SearchProfiles finds other users to chat with.
func (s *Service) SearchProfiles(ctx context.Context, self core.User, query string) ([]core.User, error) {
	found, err := s.backend.SearchProfiles(ctx, query)
	if err != nil {
		return nil, err
	}
	out := found[:0]
	for _, u := range found {
		if self.Same(u) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}
