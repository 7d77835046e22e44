package rooms

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/marketchat/internal/core"
)

type backendMock struct {
	mock.Mock
}

func (m *backendMock) ListRooms(ctx context.Context) ([]core.RoomSummary, error) {
	args := m.Called(ctx)
	return args.Get(0).([]core.RoomSummary), args.Error(1)
}

func (m *backendMock) RoomMessages(ctx context.Context, roomID string) ([]core.Message, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).([]core.Message), args.Error(1)
}

func (m *backendMock) UserByUsername(ctx context.Context, username string) (core.User, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(core.User), args.Error(1)
}

func (m *backendMock) ProfileImage(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *backendMock) CreateRoom(ctx context.Context, username string) (core.RoomSummary, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(core.RoomSummary), args.Error(1)
}

func (m *backendMock) SearchProfiles(ctx context.Context, query string) ([]core.User, error) {
	args := m.Called(ctx, query)
	return args.Get(0).([]core.User), args.Error(1)
}

type memMarker struct {
	mu     sync.Mutex
	roomID string
}

func (m *memMarker) SetLastCreatedRoom(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roomID = roomID
	return nil
}

func (m *memMarker) TakeLastCreatedRoom(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.roomID
	m.roomID = ""
	return id, nil
}

var alice = core.User{ID: "1", Username: "alice"}

func TestRefreshResolvesParticipants(t *testing.T) {
	backend := new(backendMock)
	svc := New(backend, nil, nil)

	backend.On("ListRooms", mock.Anything).Return([]core.RoomSummary{
		{ID: "42", Participants: []string{"alice", "bob"}},
		{ID: "43", Participants: []string{"carol", "alice"}, LastMessage: &core.Message{ID: 5, Content: "cached"}},
	}, nil).Once()
	backend.On("RoomMessages", mock.Anything, "42").Return([]core.Message{{ID: 1, Content: "old"}, {ID: 2, Image: "/m.png"}}, nil).Once()
	backend.On("UserByUsername", mock.Anything, "bob").Return(core.User{ID: "u-bob", Username: "bob"}, nil).Once()
	backend.On("ProfileImage", mock.Anything, "u-bob").Return("/media/bob.png", nil).Once()
	backend.On("UserByUsername", mock.Anything, "carol").Return(core.User{}, errors.New("not found")).Once()

	rooms, err := svc.Refresh(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, rooms, 2)

	assert.Equal(t, "42", rooms[0].ID)
	assert.Equal(t, core.User{ID: "u-bob", Username: "bob", ProfileImage: "/media/bob.png"}, rooms[0].OtherUser)
	assert.Equal(t, "📷 Image", rooms[0].Preview())

	assert.Equal(t, core.User{Username: "carol"}, rooms[1].OtherUser, "lookup failure degrades to the username")
	assert.Equal(t, "cached", rooms[1].Preview())

	backend.AssertExpectations(t)
	assert.Len(t, svc.Rooms(), 2)
}

func TestRefreshRebuildsFromScratch(t *testing.T) {
	backend := new(backendMock)
	svc := New(backend, nil, nil)

	backend.On("ListRooms", mock.Anything).Return([]core.RoomSummary{{ID: "1", Participants: []string{"alice"}}}, nil).Once()
	backend.On("RoomMessages", mock.Anything, "1").Return([]core.Message{}, nil)
	_, err := svc.Refresh(context.Background(), alice)
	require.NoError(t, err)

	backend.On("ListRooms", mock.Anything).Return([]core.RoomSummary{}, nil).Once()
	rooms, err := svc.Refresh(context.Background(), alice)
	require.NoError(t, err)
	assert.Empty(t, rooms)
	_, ok := svc.Find("1")
	assert.False(t, ok)
}

func TestRefreshFailsOnAuth(t *testing.T) {
	backend := new(backendMock)
	svc := New(backend, nil, nil)

	backend.On("ListRooms", mock.Anything).Return([]core.RoomSummary{{ID: "1", Participants: []string{"alice", "bob"}}}, nil).Once()
	backend.On("RoomMessages", mock.Anything, "1").Return([]core.Message(nil), core.ErrAuthRequired).Once()

	_, err := svc.Refresh(context.Background(), alice)
	require.ErrorIs(t, err, core.ErrAuthRequired)
}

func TestStartChatCreatesAndRemembers(t *testing.T) {
	backend := new(backendMock)
	marker := &memMarker{}
	svc := New(backend, marker, nil)

	backend.On("CreateRoom", mock.Anything, "bob").Return(core.RoomSummary{ID: "77", Participants: []string{"alice", "bob"}}, nil).Once()
	backend.On("ListRooms", mock.Anything).Return([]core.RoomSummary{}, nil).Once()

	room, existing, err := svc.StartChat(context.Background(), alice, " bob ")
	require.NoError(t, err)
	assert.False(t, existing)
	assert.Equal(t, "77", room.ID)

	pending, err := svc.TakePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "77", pending)
	pending, _ = svc.TakePending(context.Background())
	assert.Empty(t, pending, "pending room is opened only once")
}

func TestSettlePendingConsumesOpenedRoom(t *testing.T) {
	ctx := context.Background()
	marker := &memMarker{roomID: "77"}
	svc := New(new(backendMock), marker, nil)

	require.NoError(t, svc.SettlePending(ctx, "12"))
	assert.Equal(t, "77", marker.roomID, "marker for another room survives")

	require.NoError(t, svc.SettlePending(ctx, "77"))
	pending, err := svc.TakePending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStartChatOpensExistingOnConflict(t *testing.T) {
	backend := new(backendMock)
	marker := &memMarker{}
	svc := New(backend, marker, nil)

	backend.On("CreateRoom", mock.Anything, "bob").Return(core.RoomSummary{}, core.ErrConflict).Once()
	backend.On("ListRooms", mock.Anything).Return([]core.RoomSummary{
		{ID: "42", Participants: []string{"alice", "bob"}, LastMessage: &core.Message{ID: 1}},
	}, nil).Once()
	backend.On("UserByUsername", mock.Anything, "bob").Return(core.User{ID: "u-bob", Username: "bob"}, nil).Once()
	backend.On("ProfileImage", mock.Anything, "u-bob").Return("", nil).Once()

	room, existing, err := svc.StartChat(context.Background(), alice, "bob")
	require.NoError(t, err)
	assert.True(t, existing)
	assert.Equal(t, "42", room.ID)

	pending, _ := svc.TakePending(context.Background())
	assert.Empty(t, pending)
}

func TestStartChatValidation(t *testing.T) {
	svc := New(new(backendMock), nil, nil)

	_, _, err := svc.StartChat(context.Background(), alice, "")
	require.ErrorIs(t, err, ErrNoUsername)

	_, _, err = svc.StartChat(context.Background(), alice, "alice")
	require.ErrorIs(t, err, ErrCannotChatSelf)
	assert.ErrorIs(t, err, core.ErrBadRequest)
}

func TestSearchProfilesSkipsSelf(t *testing.T) {
	backend := new(backendMock)
	svc := New(backend, nil, nil)
	backend.On("SearchProfiles", mock.Anything, "a").Return([]core.User{{ID: "1", Username: "alice"}, {ID: "3", Username: "anna"}}, nil).Once()

	users, err := svc.SearchProfiles(context.Background(), alice, "a")
	require.NoError(t, err)
	assert.Equal(t, []core.User{{ID: "3", Username: "anna"}}, users)
}
