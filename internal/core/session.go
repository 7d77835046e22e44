package core

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

	"github.com/vovakirdan/marketchat/internal/observability"
	"github.com/vovakirdan/marketchat/internal/proto"
)

const (
	channelChat  = "chat"
	writeTimeout = 10 * time.Second

	defaultHeartbeatInterval = 30 * time.Second
	defaultReconnectDelay    = 3 * time.Second
)

// TokenSource yields the bearer token of the signed-in user.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// MessagePoster sends a message through the REST API and returns the server's copy.
type MessagePoster interface {
	PostMessage(ctx context.Context, roomID, content string, image *Image) (Message, error)
}

// HistoryLoader fetches the stored messages of a room.
type HistoryLoader interface {
	RoomMessages(ctx context.Context, roomID string) ([]Message, error)
}

// RoomLeaver removes the user from a room on the backend.
type RoomLeaver interface {
	LeaveRoom(ctx context.Context, roomID string) error
}

// SessionConfig wires a Session. Dialer and Tokens are required.
type SessionConfig struct {
	WSBaseURL         string
	HeartbeatInterval time.Duration
	PingInterval      time.Duration
	ReconnectDelay    time.Duration
	MaxImageBytes     int64

	Dialer   Dialer
	Tokens   TokenSource
	Poster   MessagePoster
	History  HistoryLoader
	Leaver   RoomLeaver
	Observer Observer
	Clock    clock.Clock
	Logger   *zerolog.Logger
}

// Handle identifies one successful open of a room connection.
type Handle struct {
	RoomID     string
	Generation uint64
}

// Session owns the single real-time connection to the chat room the user is looking at.
//
// Every asynchronous continuation (read loop exit, reconnect timer, heartbeat tick)
// captures the connection generation and target room it was started for, and does
// nothing if either changed by the time it runs.
type Session struct {
	cfg      SessionConfig
	log      *zerolog.Logger
	clock    clock.Clock
	observer Observer

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	self           User
	target         string
	state          State
	gen            uint64
	conn           Conn
	readCancel     context.CancelFunc
	stopBeat       chan struct{}
	reconnectTimer *clock.Timer
	visible        bool
	closed         bool
	transcript     *Transcript
	unacked        []int64
	pending        []Event
}

// NewSession builds an idle session.
func NewSession(cfg SessionConfig) *Session {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = cfg.HeartbeatInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Logger == nil {
		nop := zerolog.Nop()
		cfg.Logger = &nop
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:        cfg,
		log:        cfg.Logger,
		clock:      cfg.Clock,
		observer:   cfg.Observer,
		ctx:        ctx,
		cancel:     cancel,
		visible:    true,
		transcript: NewTranscript(),
	}
}

// SetSelf records the signed-in user; it decides which messages are "own".
func (s *Session) SetSelf(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.self = u
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RoomID returns the target room, or "" when no room is open.
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Transcript returns a snapshot of the open room's messages.
func (s *Session) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Messages()
}

// Open makes roomID the session's room: it closes the previous connection, loads the
// room history and dials the room channel. It fails without touching the network when
// roomID is empty or there is no token.
//
// A failed dial is returned but still leaves a reconnect scheduled.
func (s *Session) Open(ctx context.Context, roomID string) (Handle, error) {
	if roomID == "" {
		return Handle{}, ErrNoRoomID
	}
	token, err := s.token(ctx)
	if err != nil {
		return Handle{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.unlock()
		return Handle{}, ErrClosed
	}
	s.target = roomID
	closePrev := s.teardownLocked("switching room")
	s.transcript.Reset()
	s.unacked = nil
	gen := s.gen
	s.setStateLocked(StateConnecting)
	s.unlock()
	closePrev()

	if err := s.loadHistory(ctx, roomID, gen); err != nil {
		return Handle{}, err
	}

	return s.connect(ctx, roomID, gen, token)
}

// Send posts a message to the open room. Content and image may not both be empty.
// The message is added to the transcript only once the server has confirmed it,
// using the server's id and timestamp. Failures are not retried.
func (s *Session) Send(ctx context.Context, content string, image *Image) (Message, error) {
	s.mu.Lock()
	open := s.state == StateOpen && s.conn != nil
	roomID := s.target
	s.mu.Unlock()

	if !open || roomID == "" {
		return Message{}, ErrNotConnected
	}
	if content == "" && image == nil {
		return Message{}, ErrEmptyMessage
	}
	if image != nil {
		if err := image.Validate(s.cfg.MaxImageBytes); err != nil {
			return Message{}, err
		}
	}
	if s.cfg.Poster == nil {
		return Message{}, ErrNotConnected
	}

	msg, err := s.cfg.Poster.PostMessage(ctx, roomID, content, image)
	if err != nil {
		observability.IncSendFailure()
		s.log.Error().Err(err).Str("room_id", roomID).Msg("send message failed")
		return Message{}, fmt.Errorf("send message: %w", err)
	}

	s.mu.Lock()
	if s.target == roomID && s.transcript.Append(msg) {
		s.pending = append(s.pending, Event{Kind: EventMessageAppended, RoomID: roomID, Message: msg, Own: true})
	}
	s.unlock()

	return msg, nil
}

// HandleFrame processes one raw frame as if it arrived on the current connection.
func (s *Session) HandleFrame(ctx context.Context, raw []byte) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	s.handleFrame(ctx, gen, raw)
}

// SetVisible records whether the user can see the chat. Becoming visible while the
// connection is not open reconnects right away, skipping any pending backoff; becoming
// visible with an open connection acknowledges messages that arrived while hidden.
func (s *Session) SetVisible(ctx context.Context, visible bool) error {
	s.mu.Lock()
	was := s.visible
	s.visible = visible
	if s.closed || !visible || was || s.target == "" {
		s.unlock()
		return nil
	}
	roomID := s.target

	switch s.state {
	case StateOpen:
		conn, ids := s.conn, s.unacked
		s.unacked = nil
		s.unlock()
		for _, id := range ids {
			_ = s.write(ctx, conn, proto.ReadReceipt(roomID, id))
		}
		return nil
	case StateConnecting:
		// the in-flight dial flushes receipts when it opens
		s.unlock()
		return nil
	}

	s.stopReconnectLocked()
	gen := s.gen
	s.setStateLocked(StateConnecting)
	s.unlock()

	_, err := s.redial(ctx, roomID, gen, "visibility")
	return err
}

// Leave closes the room connection with a normal closure, which never reconnects,
// and then tells the backend the user left the room.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	roomID := s.target
	if roomID == "" {
		s.unlock()
		return ErrNoRoomID
	}
	s.target = ""
	closeConn := s.teardownLocked("leaving room")
	s.transcript.Reset()
	s.unacked = nil
	s.setStateLocked(StateIdle)
	s.pending = append(s.pending, Event{Kind: EventLeft, RoomID: roomID})
	s.unlock()
	closeConn()

	s.log.Info().Str("room_id", roomID).Msg("left chat room")

	if s.cfg.Leaver == nil {
		return nil
	}
	if err := s.cfg.Leaver.LeaveRoom(ctx, roomID); err != nil {
		return fmt.Errorf("leave room %s: %w", roomID, err)
	}
	return nil
}

// Close tears the session down: both timers stop and the connection closes normally.
// The session cannot be reopened.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.unlock()
		return
	}
	s.closed = true
	s.target = ""
	closeConn := s.teardownLocked("session closed")
	s.setStateLocked(StateIdle)
	s.unlock()
	closeConn()
	s.cancel()
}

func (s *Session) token(ctx context.Context) (string, error) {
	if s.cfg.Tokens == nil {
		return "", ErrNoToken
	}
	token, err := s.cfg.Tokens.Token(ctx)
	if err != nil {
		if errors.Is(err, ErrAuthRequired) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("load token: %w", err)
	}
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

func (s *Session) roomURL(roomID, token string) string {
	base := strings.TrimRight(s.cfg.WSBaseURL, "/")
	return base + "/ws/chat/" + url.PathEscape(roomID) + "/?token=" + url.QueryEscape(token)
}

func (s *Session) loadHistory(ctx context.Context, roomID string, gen uint64) error {
	if s.cfg.History == nil {
		return nil
	}
	msgs, err := s.cfg.History.RoomMessages(ctx, roomID)

	s.mu.Lock()
	defer s.unlock()
	if gen != s.gen || s.target != roomID {
		return ErrSuperseded
	}
	if err != nil {
		if errors.Is(err, ErrAuthRequired) {
			s.target = ""
			s.setStateLocked(StateIdle)
			return err
		}
		// the live channel is still worth opening without history
		s.log.Warn().Err(err).Str("room_id", roomID).Msg("load message history failed")
		s.noticeLocked(roomID, fmt.Errorf("load history: %w", err))
		return nil
	}
	for _, m := range msgs {
		s.transcript.Append(m)
	}
	s.pending = append(s.pending, Event{Kind: EventHistoryLoaded, RoomID: roomID, Messages: s.transcript.Messages()})
	return nil
}

// catchUp appends history messages the session missed while disconnected.
func (s *Session) catchUp(ctx context.Context, roomID string, gen uint64) {
	if s.cfg.History == nil {
		return
	}
	msgs, err := s.cfg.History.RoomMessages(ctx, roomID)
	if err != nil {
		s.log.Warn().Err(err).Str("room_id", roomID).Msg("catch up after reconnect failed")
		return
	}

	s.mu.Lock()
	defer s.unlock()
	if gen != s.gen || s.target != roomID {
		return
	}
	for _, m := range msgs {
		if s.transcript.Append(m) {
			s.pending = append(s.pending, Event{Kind: EventMessageAppended, RoomID: roomID, Message: m, Own: s.self.Same(m.Sender)})
		}
	}
}

func (s *Session) connect(ctx context.Context, roomID string, gen uint64, token string) (Handle, error) {
	s.log.Debug().Str("room_id", roomID).Msg("dialing chat room")
	conn, err := s.cfg.Dialer.Dial(ctx, s.roomURL(roomID, token))

	s.mu.Lock()
	if s.closed || gen != s.gen || s.target != roomID {
		s.unlock()
		if conn != nil {
			_ = conn.Close(StatusNormalClosure, "superseded")
		}
		return Handle{}, ErrSuperseded
	}
	if err != nil {
		if ctx.Err() != nil {
			s.setStateLocked(StateIdle)
			s.unlock()
			return Handle{}, fmt.Errorf("dial chat room %s: %w", roomID, ctx.Err())
		}
		s.log.Warn().Err(err).Str("room_id", roomID).Msg("chat dial failed")
		s.noticeLocked(roomID, fmt.Errorf("%w: %v", ErrNetwork, err))
		s.scheduleReconnectLocked(roomID, gen)
		s.unlock()
		return Handle{}, fmt.Errorf("dial chat room %s: %w: %w", roomID, ErrNetwork, err)
	}

	s.conn = conn
	readCtx, cancel := context.WithCancel(s.ctx)
	s.readCancel = cancel
	stop := make(chan struct{})
	s.stopBeat = stop
	beat := s.clock.Ticker(s.cfg.HeartbeatInterval)
	ping := s.clock.Ticker(s.cfg.PingInterval)
	s.setStateLocked(StateOpen)
	var receipts []int64
	if s.visible {
		receipts, s.unacked = s.unacked, nil
	}
	s.unlock()

	observability.SetConnected(channelChat, true)
	s.log.Info().Str("room_id", roomID).Uint64("generation", gen).Msg("chat connected")

	go s.heartbeatLoop(gen, beat, ping, stop)
	go s.readLoop(readCtx, conn, roomID, gen)

	_ = s.write(ctx, conn, proto.Join(roomID))
	for _, id := range receipts {
		_ = s.write(ctx, conn, proto.ReadReceipt(roomID, id))
	}

	return Handle{RoomID: roomID, Generation: gen}, nil
}

func (s *Session) redial(ctx context.Context, roomID string, gen uint64, trigger string) (Handle, error) {
	observability.IncReconnect(channelChat, trigger)
	s.log.Info().Str("room_id", roomID).Str("trigger", trigger).Msg("reconnecting to chat room")

	token, err := s.token(ctx)
	if err != nil {
		s.mu.Lock()
		if gen == s.gen && s.target == roomID {
			s.setStateLocked(StateIdle)
			s.noticeLocked(roomID, err)
		}
		s.unlock()
		return Handle{}, err
	}

	h, err := s.connect(ctx, roomID, gen, token)
	if err != nil {
		return h, err
	}
	s.catchUp(ctx, roomID, gen)
	return h, nil
}

func (s *Session) fireReconnect(roomID string, gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.gen || s.target != roomID || s.state != StateReconnectPending {
		s.log.Debug().Str("room_id", roomID).Msg("discarding stale reconnect")
		s.unlock()
		return
	}
	s.reconnectTimer = nil
	s.setStateLocked(StateConnecting)
	s.unlock()

	_, _ = s.redial(s.ctx, roomID, gen, "backoff")
}

func (s *Session) readLoop(ctx context.Context, conn Conn, roomID string, gen uint64) {
	for {
		raw, err := conn.ReadFrame(ctx)
		if err != nil {
			s.handleClosed(roomID, gen, CloseCode(err), err)
			return
		}
		s.handleFrame(ctx, gen, raw)
	}
}

func (s *Session) handleClosed(roomID string, gen uint64, code int, cause error) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		// torn down on purpose; nothing to recover
		s.unlock()
		return
	}
	if s.stopBeat != nil {
		close(s.stopBeat)
		s.stopBeat = nil
	}
	if s.readCancel != nil {
		s.readCancel()
		s.readCancel = nil
	}
	s.conn = nil
	observability.SetConnected(channelChat, false)

	if code == StatusNormalClosure || s.target != roomID {
		s.log.Info().Str("room_id", roomID).Int("code", code).Msg("chat connection closed")
		s.setStateLocked(StateIdle)
		s.unlock()
		return
	}

	s.log.Warn().Err(cause).Str("room_id", roomID).Int("code", code).Msg("chat connection lost")
	s.noticeLocked(roomID, fmt.Errorf("%w: connection lost (status %d)", ErrNetwork, code))
	s.scheduleReconnectLocked(roomID, gen)
	s.unlock()
}

func (s *Session) handleFrame(ctx context.Context, gen uint64, raw []byte) {
	frame, err := proto.Decode(raw)
	if err != nil {
		observability.IncFrame(channelChat, "in", "malformed")
		s.log.Warn().Err(err).Bytes("frame", raw).Msg("ignoring malformed frame")
		return
	}
	observability.IncFrame(channelChat, "in", frame.Kind.String())

	switch frame.Kind {
	case proto.FrameConnectionEstablished:
		s.log.Debug().Str("info", frame.Info).Msg("connection established")
		s.mu.Lock()
		if gen == s.gen {
			s.pending = append(s.pending, Event{Kind: EventConnectionInfo, RoomID: s.target, Text: frame.Info})
		}
		s.unlock()
	case proto.FrameMessageReceived:
		s.receive(ctx, gen, MessageFromWire(*frame.Message))
	case proto.FrameReadReceipt:
		s.markRead(gen, frame.MessageID)
	default:
		s.log.Debug().Bytes("frame", raw).Msg("unhandled frame")
	}
}

func (s *Session) receive(ctx context.Context, gen uint64, msg Message) {
	s.mu.Lock()
	if gen != s.gen {
		s.unlock()
		return
	}
	if !s.transcript.Append(msg) {
		s.log.Debug().Int64("message_id", msg.ID).Msg("message already in transcript")
		s.unlock()
		return
	}
	roomID := s.target
	own := s.self.Same(msg.Sender)
	s.pending = append(s.pending, Event{Kind: EventMessageAppended, RoomID: roomID, Message: msg, Own: own})

	var conn Conn
	if !own {
		if s.visible && s.state == StateOpen && s.conn != nil {
			conn = s.conn
		} else {
			s.unacked = append(s.unacked, msg.ID)
		}
	}
	s.unlock()

	if conn != nil {
		_ = s.write(ctx, conn, proto.ReadReceipt(roomID, msg.ID))
	}
}

func (s *Session) markRead(gen uint64, id int64) {
	if id == 0 {
		return
	}
	s.mu.Lock()
	defer s.unlock()
	if gen != s.gen {
		return
	}
	if s.transcript.MarkRead(id) {
		s.pending = append(s.pending, Event{Kind: EventMessageRead, RoomID: s.target, MessageID: id})
	}
}

func (s *Session) heartbeatLoop(gen uint64, beat, ping *clock.Ticker, stop <-chan struct{}) {
	defer beat.Stop()
	defer ping.Stop()
	for {
		select {
		case <-stop:
			return
		case <-beat.C:
			s.keepalive(gen, proto.Heartbeat())
		case <-ping.C:
			s.keepalive(gen, proto.Ping())
		}
	}
}

// keepalive is a no-op unless the connection it was started for is still open.
func (s *Session) keepalive(gen uint64, frame proto.Outbound) {
	s.mu.Lock()
	if gen != s.gen || s.state != StateOpen || s.conn == nil {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.mu.Unlock()

	_ = s.write(s.ctx, conn, frame)
}

func (s *Session) write(ctx context.Context, conn Conn, frame proto.Outbound) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.WriteFrame(wctx, frame); err != nil {
		s.log.Warn().Err(err).Str("type", frame.Type).Msg("write frame failed")
		return err
	}
	observability.IncFrame(channelChat, "out", frame.Type)
	return nil
}

// teardownLocked invalidates the current generation, stops both timers and detaches
// the connection. The returned func closes the detached connection and must be called
// after the lock is released.
func (s *Session) teardownLocked(reason string) func() {
	s.gen++
	s.stopReconnectLocked()
	if s.stopBeat != nil {
		close(s.stopBeat)
		s.stopBeat = nil
	}
	conn, cancel := s.conn, s.readCancel
	s.conn, s.readCancel = nil, nil
	if conn == nil {
		if cancel != nil {
			cancel()
		}
		return func() {}
	}
	s.setStateLocked(StateClosing)
	observability.SetConnected(channelChat, false)
	return func() {
		if err := conn.Close(StatusNormalClosure, reason); err != nil {
			s.log.Debug().Err(err).Msg("close chat connection")
		}
		if cancel != nil {
			cancel()
		}
	}
}

func (s *Session) scheduleReconnectLocked(roomID string, gen uint64) {
	s.stopReconnectLocked()
	s.setStateLocked(StateReconnectPending)
	s.log.Info().Str("room_id", roomID).Dur("delay", s.cfg.ReconnectDelay).Msg("reconnect scheduled")
	s.reconnectTimer = s.clock.AfterFunc(s.cfg.ReconnectDelay, func() {
		s.fireReconnect(roomID, gen)
	})
}

func (s *Session) stopReconnectLocked() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}

func (s *Session) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.state = st
	s.pending = append(s.pending, Event{Kind: EventStateChanged, RoomID: s.target, State: st})
}

func (s *Session) noticeLocked(roomID string, err error) {
	s.pending = append(s.pending, Event{Kind: EventNotice, RoomID: roomID, Err: err, Text: err.Error()})
}

// unlock releases the mutex and then delivers the events queued while it was held.
func (s *Session) unlock() {
	events := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, ev := range events {
		s.observer.OnEvent(ev)
	}
}
