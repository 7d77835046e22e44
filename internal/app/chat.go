package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vovakirdan/marketchat/internal/core"
)

type commandKind int

const (
	cmdSend commandKind = iota
	cmdImage
	cmdLeave
	cmdSearch
	cmdOpen
	cmdRooms
	cmdHide
	cmdShow
	cmdQuit
	cmdHelp
	cmdUnknown
)

// command is one parsed input line of the chat prompt.
type command struct {
	kind commandKind
	arg  string
	text string
}

const chatHelp = `lines are sent as messages; commands:
  /image <path> [caption]  send a picture
  /search <text>           search this room
  /open <room>             switch room
  /rooms                   list rooms
  /leave                   leave this room
  /hide, /show             pause or resume the live connection
  /quit                    exit`

// parseCommand splits an input line into a command. Lines not starting with "/"
// are messages.
func parseCommand(line string) command {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdSend, text: line}
	}
	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(name) {
	case "image", "img":
		path, caption, _ := strings.Cut(rest, " ")
		return command{kind: cmdImage, arg: path, text: strings.TrimSpace(caption)}
	case "leave":
		return command{kind: cmdLeave}
	case "search":
		return command{kind: cmdSearch, text: rest}
	case "open":
		return command{kind: cmdOpen, arg: rest}
	case "rooms":
		return command{kind: cmdRooms}
	case "hide":
		return command{kind: cmdHide}
	case "show":
		return command{kind: cmdShow}
	case "quit", "exit", "q":
		return command{kind: cmdQuit}
	case "help", "?":
		return command{kind: cmdHelp}
	default:
		return command{kind: cmdUnknown, arg: name}
	}
}

// loadImage reads an attachment from disk.
func loadImage(path string) (*core.Image, error) {
	if path == "" {
		return nil, fmt.Errorf("image path is required: %w", core.ErrEmptyImage)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return &core.Image{Name: filepath.Base(path), Data: data}, nil
}

// Chat opens roomID (or the room created by the last `start`) and runs the
// interactive prompt until /quit, /leave, end of input or ctx cancellation.
func (a *App) Chat(ctx context.Context, roomID string) error {
	self, err := a.auth.Whoami(ctx)
	if err != nil {
		return err
	}
	a.session.SetSelf(self)

	if roomID != "" {
		if err := a.rooms.SettlePending(ctx, roomID); err != nil {
			a.log.Warn().Err(err).Msg("settle last created room failed")
		}
	} else {
		pending, err := a.rooms.TakePending(ctx)
		if err != nil {
			a.log.Warn().Err(err).Msg("read last created room failed")
		}
		roomID = pending
	}
	if roomID == "" {
		if err := a.Rooms(ctx); err != nil {
			return err
		}
		a.console.Info("choose a room: marketchat chat <room>")
		return nil
	}

	if err := a.open(ctx, roomID); err != nil {
		return err
	}
	if err := a.center.Watch(ctx, self.ID); err != nil {
		if !isTransient(err) {
			return err
		}
		a.log.Warn().Err(err).Msg("notification channel unavailable, retrying")
	}
	a.console.Info("type /help for commands")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			done, err := a.dispatch(ctx, parseCommand(line))
			if err != nil {
				if errors.Is(err, core.ErrAuthRequired) {
					return err
				}
				a.console.Error(err)
			}
			if done {
				return nil
			}
		}
	}
}

func (a *App) open(ctx context.Context, roomID string) error {
	_, err := a.session.Open(ctx, roomID)
	if err == nil {
		return nil
	}
	// a failed dial keeps retrying in the background
	if isTransient(err) {
		a.log.Warn().Err(err).Str("room_id", roomID).Msg("room connection failed, retrying")
		return nil
	}
	return err
}

// dispatch runs one command; done reports that the prompt should exit.
func (a *App) dispatch(ctx context.Context, cmd command) (done bool, err error) {
	switch cmd.kind {
	case cmdSend:
		if cmd.text == "" {
			return false, nil
		}
		_, err := a.session.Send(ctx, cmd.text, nil)
		return false, err
	case cmdImage:
		img, err := loadImage(cmd.arg)
		if err != nil {
			return false, err
		}
		_, err = a.session.Send(ctx, cmd.text, img)
		return false, err
	case cmdLeave:
		return true, a.session.Leave(ctx)
	case cmdSearch:
		roomID := a.session.RoomID()
		if roomID == "" {
			return false, core.ErrNoRoomID
		}
		if cmd.text == "" {
			return false, fmt.Errorf("search: %w: query is required", core.ErrBadRequest)
		}
		found, err := a.api.SearchMessages(ctx, roomID, cmd.text)
		if err != nil {
			return false, err
		}
		a.console.SearchResults(cmd.text, found)
		return false, nil
	case cmdOpen:
		if cmd.arg == "" {
			return false, core.ErrNoRoomID
		}
		return false, a.open(ctx, cmd.arg)
	case cmdRooms:
		return false, a.Rooms(ctx)
	case cmdHide:
		a.setVisible(ctx, false)
		a.console.Info("hidden; messages are no longer marked read")
		return false, nil
	case cmdShow:
		a.setVisible(ctx, true)
		return false, nil
	case cmdQuit:
		return true, nil
	case cmdHelp:
		a.console.Info("%s", chatHelp)
		return false, nil
	default:
		a.console.Info("unknown command /%s, try /help", cmd.arg)
		return false, nil
	}
}

func (a *App) setVisible(ctx context.Context, visible bool) {
	if err := a.session.SetVisible(ctx, visible); err != nil {
		a.log.Warn().Err(err).Msg("chat reconnect on show failed")
	}
	if err := a.center.SetVisible(ctx, visible); err != nil {
		a.log.Warn().Err(err).Msg("notification reconnect on show failed")
	}
}
