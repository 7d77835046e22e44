package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat/internal/api"
	"github.com/vovakirdan/marketchat/internal/auth"
	"github.com/vovakirdan/marketchat/internal/config"
	"github.com/vovakirdan/marketchat/internal/core"
	"github.com/vovakirdan/marketchat/internal/observability"
	"github.com/vovakirdan/marketchat/internal/render"
	"github.com/vovakirdan/marketchat/internal/service/notifications"
	"github.com/vovakirdan/marketchat/internal/service/rooms"
	"github.com/vovakirdan/marketchat/internal/store/sqlite"
	"github.com/vovakirdan/marketchat/internal/transport/ws"
)

// App wires the client together: state store, REST client, chat session,
// room directory, notification center and console output.
type App struct {
	cfg     config.Config
	log     *zerolog.Logger
	store   *sqlite.SQLiteStore
	api     *api.Client
	auth    *auth.Service
	rooms   *rooms.Service
	center  *notifications.Center
	session *core.Session
	console *render.Console
	in      io.Reader
}

// Options overrides collaborators, mainly for tests.
type Options struct {
	In     io.Reader
	Out    io.Writer
	Clock  clock.Clock
	Dialer core.Dialer
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger, opts Options) (*App, error) {
	st, err := sqlite.New(cfg.StatePath, cfg.StateSecret)
	if err != nil {
		return nil, fmt.Errorf("init state store: %w", err)
	}
	logger.Debug().Str("state_path", cfg.StatePath).Msg("state store opened")

	client, err := api.New(api.Config{
		BaseURL:     cfg.APIBaseURL,
		Timeout:     cfg.RequestTimeout,
		Credentials: st,
		Logger:      logger,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init api client: %w", err)
	}

	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = ws.NewDialer(logger)
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	console := render.NewConsole(opts.Out, client.AbsoluteURL)
	authService := auth.NewService(st, client, logger)

	session := core.NewSession(core.SessionConfig{
		WSBaseURL:         cfg.WSBaseURL,
		HeartbeatInterval: cfg.HeartbeatInterval,
		PingInterval:      cfg.PingInterval,
		ReconnectDelay:    cfg.ReconnectDelay,
		MaxImageBytes:     cfg.MaxImageBytes,
		Dialer:            dialer,
		Tokens:            authService,
		Poster:            client,
		History:           client,
		Leaver:            client,
		Observer:          console,
		Clock:             clk,
		Logger:            logger,
	})

	center := notifications.NewCenter(client, notifications.Config{
		WSBaseURL:      cfg.WSBaseURL,
		ReconnectDelay: cfg.NotifyReconnectDelay,
		Dialer:         dialer,
		Clock:          clk,
		Logger:         logger,
		Listener: func(u notifications.Update) {
			if u.Pushed && u.Err == nil {
				console.Notifications(u.Items, true)
			}
		},
	})

	return &App{
		cfg:     cfg,
		log:     logger,
		store:   st,
		api:     client,
		auth:    authService,
		rooms:   rooms.New(client, st, logger),
		center:  center,
		session: session,
		console: console,
		in:      opts.In,
	}, nil
}

// ServeMetrics exposes /metrics until ctx ends when metrics_addr is configured.
func (a *App) ServeMetrics(ctx context.Context) {
	if a.cfg.MetricsAddr == "" {
		return
	}
	go func() {
		if err := observability.Serve(ctx, a.cfg.MetricsAddr, a.log); err != nil {
			a.log.Warn().Err(err).Msg("metrics server stopped")
		}
	}()
}

// Close stops the live channels and closes the state store.
func (a *App) Close() {
	a.session.Close()
	a.center.Stop()
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close state store")
	}
}

// Login stores token and prints the account it belongs to.
func (a *App) Login(ctx context.Context, token string) error {
	user, err := a.auth.Login(ctx, token)
	if err != nil {
		return err
	}
	a.console.Info("signed in as %s", user.Username)
	return nil
}

// Logout forgets the stored credentials.
func (a *App) Logout(ctx context.Context) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	a.console.Info("signed out")
	return nil
}

// Whoami prints the signed-in account.
func (a *App) Whoami(ctx context.Context) error {
	user, err := a.auth.Whoami(ctx)
	if err != nil {
		return err
	}
	a.console.User(user)
	return nil
}

// Rooms prints the room directory.
func (a *App) Rooms(ctx context.Context) error {
	self, err := a.auth.Whoami(ctx)
	if err != nil {
		return err
	}
	list, err := a.rooms.Refresh(ctx, self)
	if err != nil {
		return err
	}
	a.console.Rooms(list)
	return nil
}

// StartChat creates (or finds) the room with username and returns its id.
func (a *App) StartChat(ctx context.Context, username string) (string, error) {
	self, err := a.auth.Whoami(ctx)
	if err != nil {
		return "", err
	}
	room, existing, err := a.rooms.StartChat(ctx, self, username)
	if err != nil {
		return "", err
	}
	if existing {
		a.console.Info("you already have a room with %s: %s", username, room.ID)
	} else {
		a.console.Info("created room %s with %s", room.ID, username)
	}
	return room.ID, nil
}

// SearchProfiles prints users matching query.
func (a *App) SearchProfiles(ctx context.Context, query string) error {
	self, err := a.auth.Whoami(ctx)
	if err != nil {
		return err
	}
	users, err := a.rooms.SearchProfiles(ctx, self, query)
	if err != nil {
		return err
	}
	a.console.Users(users)
	return nil
}

// ListNotifications prints the notification list.
func (a *App) ListNotifications(ctx context.Context) error {
	items, err := a.center.Refresh(ctx)
	if err != nil {
		return err
	}
	a.console.Notifications(items, false)
	return nil
}

// DeleteNotification removes one notification.
func (a *App) DeleteNotification(ctx context.Context, id string) error {
	if err := a.center.Delete(ctx, id); err != nil {
		return err
	}
	a.console.Info("notification %s deleted", id)
	return nil
}

// ClearNotifications removes every notification.
func (a *App) ClearNotifications(ctx context.Context) error {
	if err := a.center.Clear(ctx); err != nil {
		return err
	}
	a.console.Info("all notifications deleted")
	return nil
}

// WatchNotifications streams notification pushes until ctx ends.
func (a *App) WatchNotifications(ctx context.Context) error {
	self, err := a.auth.Whoami(ctx)
	if err != nil {
		return err
	}
	if err := a.center.Watch(ctx, self.ID); err != nil && !isTransient(err) {
		return err
	}
	a.console.Notifications(a.center.Items(), false)
	<-ctx.Done()
	return nil
}

// isTransient reports failures the live channels retry on their own.
func isTransient(err error) bool {
	return errors.Is(err, core.ErrNetwork) && !errors.Is(err, core.ErrAuthRequired)
}

// Error prints err for the user.
func (a *App) Error(err error) {
	a.console.Error(err)
}
