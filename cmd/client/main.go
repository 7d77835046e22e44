package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/marketchat/internal/app"
	"github.com/vovakirdan/marketchat/internal/config"
	applog "github.com/vovakirdan/marketchat/internal/log"
)

type globalFlags struct {
	configPath string
	overrides  config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:           "marketchat",
		Short:         "Terminal client for marketplace chats and notifications",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to config file")
	pf.StringVar(&flags.overrides.APIBaseURL, "api-url", "", "REST API base url")
	pf.StringVar(&flags.overrides.WSBaseURL, "ws-url", "", "WebSocket base url")
	pf.StringVar(&flags.overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&flags.overrides.StatePath, "state", "", "path to the local state database")
	pf.StringVar(&flags.overrides.MetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	run := func(fn func(ctx context.Context, a *app.App, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app.App) error {
				return fn(ctx, a, args)
			})
		}
	}

	var token string
	login := &cobra.Command{
		Use:   "login",
		Short: "Store an access token and verify it",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app.App, _ []string) error {
			if token == "" {
				token = os.Getenv("MARKETCHAT_TOKEN")
			}
			return a.Login(ctx, token)
		}),
	}
	login.Flags().StringVar(&token, "token", "", "access token (defaults to $MARKETCHAT_TOKEN)")

	root.AddCommand(
		login,
		&cobra.Command{
			Use:   "logout",
			Short: "Forget the stored token",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, a *app.App, _ []string) error {
				return a.Logout(ctx)
			}),
		},
		&cobra.Command{
			Use:   "whoami",
			Short: "Show the signed-in account",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, a *app.App, _ []string) error {
				return a.Whoami(ctx)
			}),
		},
		&cobra.Command{
			Use:   "rooms",
			Short: "List chat rooms",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, a *app.App, _ []string) error {
				return a.Rooms(ctx)
			}),
		},
		&cobra.Command{
			Use:   "chat [room]",
			Short: "Open a chat room interactively",
			Args:  cobra.MaximumNArgs(1),
			RunE: run(func(ctx context.Context, a *app.App, args []string) error {
				roomID := ""
				if len(args) == 1 {
					roomID = args[0]
				}
				return a.Chat(ctx, roomID)
			}),
		},
		&cobra.Command{
			Use:   "start <username>",
			Short: "Start a chat with a user and open it",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(ctx context.Context, a *app.App, args []string) error {
				roomID, err := a.StartChat(ctx, args[0])
				if err != nil {
					return err
				}
				return a.Chat(ctx, roomID)
			}),
		},
		&cobra.Command{
			Use:   "search <query>",
			Short: "Search user profiles",
			Args:  cobra.MinimumNArgs(1),
			RunE: run(func(ctx context.Context, a *app.App, args []string) error {
				return a.SearchProfiles(ctx, strings.Join(args, " "))
			}),
		},
		newNotificationsCmd(run),
	)
	return root
}

type runFunc func(fn func(ctx context.Context, a *app.App, args []string) error) func(*cobra.Command, []string) error

func newNotificationsCmd(run runFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notif"},
		Short:   "Manage notifications",
		Args:    cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app.App, _ []string) error {
			return a.ListNotifications(ctx)
		}),
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List notifications",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, a *app.App, _ []string) error {
				return a.ListNotifications(ctx)
			}),
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete one notification",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(ctx context.Context, a *app.App, args []string) error {
				return a.DeleteNotification(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Delete all notifications",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, a *app.App, _ []string) error {
				return a.ClearNotifications(ctx)
			}),
		},
		&cobra.Command{
			Use:   "watch",
			Short: "Print notifications as they arrive",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, a *app.App, _ []string) error {
				return a.WatchNotifications(ctx)
			}),
		},
	)
	return cmd
}

// withApp loads configuration, builds the app, runs fn and reports its error.
func withApp(ctx context.Context, flags globalFlags, fn func(context.Context, *app.App) error) error {
	bootLog := applog.New("info")
	cfg, path, err := config.Load(bootLog, flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marketchat: %v\n", err)
		return err
	}
	cfg.UpdateFrom(flags.overrides)

	logger := applog.New(cfg.LogLevel)
	logger.Debug().Str("config", path).Str("api", cfg.APIBaseURL).Msg("configuration loaded")

	a, err := app.New(cfg, logger, app.Options{In: os.Stdin, Out: os.Stdout})
	if err != nil {
		fmt.Fprintf(os.Stderr, "marketchat: %v\n", err)
		return err
	}
	defer a.Close()
	a.ServeMetrics(ctx)

	if err := fn(ctx, a); err != nil {
		a.Error(err)
		return err
	}
	return nil
}
