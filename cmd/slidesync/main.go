// Command slidesync is a terminal participant for a slide sync server, and
// can run the companion relay for local development.
//
// Configuration comes from an optional YAML file (--config), SLIDESYNC_*
// environment variables (a .env file in the working directory is loaded
// first) and flags, in increasing order of precedence.
//
// Usage:
//
//	slidesync --server http://localhost:3030 watch
//	echo '{"page":3}' | slidesync --server http://localhost:3030 --session $TOKEN push
//	slidesync --server http://localhost:3030 vote quiz-1 b
//	slidesync relay --addr :3030 --presenter-token $TOKEN
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	slidesync "github.com/slidesync/slidesync-go"
)

const version = "0.3.0"

func main() {
	// A missing .env file is normal.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("slidesync: error loading .env file", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "slidesync:", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "slidesync",
		Usage:   "follow and drive a synchronized slide presentation",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML config file",
				Sources: cli.EnvVars("SLIDESYNC_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "server",
				Usage: "sync server page or WebSocket URL (default $SLIDESYNC_SERVER_URL)",
			},
			&cli.StringFlag{
				Name:  "role",
				Usage: "presenter or viewer (default $SLIDESYNC_ROLE)",
			},
			&cli.BoolFlag{
				Name:  "role-query",
				Usage: "declare the role with ?role= for servers that expect it",
			},
			&cli.StringFlag{
				Name:  "session",
				Usage: "presenter session token sent as the slide_auth cookie (default $SLIDESYNC_SESSION)",
			},
			&cli.StringFlag{
				Name:  "visitor",
				Usage: "visitor ID used in polls (default: from config, or random)",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "enable debug logging",
				Sources: cli.EnvVars("SLIDESYNC_DEBUG"),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			level := slog.LevelInfo
			if cmd.Bool("debug") {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return ctx, nil
		},
		Commands: []*cli.Command{
			watchCommand(),
			pushCommand(),
			voteCommand(),
			relayCommand(),
		},
	}
}

// clientConfig builds the client configuration from the config file and
// the global flags. Empty fields fall back to the environment in NewClient.
func clientConfig(cmd *cli.Command) (slidesync.Config, error) {
	var cfg slidesync.Config
	if path := cmd.String("config"); path != "" {
		loaded, err := slidesync.LoadConfig(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if v := cmd.String("server"); v != "" {
		cfg.ServerURL = v
	}
	if v := cmd.String("role"); v != "" {
		cfg.Role = slidesync.Role(v)
	}
	if cmd.IsSet("role-query") {
		cfg.RoleQuery = cmd.Bool("role-query")
	}
	if v := cmd.String("session"); v != "" {
		cfg.SessionToken = v
	}
	if v := cmd.String("visitor"); v != "" {
		cfg.VisitorID = v
	}
	cfg.Logger = slog.Default()
	return cfg, nil
}

// connect creates a client from the command's configuration, connects it
// and waits for the first connection.
func connect(ctx context.Context, cmd *cli.Command, onUpdate slidesync.UpdateFunc, setup func(*slidesync.Client)) (*slidesync.Client, error) {
	cfg, err := clientConfig(cmd)
	if err != nil {
		return nil, err
	}
	client, err := slidesync.NewClient(cfg, slidesync.LogErrors(slog.Default()))
	if err != nil {
		return nil, err
	}

	client.OnStatusChange(func(s slidesync.Status) {
		slog.Info("connection status", "status", s, "url", client.Endpoint())
	})
	if setup != nil {
		setup(client)
	}

	if err := client.Connect(ctx, onUpdate); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.WaitConnected(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("waiting for connection: %w", err)
	}
	return client, nil
}
