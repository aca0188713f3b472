package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/slidesync/slidesync-go/internal/relay"
)

func relayCommand() *cli.Command {
	return &cli.Command{
		Name:  "relay",
		Usage: "run the companion sync server for local development",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "listen address",
				Value:   ":3030",
				Sources: cli.EnvVars("SLIDESYNC_RELAY_ADDR"),
			},
			&cli.StringSliceFlag{
				Name:    "presenter-token",
				Usage:   "session token that identifies a presenter (repeatable)",
				Sources: cli.EnvVars("SLIDESYNC_PRESENTER_TOKENS"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "PostgreSQL DSN for polls and sessions (default: in memory)",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.BoolFlag{
				Name:  "trust-role-query",
				Usage: "let clients declare themselves presenter with ?role=presenter",
			},
		},
		Action: runRelay,
	}
}

func runRelay(ctx context.Context, cmd *cli.Command) error {
	var (
		polls    relay.PollStore = relay.NewMemoryStore()
		sessions                 = relay.SessionChain{relay.NewStaticSessions(cmd.StringSlice("presenter-token")...)}
	)

	if dsn := cmd.String("database-url"); dsn != "" {
		pg, err := relay.OpenPostgres(ctx, dsn)
		if err != nil {
			return err
		}
		defer pg.Close()
		polls = pg
		sessions = append(sessions, pg)
		slog.Info("relay: using postgres store")
	}

	hub := relay.NewHub(polls,
		relay.WithSessions(sessions),
		relay.WithRoleQuery(cmd.Bool("trust-role-query")),
		relay.WithLogger(slog.Default()),
	)

	srv := &http.Server{
		Addr:              cmd.String("addr"),
		Handler:           relay.NewServer(hub),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("relay: listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("relay: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("relay: shutting down")
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
