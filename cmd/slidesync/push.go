package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v3"
)

var errNotJSON = errors.New("not a JSON object")

func pushCommand() *cli.Command {
	return &cli.Command{
		Name:  "push",
		Usage: "send slide state read from stdin (one JSON object per line) or from a watched file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "file",
				Usage: "send the JSON object in this file every time it is saved",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			client, err := connect(ctx, cmd, nil, nil)
			if err != nil {
				return err
			}
			defer client.Close()

			if path := cmd.String("file"); path != "" {
				return pushFile(ctx, path, client.Send)
			}

			n, err := pushLines(cmd.Root().Reader, client.Send)
			slog.Info("push: done", "sent", n)
			return err
		},
	}
}

// decodeState checks that data holds a single JSON object and returns it
// unchanged for sending.
func decodeState(data []byte) (json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' || !json.Valid(data) {
		return nil, errNotJSON
	}
	return json.RawMessage(data), nil
}

// pushLines sends every JSON object line read from r. Blank lines are
// skipped; invalid lines and sends on a closed connection are logged.
func pushLines(r io.Reader, send func(any) bool) (int, error) {
	sent := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for line := 1; scanner.Scan(); line++ {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		state, err := decodeState(scanner.Bytes())
		if err != nil {
			slog.Warn("push: skipping line", "line", line, "err", err)
			continue
		}
		if !send(state) {
			slog.Warn("push: not connected, state dropped", "line", line)
			continue
		}
		sent++
	}
	if err := scanner.Err(); err != nil {
		return sent, fmt.Errorf("read input: %w", err)
	}
	return sent, nil
}

// pushFile sends the content of path now and after every write until ctx is
// done.
func pushFile(ctx context.Context, path string, send func(any) bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}
	slog.Info("push: watching for changes", "path", path)

	sendFile(path, send)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors that save atomically produce Create instead of Write.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			sendFile(path, send)

			// Re-add the file in case an atomic save replaced the inode.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("push: watcher error", "err", err)
		}
	}
}

func sendFile(path string, send func(any) bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("push: read file", "path", path, "err", err)
		return
	}
	state, err := decodeState(data)
	if err != nil {
		slog.Warn("push: file is not a JSON object, not sent", "path", path)
		return
	}
	if !send(state) {
		slog.Warn("push: not connected, state dropped", "path", path)
		return
	}
	slog.Debug("push: sent", "path", path, "bytes", len(state))
}
