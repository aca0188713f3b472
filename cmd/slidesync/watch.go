package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/urfave/cli/v3"

	slidesync "github.com/slidesync/slidesync-go"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "print slide state updates and typed messages as they arrive",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "type",
				Usage: "only print typed messages of this type (repeatable)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			p := &printer{w: cmd.Root().Writer}

			var opts []slidesync.HandlerOption
			if types := cmd.StringSlice("type"); len(types) > 0 {
				opts = append(opts, slidesync.ForTypes(types...))
			}

			client, err := connect(ctx, cmd, p.update, func(c *slidesync.Client) {
				c.OnMessage(p.typed, opts...)
			})
			if err != nil {
				return err
			}
			defer client.Close()

			<-ctx.Done()
			return nil
		},
	}
}

// printer writes one line per inbound message.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) update(m slidesync.Message) {
	p.print("update", m)
}

func (p *printer) typed(m slidesync.Message) {
	p.print(m.StringField(slidesync.DefaultDiscriminator), m)
}

func (p *printer) print(label string, m slidesync.Message) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s\t%s\n", label, data)
}
