package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/urfave/cli/v3"

	slidesync "github.com/slidesync/slidesync-go"
)

func voteCommand() *cli.Command {
	return &cli.Command{
		Name:      "vote",
		Usage:     "vote in a poll and print the result",
		ArgsUsage: "<poll-id> [choice]",
		Description: "Without a choice the current tally is printed. With --switch-from the vote\n" +
			"for that choice moves to <choice>; with --unvote the vote for <choice> is withdrawn.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "switch-from",
				Usage: "move an existing vote from this choice",
			},
			&cli.BoolFlag{
				Name:  "unvote",
				Usage: "withdraw the vote for <choice>",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "how long to wait for the server's answer",
				Value: 10 * time.Second,
			},
		},
		Action: runVote,
	}
}

func runVote(ctx context.Context, cmd *cli.Command) error {
	pollID := cmd.Args().Get(0)
	choice := cmd.Args().Get(1)
	if pollID == "" {
		return errors.New("vote: poll ID is required")
	}
	if choice == "" && (cmd.IsSet("switch-from") || cmd.Bool("unvote")) {
		return errors.New("vote: a choice is required with --switch-from or --unvote")
	}

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	answers := make(chan slidesync.Message, 1)
	client, err := connect(ctx, cmd, nil, func(c *slidesync.Client) {
		c.OnMessage(func(m slidesync.Message) {
			if !isAnswer(m, pollID, choice == "") {
				return
			}
			select {
			case answers <- m:
			default:
			}
		}, slidesync.ForTypes(slidesync.TypePollState, slidesync.TypePollNotInitialized))
	})
	if err != nil {
		return err
	}
	defer client.Close()

	switch {
	case choice == "":
		client.RequestPoll(pollID, nil, 0)
	case cmd.Bool("unvote"):
		client.Unvote(pollID, choice)
	case cmd.IsSet("switch-from"):
		client.SwitchVote(pollID, cmd.String("switch-from"), choice)
	default:
		client.Vote(pollID, choice)
	}

	select {
	case m := <-answers:
		return printPoll(cmd, m)
	case <-ctx.Done():
		return fmt.Errorf("vote: no answer from server: %w", ctx.Err())
	}
}

// isAnswer reports whether m answers our request for pollID. Tallies
// broadcast after other participants' votes carry no myChoices and are
// skipped, except for a plain poll request: a presenter opening a new poll
// only gets the opening broadcast back.
func isAnswer(m slidesync.Message, pollID string, tallyOnly bool) bool {
	if m.StringField("pollId") != pollID {
		return false
	}
	if m.StringField("type") != slidesync.TypePollState {
		return true
	}
	_, mine := m["myChoices"]
	return mine || tallyOnly
}

func printPoll(cmd *cli.Command, m slidesync.Message) error {
	w := cmd.Root().Writer
	if m.StringField("type") == slidesync.TypePollNotInitialized {
		return fmt.Errorf("poll %q has not been opened by the presenter", m.StringField("pollId"))
	}

	var st slidesync.PollState
	if err := m.Decode(&st); err != nil {
		return fmt.Errorf("decode poll state: %w", err)
	}

	choices := make([]string, 0, len(st.Votes))
	for c := range st.Votes {
		choices = append(choices, c)
	}
	sort.Strings(choices)

	fmt.Fprintf(w, "poll %s\n", st.PollID)
	for _, c := range choices {
		fmt.Fprintf(w, "  %-20s %d\n", c, st.Votes[c])
	}
	fmt.Fprintf(w, "my choices: %v\n", st.MyChoices)
	if st.Error != "" {
		return fmt.Errorf("server rejected the vote: %s", st.Error)
	}
	return nil
}
