package relay

import (
	"context"
	"encoding/json"

	slidesync "github.com/slidesync/slidesync-go"
)

// maxInputLen bounds every identifier and choice in a poll command.
const maxInputLen = 256

func validStrings(values ...string) bool {
	for _, v := range values {
		if len(v) == 0 || len(v) > maxInputLen {
			return false
		}
	}
	return true
}

// pollGet answers with the poll's tally. A presenter asking for an unknown
// poll opens it and everyone is told; a viewer is told it is not open yet.
func (h *Hub) pollGet(ctx context.Context, c *client, msg slidesync.Message) {
	var req slidesync.PollRequest
	if err := msg.Decode(&req); err != nil || !validStrings(req.PollID, req.VisitorID) {
		h.logger.Debug("relay: invalid poll_get", "id", c.id)
		return
	}

	poll, err := h.polls.Get(ctx, req.PollID)
	switch {
	case err == nil:
	case isRejection(err):
		if c.role != slidesync.RolePresenter {
			h.reply(c, slidesync.PollNotInitialized{
				Type:   slidesync.TypePollNotInitialized,
				PollID: req.PollID,
			})
			return
		}
		h.openPoll(ctx, req)
		return
	default:
		h.logger.Error("relay: get poll", "poll", req.PollID, "err", err)
		return
	}

	mine, err := h.polls.Choices(ctx, req.PollID, req.VisitorID)
	if err != nil {
		h.logger.Error("relay: list choices", "poll", req.PollID, "err", err)
		return
	}
	h.reply(c, pollReply{
		PollState: slidesync.PollState{
			Type:   slidesync.TypePollState,
			PollID: req.PollID,
			Votes:  nonNil(poll.Votes),
		},
		MyChoices: mine,
	})
}

func (h *Hub) openPoll(ctx context.Context, req slidesync.PollRequest) {
	err := h.polls.Create(ctx, Poll{
		ID:         req.PollID,
		Options:    req.Options,
		MaxChoices: max(req.MaxChoices, 1),
	})
	if err != nil {
		h.logger.Error("relay: create poll", "poll", req.PollID, "err", err)
		return
	}
	h.logger.Info("relay: poll opened", "poll", req.PollID, "options", len(req.Options))

	data, err := json.Marshal(slidesync.PollState{
		Type:   slidesync.TypePollState,
		PollID: req.PollID,
		Votes:  map[string]int{},
	})
	if err != nil {
		return
	}
	h.broadcast(data, "")
}

func (h *Hub) pollVote(ctx context.Context, c *client, msg slidesync.Message) {
	var req slidesync.VoteRequest
	if err := msg.Decode(&req); err != nil || !validStrings(req.PollID, req.VisitorID, req.Choice) {
		h.logger.Debug("relay: invalid poll_vote", "id", c.id)
		return
	}
	h.applyPoll(ctx, c, req.PollID, req.VisitorID, func() error {
		return h.polls.Vote(ctx, req.PollID, req.VisitorID, req.Choice)
	})
}

func (h *Hub) pollUnvote(ctx context.Context, c *client, msg slidesync.Message) {
	var req slidesync.VoteRequest
	if err := msg.Decode(&req); err != nil || !validStrings(req.PollID, req.VisitorID, req.Choice) {
		h.logger.Debug("relay: invalid poll_unvote", "id", c.id)
		return
	}
	h.applyPoll(ctx, c, req.PollID, req.VisitorID, func() error {
		return h.polls.Unvote(ctx, req.PollID, req.VisitorID, req.Choice)
	})
}

func (h *Hub) pollSwitch(ctx context.Context, c *client, msg slidesync.Message) {
	var req slidesync.SwitchRequest
	if err := msg.Decode(&req); err != nil || !validStrings(req.PollID, req.VisitorID, req.FromChoice, req.ToChoice) {
		h.logger.Debug("relay: invalid poll_switch", "id", c.id)
		return
	}
	h.applyPoll(ctx, c, req.PollID, req.VisitorID, func() error {
		return h.polls.Switch(ctx, req.PollID, req.VisitorID, req.FromChoice, req.ToChoice)
	})
}

// applyPoll runs a vote change. On success the new tally goes to everyone
// else and the caller also gets its own choices; a rejection goes back to
// the caller alone as poll_state.error.
func (h *Hub) applyPoll(ctx context.Context, c *client, pollID, visitorID string, change func() error) {
	if err := change(); err != nil {
		if !isRejection(err) {
			h.logger.Error("relay: poll change", "poll", pollID, "err", err)
			return
		}
		h.replyState(ctx, c, pollID, visitorID, err.Error())
		return
	}

	poll, err := h.polls.Get(ctx, pollID)
	if err != nil {
		h.logger.Error("relay: get poll", "poll", pollID, "err", err)
		return
	}
	data, err := json.Marshal(slidesync.PollState{
		Type:   slidesync.TypePollState,
		PollID: pollID,
		Votes:  nonNil(poll.Votes),
	})
	if err != nil {
		return
	}
	h.broadcast(data, c.id)
	h.replyState(ctx, c, pollID, visitorID, "")
}

// replyState sends the caller the current tally and its own choices.
func (h *Hub) replyState(ctx context.Context, c *client, pollID, visitorID, reason string) {
	votes := map[string]int{}
	if poll, err := h.polls.Get(ctx, pollID); err == nil {
		votes = nonNil(poll.Votes)
	}
	mine, err := h.polls.Choices(ctx, pollID, visitorID)
	if err != nil {
		h.logger.Error("relay: list choices", "poll", pollID, "err", err)
	}
	h.reply(c, pollReply{
		PollState: slidesync.PollState{
			Type:   slidesync.TypePollState,
			PollID: pollID,
			Votes:  votes,
			Error:  reason,
		},
		MyChoices: mine,
	})
}

// pollReply is the poll_state sent to the participant who asked. Unlike a
// broadcast it always carries myChoices, even when empty.
type pollReply struct {
	slidesync.PollState
	MyChoices []string `json:"myChoices"`
}

func (r pollReply) MarshalJSON() ([]byte, error) {
	type plain pollReply
	if r.MyChoices == nil {
		r.MyChoices = []string{}
	}
	return json.Marshal(plain(r))
}

func nonNil(votes map[string]int) map[string]int {
	if votes == nil {
		return map[string]int{}
	}
	return votes
}
