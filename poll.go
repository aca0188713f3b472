package slidesync

// Discriminator values of the typed messages the sync server understands.
const (
	TypePollGet            = "poll_get"
	TypePollVote           = "poll_vote"
	TypePollUnvote         = "poll_unvote"
	TypePollSwitch         = "poll_switch"
	TypePollState          = "poll_state"
	TypePollNotInitialized = "poll_not_initialized"
	TypeViewerCount        = "viewer_count"
)

// PollRequest asks for the current state of a poll. A presenter asking for
// an unknown poll initializes it with Options and MaxChoices.
type PollRequest struct {
	Type       string   `json:"type"`
	PollID     string   `json:"pollId"`
	VisitorID  string   `json:"visitorId"`
	Options    []string `json:"options,omitempty"`
	MaxChoices int      `json:"maxChoices,omitempty"`
}

// VoteRequest adds or removes a single choice.
type VoteRequest struct {
	Type      string `json:"type"`
	PollID    string `json:"pollId"`
	VisitorID string `json:"visitorId"`
	Choice    string `json:"choice"`
}

// SwitchRequest moves a vote from one choice to another.
type SwitchRequest struct {
	Type       string `json:"type"`
	PollID     string `json:"pollId"`
	VisitorID  string `json:"visitorId"`
	FromChoice string `json:"fromChoice"`
	ToChoice   string `json:"toChoice"`
}

// PollState is the tally broadcast after every change. MyChoices is only set
// on the copy sent to the participant who made the change.
type PollState struct {
	Type      string         `json:"type"`
	PollID    string         `json:"pollId"`
	Votes     map[string]int `json:"votes"`
	MyChoices []string       `json:"myChoices,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// PollNotInitialized tells a viewer that the presenter has not opened the poll yet.
type PollNotInitialized struct {
	Type   string `json:"type"`
	PollID string `json:"pollId"`
}

// ViewerCount carries the number of connected participants.
type ViewerCount struct {
	Type  string `json:"type"`
	Count int    `json:"count,omitempty"`
}

// RequestPoll sends poll_get for pollID. options and maxChoices are only used
// by the server when a presenter opens a new poll.
func (c *Client) RequestPoll(pollID string, options []string, maxChoices int) bool {
	return c.Send(PollRequest{
		Type:       TypePollGet,
		PollID:     pollID,
		VisitorID:  c.visitorID,
		Options:    options,
		MaxChoices: maxChoices,
	})
}

// Vote sends poll_vote for choice.
func (c *Client) Vote(pollID, choice string) bool {
	return c.Send(VoteRequest{
		Type:      TypePollVote,
		PollID:    pollID,
		VisitorID: c.visitorID,
		Choice:    choice,
	})
}

// Unvote sends poll_unvote for choice.
func (c *Client) Unvote(pollID, choice string) bool {
	return c.Send(VoteRequest{
		Type:      TypePollUnvote,
		PollID:    pollID,
		VisitorID: c.visitorID,
		Choice:    choice,
	})
}

// SwitchVote sends poll_switch moving a vote from one choice to another.
func (c *Client) SwitchVote(pollID, from, to string) bool {
	return c.Send(SwitchRequest{
		Type:       TypePollSwitch,
		PollID:     pollID,
		VisitorID:  c.visitorID,
		FromChoice: from,
		ToChoice:   to,
	})
}

// RequestViewerCount asks the server how many participants are connected.
func (c *Client) RequestViewerCount() bool {
	return c.Send(ViewerCount{Type: TypeViewerCount})
}
