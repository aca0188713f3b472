package relay

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// Rejections a PollStore returns for requests that are well-formed but not
// allowed. They are sent back to the participant in poll_state.error.
var (
	ErrPollNotInitialized = errors.New("poll not initialized")
	ErrInvalidChoice      = errors.New("invalid choice")
	ErrMaxChoices         = errors.New("max choices reached")
	ErrAlreadyVoted       = errors.New("already voted for this choice")
	ErrVoteNotFound       = errors.New("vote not found")
)

var rejections = []error{
	ErrPollNotInitialized,
	ErrInvalidChoice,
	ErrMaxChoices,
	ErrAlreadyVoted,
	ErrVoteNotFound,
}

// isRejection reports whether err is one of the poll rejections.
func isRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}

// Poll is the stored state of one poll. Votes only lists choices with at
// least one vote.
type Poll struct {
	ID         string
	Options    []string
	MaxChoices int
	Votes      map[string]int
}

// allows reports whether choice is a valid option. A poll opened without
// options accepts any choice.
func (p Poll) allows(choice string) bool {
	return len(p.Options) == 0 || slices.Contains(p.Options, choice)
}

// PollStore keeps polls and the votes cast in them.
type PollStore interface {
	// Get returns the poll, or ErrPollNotInitialized.
	Get(ctx context.Context, pollID string) (Poll, error)

	// Create opens a poll. Creating an existing poll is a no-op.
	Create(ctx context.Context, poll Poll) error

	// Choices returns the choices visitorID currently holds in pollID.
	Choices(ctx context.Context, pollID, visitorID string) ([]string, error)

	Vote(ctx context.Context, pollID, visitorID, choice string) error
	Unvote(ctx context.Context, pollID, visitorID, choice string) error

	// Switch moves a vote from one choice to another atomically. The old
	// vote is kept when the new one cannot be cast.
	Switch(ctx context.Context, pollID, visitorID, from, to string) error
}

type memoryPoll struct {
	options    []string
	maxChoices int
	votes      map[string][]string // visitor -> choices in vote order
}

// MemoryStore is an in-process PollStore. Polls live as long as the process.
type MemoryStore struct {
	mu    sync.Mutex
	polls map[string]*memoryPoll
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{polls: make(map[string]*memoryPoll)}
}

func (s *MemoryStore) Get(_ context.Context, pollID string) (Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.polls[pollID]
	if !ok {
		return Poll{}, ErrPollNotInitialized
	}
	return p.snapshot(pollID), nil
}

func (s *MemoryStore) Create(_ context.Context, poll Poll) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.polls[poll.ID]; ok {
		return nil
	}
	s.polls[poll.ID] = &memoryPoll{
		options:    slices.Clone(poll.Options),
		maxChoices: max(poll.MaxChoices, 1),
		votes:      make(map[string][]string),
	}
	return nil
}

func (s *MemoryStore) Choices(_ context.Context, pollID, visitorID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.polls[pollID]
	if !ok {
		return nil, nil
	}
	return slices.Clone(p.votes[visitorID]), nil
}

func (s *MemoryStore) Vote(_ context.Context, pollID, visitorID, choice string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.poll(pollID, choice)
	if err != nil {
		return err
	}
	held := p.votes[visitorID]
	if len(held) >= p.maxChoices {
		return ErrMaxChoices
	}
	if slices.Contains(held, choice) {
		return ErrAlreadyVoted
	}
	p.votes[visitorID] = append(held, choice)
	return nil
}

func (s *MemoryStore) Unvote(_ context.Context, pollID, visitorID, choice string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.poll(pollID, choice)
	if err != nil {
		return err
	}
	held := p.votes[visitorID]
	i := slices.Index(held, choice)
	if i < 0 {
		return ErrVoteNotFound
	}
	p.votes[visitorID] = slices.Delete(held, i, i+1)
	if len(p.votes[visitorID]) == 0 {
		delete(p.votes, visitorID)
	}
	return nil
}

func (s *MemoryStore) Switch(_ context.Context, pollID, visitorID, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.poll(pollID, from, to)
	if err != nil {
		return err
	}
	held := p.votes[visitorID]
	i := slices.Index(held, from)
	if i < 0 {
		return ErrVoteNotFound
	}
	if from == to {
		return nil
	}
	if slices.Contains(held, to) {
		return ErrAlreadyVoted
	}
	held[i] = to
	return nil
}

// poll looks up pollID and checks every choice against its options.
// Caller holds s.mu.
func (s *MemoryStore) poll(pollID string, choices ...string) (*memoryPoll, error) {
	p, ok := s.polls[pollID]
	if !ok {
		return nil, ErrPollNotInitialized
	}
	meta := Poll{Options: p.options}
	for _, c := range choices {
		if !meta.allows(c) {
			return nil, ErrInvalidChoice
		}
	}
	return p, nil
}

func (p *memoryPoll) snapshot(id string) Poll {
	votes := make(map[string]int)
	for _, held := range p.votes {
		for _, c := range held {
			votes[c]++
		}
	}
	return Poll{
		ID:         id,
		Options:    slices.Clone(p.options),
		MaxChoices: p.maxChoices,
		Votes:      votes,
	}
}
