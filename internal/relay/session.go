package relay

import (
	"context"
	"net/http"

	slidesync "github.com/slidesync/slidesync-go"
)

// SessionStore decides whether a session token belongs to a presenter.
type SessionStore interface {
	Valid(ctx context.Context, token string) bool
}

// StaticSessions is a fixed set of presenter tokens.
type StaticSessions map[string]struct{}

// NewStaticSessions returns a StaticSessions holding tokens. Empty tokens
// are ignored.
func NewStaticSessions(tokens ...string) StaticSessions {
	s := make(StaticSessions, len(tokens))
	for _, t := range tokens {
		if t != "" {
			s[t] = struct{}{}
		}
	}
	return s
}

func (s StaticSessions) Valid(_ context.Context, token string) bool {
	_, ok := s[token]
	return ok
}

// SessionChain accepts a token if any of its stores does.
type SessionChain []SessionStore

func (c SessionChain) Valid(ctx context.Context, token string) bool {
	for _, s := range c {
		if s.Valid(ctx, token) {
			return true
		}
	}
	return false
}

// roleFor decides the role of an incoming connection. A valid session
// cookie makes a presenter. Without one, the ?role= query is honored only
// when trustQuery is set.
func roleFor(r *http.Request, sessions SessionStore, trustQuery bool) slidesync.Role {
	if sessions != nil {
		if c, err := r.Cookie(slidesync.SessionCookieName); err == nil && c.Value != "" {
			if sessions.Valid(r.Context(), c.Value) {
				return slidesync.RolePresenter
			}
		}
	}
	if trustQuery && slidesync.Role(r.URL.Query().Get("role")) == slidesync.RolePresenter {
		return slidesync.RolePresenter
	}
	return slidesync.RoleViewer
}
