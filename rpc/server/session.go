package server

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/hashserv/lib/auth"
	"github.com/ValentinKolb/hashserv/lib/store"
)

// sessionMode is the protocol state of a framed connection
type sessionMode uint8

const (
	modeNormal sessionMode = iota
	modeGetStream
	modeExistsStream
)

func (m sessionMode) String() string {
	switch m {
	case modeGetStream:
		return "get-stream"
	case modeExistsStream:
		return "exists-stream"
	default:
		return "normal"
	}
}

// session is the server side state of one connection.
// After OnConnect it is only touched by the dispatcher worker.
type session struct {
	connID     uint64
	acceptedAt time.Time

	counted bool // connection setup time was recorded
	greeted bool // the hello was accepted
	framed  bool // the connection speaks the framed protocol and may stream
	mode    sessionMode

	// Authenticated (or impersonated) user, nil for anonymous sessions
	user  *store.User
	perms auth.Permissions
}

func newSession(connID uint64, acceptedAt time.Time) *session {
	return &session{
		connID:     connID,
		acceptedAt: acceptedAt,
	}
}

// username returns the name of the session user or "" for anonymous sessions
func (s *session) username() string {
	if s.user == nil {
		return ""
	}
	return s.user.Username
}

// setUser switches the session to user
func (s *session) setUser(user *store.User) error {
	perms, err := auth.ParsePermissions(user.Permissions)
	if err != nil {
		return err
	}
	s.user = user
	s.perms = perms
	return nil
}

// permissions returns the effective permissions of the session. A user holds
// its own permissions plus those granted to anonymous sessions.
func (s *session) permissions(anon auth.Permissions) auth.Permissions {
	if s.user == nil {
		return anon
	}
	return s.perms.Union(anon)
}

// describe names the session in log messages
func describe(s *session) string {
	if s.user == nil {
		return fmt.Sprintf("anonymous connection %d", s.connID)
	}
	return fmt.Sprintf("user %s (connection %d)", s.user.Username, s.connID)
}
