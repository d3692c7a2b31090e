package web

import (
	"fmt"
	"net/http"

	"github.com/KaramelBytes/storyteller/internal/session"
)

const (
	cookieName = "storyteller"
	cookieKey  = "sid"
)

// session resolves the caller's session from the signed cookie, creating
// one and setting the cookie when it is missing, tampered with or expired.
// It must run before anything is written to w.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	// Get returns a fresh cookie session alongside a decode error, which
	// is the same as having no cookie.
	cs, _ := s.cookies.Get(r, cookieName)
	id, _ := cs.Values[cookieKey].(string)
	sess, created := s.cfg.Sessions.GetOrCreate(id)
	if created {
		cs.Values[cookieKey] = sess.ID
		if err := cs.Save(r, w); err != nil {
			return nil, fmt.Errorf("save session cookie: %w", err)
		}
	}
	return sess, nil
}
