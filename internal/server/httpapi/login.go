package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/gitwiki/internal/common"
)

func (s *Server) loginForm(w http.ResponseWriter, r *http.Request) {
	redirectTo := r.URL.Query().Get("redirect_to")
	if p := principalFrom(r.Context()); p != nil {
		if wantsJSON(r) {
			writeJSON(w, http.StatusOK, map[string]any{"profile_url": p.Session.ProfileURL, "role": p.Role()})
			return
		}
		writeHTML(w, http.StatusOK, loginFragment(p.Session.ProfileURL, p.Role(), redirectTo))
		return
	}
	writeHTML(w, http.StatusOK, loginFragment("", "", redirectTo))
}

func (s *Server) loginBegin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "BAD_FORM", err.Error())
		return
	}

	authorizeURL, err := s.deps.Login.Begin(r.Context(), r.PostForm.Get("url"), r.PostForm.Get("redirect_to"))
	if err != nil {
		s.logger.Info(r.Context(), "login refused", "claimed", r.PostForm.Get("url"), "error", err)
		s.fail(w, r, err)
		return
	}

	http.Redirect(w, r, authorizeURL, http.StatusSeeOther)
}

func (s *Server) loginCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	nonce := q.Get("state")

	// the authorization server declined; release the attempt
	if e := q.Get("error"); e != "" {
		s.deps.Login.Cancel(nonce)
		msg := e
		if d := q.Get("error_description"); d != "" {
			msg += ": " + d
		}
		writeError(w, r, http.StatusUnauthorized, "LOGIN_REJECTED", msg)
		return
	}

	profile, err := s.deps.Login.Complete(r.Context(), nonce, q.Get("code"))
	if err != nil {
		s.logger.Info(r.Context(), "login failed", "error", err)
		s.fail(w, r, err)
		return
	}

	sess, err := s.deps.Sessions.Create(r.Context(), profile.URL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.setSessionCookie(w, sess)
	s.logger.Info(r.Context(), "logged in", "profile_url", sess.ProfileURL)

	target := profile.RedirectTo
	if target == "" {
		target = "/"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(common.SessionCookieName); err == nil && c.Value != "" {
		if err := s.deps.Sessions.Invalidate(r.Context(), c.Value); err != nil {
			s.logger.Warn(r.Context(), "session invalidation failed", "error", err)
		}
	}
	s.clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) adminToken(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tokens == nil {
		writeError(w, r, http.StatusNotFound, "DISABLED", "admin endpoint is disabled")
		return
	}

	p := principalFrom(r.Context())
	token, ttl, err := s.deps.Tokens(p.Record.ProfileURL)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.logger.Info(r.Context(), "admin token issued", "profile_url", p.Record.ProfileURL)
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int64(ttl / time.Second),
	})
}
