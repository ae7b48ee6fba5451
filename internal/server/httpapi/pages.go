package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/gitwiki/internal/gitx"
	"github.com/dmitrijs2005/gitwiki/internal/server/content"
	"github.com/dmitrijs2005/gitwiki/internal/server/render"
	"github.com/dmitrijs2005/gitwiki/internal/server/sessions"
	"github.com/go-chi/chi/v5"
)

type pageView struct {
	Path       string   `json:"path"`
	Revision   string   `json:"revision,omitempty"`
	Format     string   `json:"format"`
	Title      string   `json:"title,omitempty"`
	Categories []string `json:"categories,omitempty"`
	HTML       string   `json:"html"`
}

type editView struct {
	Path    string `json:"path"`
	Mime    string `json:"mime"`
	Exists  bool   `json:"exists"`
	Content string `json:"content"`
}

type writeView struct {
	Path         string `json:"path"`
	Commit       string `json:"commit"`
	State        string `json:"state"`
	Synchronized bool   `json:"synchronized"`
	Rebases      int    `json:"rebases"`
	PushAttempts int    `json:"push_attempts"`
	Warning      string `json:"warning,omitempty"`
}

type personView struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	ProfileURL string `json:"profile_url,omitempty"`
}

type commitView struct {
	ID        string     `json:"id"`
	Parent    string     `json:"parent,omitempty"`
	Author    personView `json:"author"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
	Files     []string   `json:"files,omitempty"`
}

type editRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Summary string `json:"summary"`
	Format  string `json:"format"`
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// pagePath extracts and validates the wildcard page path.
func pagePath(r *http.Request) (string, error) {
	p := chi.URLParam(r, "*")
	if r.URL.RawPath != "" {
		u, err := url.PathUnescape(p)
		if err != nil {
			return "", fmt.Errorf("%w: %s", content.ErrValidation, err)
		}
		p = u
	}
	return content.CleanPath(p)
}

func (s *Server) formatFor(r *http.Request, p string) (render.Format, error) {
	if f := r.URL.Query().Get("format"); f != "" {
		return render.ParseFormat(f)
	}
	return render.FormatFor(p), nil
}

// serveStatic serves a file from StaticDir when one exists at the request path.
func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) bool {
	if s.deps.StaticDir == "" {
		return false
	}
	name := filepath.Join(s.deps.StaticDir, filepath.FromSlash(path.Clean("/"+chi.URLParam(r, "*"))))
	f, err := os.Open(name)
	if err != nil {
		return false
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil || fi.IsDir() {
		return false
	}
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
	return true
}

func (s *Server) view(w http.ResponseWriter, r *http.Request) {
	if s.serveStatic(w, r) {
		return
	}

	p, err := pagePath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	rev := r.URL.Query().Get("revision")
	var src []byte
	if rev != "" {
		src, err = s.deps.Pages.ReadAt(r.Context(), p, rev)
	} else {
		src, err = s.deps.Pages.Read(r.Context(), p)
	}
	if err != nil {
		if errors.Is(err, content.ErrNotFound) && rev == "" && principalFrom(r.Context()).CanWrite() {
			http.Redirect(w, r, "/meta/new/"+(&url.URL{Path: p}).EscapedPath(), http.StatusFound)
			return
		}
		s.fail(w, r, err)
		return
	}

	format, err := s.formatFor(r, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	doc, err := s.deps.Renderer.Render(format, p, src)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if !wantsJSON(r) {
		writeHTML(w, http.StatusOK, doc.HTML)
		return
	}
	v := pageView{Path: p, Revision: rev, Format: string(format), HTML: string(doc.HTML)}
	if doc.FrontMatter != nil {
		v.Title = doc.FrontMatter.Title
		v.Categories = doc.FrontMatter.Categories
	}
	if v.Title == "" {
		v.Title = p
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) raw(w http.ResponseWriter, r *http.Request) {
	p, err := pagePath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var src []byte
	if rev := r.URL.Query().Get("revision"); rev != "" {
		src, err = s.deps.Pages.ReadAt(r.Context(), p, rev)
	} else {
		src, err = s.deps.Pages.Read(r.Context(), p)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", content.InferMime(p))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(src)
}

// readEdit accepts either a form or a JSON body.
func readEdit(w http.ResponseWriter, r *http.Request) (editRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPageBytes)

	var req editRequest
	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "application/json" {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return req, fmt.Errorf("%w: %s", content.ErrValidation, err)
		}
		if err := json.Unmarshal(body, &req); err != nil {
			return req, fmt.Errorf("%w: %s", content.ErrValidation, err)
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, fmt.Errorf("%w: %s", content.ErrValidation, err)
	}
	req.Path = r.PostForm.Get("path")
	req.Content = r.PostForm.Get("content")
	req.Summary = r.PostForm.Get("summary")
	req.Format = r.PostForm.Get("format")
	return req, nil
}

func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	req, err := readEdit(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	format := render.FormatFor(req.Path)
	if req.Format != "" {
		if format, err = render.ParseFormat(req.Format); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	doc, err := s.deps.Renderer.Render(format, req.Path, []byte(req.Content))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeHTML(w, http.StatusOK, doc.HTML)
}

func (s *Server) newForm(w http.ResponseWriter, r *http.Request) {
	s.editor(w, r, content.OpCreate)
}

func (s *Server) editForm(w http.ResponseWriter, r *http.Request) {
	s.editor(w, r, content.OpUpdate)
}

func (s *Server) editor(w http.ResponseWriter, r *http.Request, op content.Op) {
	p, err := pagePath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	v := editView{Path: p, Mime: content.InferMime(p)}
	src, err := s.deps.Pages.Read(r.Context(), p)
	switch {
	case err == nil:
		v.Exists = true
		v.Content = string(src)
	case errors.Is(err, content.ErrNotFound):
	default:
		s.fail(w, r, err)
		return
	}

	escaped := (&url.URL{Path: p}).EscapedPath()
	if op == content.OpCreate && v.Exists {
		http.Redirect(w, r, "/meta/edit/"+escaped, http.StatusFound)
		return
	}
	if op == content.OpUpdate && !v.Exists {
		http.Redirect(w, r, "/meta/new/"+escaped, http.StatusFound)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, v)
		return
	}
	action := "/meta/new/"
	if op == content.OpUpdate {
		action = "/meta/edit/"
	}
	writeHTML(w, http.StatusOK, editorFragment(action+escaped, v))
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	s.save(w, r, content.OpCreate)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	s.save(w, r, content.OpUpdate)
}

func (s *Server) save(w http.ResponseWriter, r *http.Request, op content.Op) {
	p, err := pagePath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	req, err := readEdit(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	// a page that cannot be rendered is never committed
	if _, err := s.deps.Renderer.Render(render.FormatFor(p), p, []byte(req.Content)); err != nil {
		s.fail(w, r, err)
		return
	}

	principal := principalFrom(r.Context())
	res, err := s.deps.Pages.Write(r.Context(), content.WriteRequest{
		Path:    p,
		Content: []byte(req.Content),
		Author:  authorOf(principal),
		Message: commitMessage(op, p, req.Summary),
		Op:      op,
	})
	if res == nil {
		s.fail(w, r, err)
		return
	}

	status := http.StatusOK
	if op == content.OpCreate {
		status = http.StatusCreated
	}
	v := writeView{
		Path:         p,
		Commit:       res.Commit,
		State:        res.State.String(),
		Synchronized: res.State == content.StatePushed,
		Rebases:      res.Rebases,
		PushAttempts: res.PushAttempts,
	}
	if err != nil {
		s.logger.Warn(r.Context(), "page saved without synchronizing", "path", p, "commit", res.Commit, "error", err)
		v.Warning = "saved locally, the shared repository will be updated later: " + err.Error()
	}
	writeJSON(w, status, v)
}

func commitMessage(op content.Op, p, summary string) string {
	msg := "[" + op.String() + "] " + p
	if summary = strings.TrimSpace(summary); summary != "" {
		msg += "\n\n" + summary
	}
	return msg
}

// authorOf attributes a commit to the principal's vault identity. Records
// without an email get a stable address derived from the profile host.
func authorOf(p *sessions.Principal) gitx.Person {
	person := gitx.Person{Name: p.Record.Name, Email: p.Record.Email}
	if person.Email == "" {
		host := "localhost"
		if u, err := url.Parse(p.Record.ProfileURL); err == nil && u.Hostname() != "" {
			host = u.Hostname()
		}
		person.Email = "wiki@" + host
	}
	return person
}

func (s *Server) toView(c content.Commit) commitView {
	v := commitView{
		ID:        c.ID,
		Parent:    c.Parent,
		Author:    personView{Name: c.Author.Name, Email: c.Author.Email},
		Message:   c.Message,
		Timestamp: c.Timestamp(),
		Files:     c.Files,
	}
	if s.deps.Directory != nil {
		if rec, ok := s.deps.Directory.LookupEmail(c.Author.Email); ok {
			v.Author.ProfileURL = rec.ProfileURL
		}
	}
	return v
}

func historyLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultHistoryLimit
	}
	return min(n, maxHistoryLimit)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	p, err := pagePath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	limit := historyLimit(r)
	commits := make([]commitView, 0)
	for c, err := range s.deps.Pages.History(r.Context(), p) {
		if err != nil {
			s.fail(w, r, err)
			return
		}
		commits = append(commits, s.toView(c))
		if len(commits) == limit {
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"path": p, "commits": commits})
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if p == nil {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "login required")
		return
	}

	out := map[string]any{
		"profile_url": p.Session.ProfileURL,
		"role":        p.Role(),
		"expires_at":  p.Session.ExpiresAt,
	}
	recent := make([]commitView, 0)
	if !p.IsGuest() {
		out["name"] = p.Record.Name
		out["email"] = p.Record.Email
		if p.Record.Email != "" {
			for c, err := range s.deps.Pages.AuthorHistory(r.Context(), p.Record.Email, profileHistoryLimit) {
				if err != nil {
					s.fail(w, r, err)
					return
				}
				recent = append(recent, s.toView(c))
			}
		}
	}
	out["recent"] = recent

	writeJSON(w, http.StatusOK, out)
}
