package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gitwiki/internal/server/content"
	"github.com/dmitrijs2005/gitwiki/internal/server/handshake"
	"github.com/dmitrijs2005/gitwiki/internal/server/render"
)

type errorBody struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeHTML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorBody{RequestID: requestIDFrom(r.Context()), Code: code, Message: msg})
}

// fail maps a component error onto a response. Unknown errors are logged
// and reported as 500 without detail.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "request_id", requestIDFrom(r.Context()), "error", err)
		writeError(w, r, status, code, "internal error")
		return
	}
	writeError(w, r, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, content.ErrValidation):
		return http.StatusBadRequest, "VALIDATION"
	case errors.Is(err, render.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT"
	case errors.Is(err, render.ErrFrontMatter):
		return http.StatusBadRequest, "FRONT_MATTER"
	case errors.Is(err, content.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, content.ErrExists):
		return http.StatusConflict, "EXISTS"
	case errors.Is(err, content.ErrSyncConflict):
		return http.StatusConflict, "SYNC_CONFLICT"
	case errors.Is(err, handshake.ErrInvalidState), errors.Is(err, handshake.ErrIdentityMismatch):
		return http.StatusUnauthorized, "LOGIN_REJECTED"
	case errors.Is(err, handshake.ErrTimeout):
		return http.StatusBadRequest, "LOGIN_TIMEOUT"
	}
	var herr *handshake.Error
	if errors.As(err, &herr) {
		return http.StatusBadRequest, "LOGIN_FAILED"
	}
	return http.StatusInternalServerError, "INTERNAL"
}
