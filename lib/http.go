package lib

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/darkglass/darkglass/internal"
	"github.com/darkglass/darkglass/lib/session"
)

// apiError is the JSON shape of every failed API call. The code values are
// stable; clients branch on them, not on the message.
type apiError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)

	id, err := s.CreateSession(r.Context())
	if err != nil {
		lg.Error("can't create session", "err", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "internal-error"})
		return
	}

	lg.Debug("session created", "sessionID", id)
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

func (s *Server) getChallenge(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)
	id := r.PathValue("sessionID")

	view, err := s.Issue(r.Context(), id)
	if err != nil {
		s.writeError(w, lg, id, err)
		return
	}

	lg.Debug("challenge issued", "sessionID", id, "captchaID", view.ID, "kind", view.Kind)
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) verifyAnswer(w http.ResponseWriter, r *http.Request) {
	lg := internal.GetRequestLogger(r)
	id := r.PathValue("sessionID")

	var body struct {
		Answer any `json:"answer"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "bad-request", Message: "body must be JSON with an answer field"})
		return
	}

	result, err := s.Submit(r.Context(), id, body.Answer)
	if err != nil {
		s.writeError(w, lg, id, err)
		return
	}

	lg.Debug("answer judged", "sessionID", id, "success", result.Success)
	writeJSON(w, http.StatusOK, result)
}

// writeError maps the error taxonomy onto HTTP statuses and stable codes.
func (s *Server) writeError(w http.ResponseWriter, lg *slog.Logger, sessionID string, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeJSON(w, http.StatusNotFound, apiError{Error: "session-not-found"})
	case errors.Is(err, ErrNoActiveChallenge):
		writeJSON(w, http.StatusBadRequest, apiError{Error: "no-active-captcha", Message: "request a challenge first"})
	case errors.Is(err, ErrSignatureInvalid):
		writeJSON(w, http.StatusForbidden, apiError{Error: "signature-invalid"})
	case errors.Is(err, ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, apiError{Error: "rate-limited", Message: "too many attempts, wait before retrying"})
	case errors.Is(err, ErrVerificationUnavailable):
		lg.Error("verification unavailable", "sessionID", sessionID, "err", err)
		writeJSON(w, http.StatusServiceUnavailable, apiError{Error: "verification-unavailable", Message: "the attempt was counted, try again"})
	default:
		lg.Error("request failed", "sessionID", sessionID, "err", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "internal-error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("can't write response", "err", err)
	}
}
