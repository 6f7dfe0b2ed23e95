package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/nhle/webmail/internal/credential"
	"github.com/nhle/webmail/internal/mailbox"
	"github.com/nhle/webmail/internal/store"
	"github.com/nhle/webmail/internal/sync"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success bool        `json:"success"`
	Status  string      `json:"status,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// requestError is a client error with a fixed status code.
type requestError struct {
	code    int
	message string
}

func (e *requestError) Error() string { return e.message }

func badRequest(message string) error {
	return &requestError{code: http.StatusBadRequest, message: message}
}

func writeJSON(w http.ResponseWriter, code int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, data interface{}, message string) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Message: message})
}

// statusFor maps an error to its HTTP status code.
func statusFor(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.code
	case sync.IsNotFound(err), store.IsNotFound(err):
		return http.StatusNotFound
	case mailbox.IsAuthError(err), credential.IsTokenError(err):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError sends err in the error envelope. Client errors carry status
// "fail", server errors "error".
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)

	status := "error"
	if code >= 400 && code < 500 {
		status = "fail"
	}

	message := err.Error()
	switch {
	case sync.IsNotFound(err), store.IsNotFound(err):
		message = "Email not found"
	case code == http.StatusInternalServerError && !sync.IsSyncError(err):
		message = "Something went wrong on the server."
	}

	entry := s.log.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": code,
	}).WithError(err)
	if code >= 500 {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}

	writeJSON(w, code, envelope{Success: false, Status: status, Message: message})
}
