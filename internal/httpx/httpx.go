package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alovak/cardflow-3ds/internal/models"
)

type APIError struct {
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, code, msg string, details interface{}) {
	WriteJSON(w, status, APIError{
		Error:   msg,
		Code:    code,
		Details: details,
	})
}

// WriteLine answers with the single text line relayed between hops: a
// challenge reference or "ERROR:<code>".
func WriteLine(w http.ResponseWriter, status int, line string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(line + "\n"))
}

// RelayStatus maps a protocol error to the status of a relaying hop.
func RelayStatus(err error) int {
	var pe *models.Error
	if !errors.As(err, &pe) {
		return http.StatusInternalServerError
	}
	switch pe.Kind() {
	case models.KindValidation:
		return http.StatusBadRequest
	case models.KindRouting, models.KindUnknownCard:
		return http.StatusUnprocessableEntity
	case models.KindCommunication:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// WriteRelayError renders err as an error line with its relay status.
func WriteRelayError(w http.ResponseWriter, err error) {
	WriteLine(w, RelayStatus(err), models.ErrorLine(err))
}
