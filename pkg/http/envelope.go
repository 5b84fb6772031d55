package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/BradenHooton/consensus/internal/models"
)

// Envelope status values
const (
	StatusFailure = 0
	StatusSuccess = 1
)

// Envelope is the body of every API response
type Envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// WriteJSON writes an envelope with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	// Encoding errors are not exposed to the client
	_ = json.NewEncoder(w).Encode(env)
}

func WriteSuccess(w http.ResponseWriter, message string, data any) {
	WriteJSON(w, http.StatusOK, Envelope{Status: StatusSuccess, Message: message, Data: data})
}

func WriteFailure(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, Envelope{Status: StatusFailure, Message: message})
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteFailure(w, http.StatusTooManyRequests, message)
}

// WriteServiceError maps the error taxonomy onto the envelope. Domain errors
// are 400 with their client message; anything else is a 500 with a fixed
// message.
func WriteServiceError(w http.ResponseWriter, err error) {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		WriteJSON(w, http.StatusBadRequest, Envelope{
			Status:  StatusFailure,
			Message: ve.Error(),
			Data:    ve.Fields,
		})
		return
	}

	var de *models.Error
	if errors.As(err, &de) {
		WriteFailure(w, http.StatusBadRequest, de.Message)
		return
	}

	switch {
	case errors.Is(err, models.ErrUnauthenticated):
		WriteFailure(w, http.StatusBadRequest, "authentication failed")
	case errors.Is(err, models.ErrForbidden):
		WriteFailure(w, http.StatusBadRequest, "operation not permitted")
	case errors.Is(err, models.ErrConflict):
		WriteFailure(w, http.StatusBadRequest, "resource already exists")
	case errors.Is(err, models.ErrNotFound):
		WriteFailure(w, http.StatusBadRequest, "resource not found")
	default:
		WriteFailure(w, http.StatusInternalServerError, "internal server error")
	}
}
