package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/arnvgh/semspend-be/internal/apierr"
)

// envelope is the shared response shape of every endpoint.
type envelope struct {
	Success    bool        `json:"success"`
	StatusCode int         `json:"statusCode"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data"`
	Errors     []string    `json:"errors"`
}

func writeSuccess(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(envelope{
		Success:    true,
		StatusCode: statusCode,
		Message:    message,
		Data:       data,
		Errors:     []string{},
	})
}

// writeError maps a service error onto the envelope. Tagged errors keep their
// status and message; anything else is surfaced as a generic 500.
func writeError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	message := "Something went wrong"
	fieldErrors := []string{}

	if apiErr, ok := apierr.From(err); ok {
		statusCode = apiErr.StatusCode
		message = apiErr.Message
		if apiErr.Errors != nil {
			fieldErrors = apiErr.Errors
		}
	} else {
		log.Error().Err(err).Msg("Unhandled error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(envelope{
		Success:    false,
		StatusCode: statusCode,
		Message:    message,
		Data:       nil,
		Errors:     fieldErrors,
	})
}
