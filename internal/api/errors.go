package api

import (
	"encoding/json"
	"net/http"

	"github.com/testnet-faucet/internal/errors"
	"github.com/testnet-faucet/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondCategorized maps a categorized error onto its HTTP status and
// structured body. Internal causes are logged upstream, never surfaced.
func respondCategorized(w http.ResponseWriter, err error) {
	catErr := errors.Categorize(err)
	serviceErr := catErr.ToServiceError()
	respondError(w, catErr.StatusCode, serviceErr.Code, serviceErr.Message, serviceErr.Details)
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}
