package saltedge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Error classes the API returns when a customer identifier is already taken
var duplicateClasses = map[string]bool{
	"DuplicatedCustomer":    true,
	"CustomerAlreadyExists": true,
}

// APIError is a non-2xx answer from the API
type APIError struct {
	Status  int
	Body    string
	Class   string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("saltedge: status %d: %s", e.Status, e.Body)
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Body: string(body)}

	var envelope struct {
		Error struct {
			Class   string `json:"class"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		apiErr.Class = envelope.Error.Class
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}

// IsDuplicateCustomer reports whether err says the customer identifier already exists.
// The error class is authoritative; the message match only covers responses without one.
func IsDuplicateCustomer(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Class != "" {
		return duplicateClasses[apiErr.Class]
	}

	text := strings.ToLower(apiErr.Message + " " + apiErr.Body)
	return strings.Contains(text, "already exists") || strings.Contains(text, "duplicated")
}
