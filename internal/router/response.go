package router

import (
	"encoding/json"
	"net/http"
)

// JSON encodes v as the response body
func JSON(status int, v interface{}) Response {
	body, err := json.Marshal(v)
	if err != nil {
		return ServerError("Server error", err)
	}
	return Response{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

// Text returns a plain message body
func Text(status int, message string) Response {
	return Response{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "text/plain"},
		Body:       message,
	}
}

// Empty returns a response without a body
func Empty(status int) Response {
	return Response{StatusCode: status, Headers: map[string]string{}}
}

// ServerError is the 500 envelope carrying a generic message and the error text
func ServerError(message string, err error) Response {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	body, _ := json.Marshal(map[string]string{
		"message": message,
		"error":   detail,
	})
	return Response{
		StatusCode: http.StatusInternalServerError,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}
