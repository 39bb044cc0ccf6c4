// Package httputil holds JSON response helpers and a small HTTP client for
// talking to the contest API.
package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/SAFERMOON/SAFERWINNING/internal/errors"
	"github.com/SAFERMOON/SAFERWINNING/internal/logging"
)

// maxRequestBody bounds JSON request bodies read by ReadJSON.
const maxRequestBody = 1 << 20

// APIResponse is the envelope for every JSON response.
type APIResponse struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	TraceID string         `json:"trace_id,omitempty"`
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a success response.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

// WriteCreated writes a 201 success response.
func WriteCreated(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusCreated, APIResponse{Success: true, Data: data})
}

// WriteErrorResponse writes an error envelope carrying the request's trace id.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	body := &ErrorBody{Code: code, Message: message, Details: details}
	if r != nil {
		body.TraceID = logging.GetTraceID(r.Context())
	}
	WriteJSON(w, status, APIResponse{Success: false, Error: body})
}

// WriteError maps err to its ServiceError status and writes it. Errors that
// are not ServiceErrors are reported as internal without leaking their text.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("internal error", err)
	}
	WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)
}

// Unauthorized writes a 401 response.
func Unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	if message == "" {
		message = "authentication required"
	}
	WriteError(w, r, errors.Unauthorized(message))
}

// ReadJSON decodes a bounded JSON request body into v and rejects unknown
// fields.
func ReadJSON(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errors.Validation("empty request body")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.InvalidFormat("body", fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}
