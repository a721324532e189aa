package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	dErrors "quiz/pkg/domain-errors"
)

// HeaderRequestID carries the request ID on inbound requests and every response.
const HeaderRequestID = "X-Request-ID"

const maxBodyBytes = 1 << 20

// SuccessResponse is the conventional envelope for successful API responses.
type SuccessResponse struct {
	Success   bool   `json:"success"`
	RequestID string `json:"requestId"`
	Data      any    `json:"data,omitempty"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess writes {success: true, requestId, data} with status 200.
func WriteSuccess(w http.ResponseWriter, requestID string, data any) {
	WriteJSON(w, http.StatusOK, SuccessResponse{Success: true, RequestID: requestID, Data: data})
}

// DecodeJSON decodes a bounded request body into dst. Malformed or empty bodies
// are Validation errors.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return dErrors.Validation("Request body is required", nil)
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return dErrors.Validation("Request body is required", nil)
		}
		return dErrors.Validation("Invalid JSON body", map[string]any{"reason": fmt.Sprint(err)})
	}
	return nil
}
