package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"quiz/internal/platform/logger"
	dErrors "quiz/pkg/domain-errors"
)

// ErrorResponse is the envelope written for every failed request.
type ErrorResponse struct {
	RequestID string         `json:"requestId"`
	Status    int            `json:"status"`
	Error     string         `json:"error"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Trace     string         `json:"trace,omitempty"`
}

// ErrorWriter translates handler errors into the error envelope.
type ErrorWriter struct {
	logger       *logger.Logger
	includeTrace bool
}

// NewErrorWriter builds an ErrorWriter. includeTrace adds stack traces to logs
// and responses and must be false in production.
func NewErrorWriter(log *logger.Logger, includeTrace bool) *ErrorWriter {
	return &ErrorWriter{logger: log, includeTrace: includeTrace}
}

// BuildResponse classifies err into the envelope without writing anything.
func (ew *ErrorWriter) BuildResponse(err error, requestID string) (ErrorResponse, *dErrors.Error) {
	de := dErrors.Classify(err)
	if de == nil {
		de = dErrors.Classify(fmt.Errorf("nil error reached the error handler"))
	}

	resp := ErrorResponse{
		RequestID: requestID,
		Status:    de.Status(),
		Error:     de.Code(),
		Message:   de.Message,
	}
	switch de.Kind {
	case dErrors.KindValidation, dErrors.KindGeneric:
		if len(de.Details) > 0 {
			resp.Details = de.Details
		}
	}
	if ew.includeTrace {
		resp.Trace = de.Stack()
	}
	return resp, de
}

// Handle logs err as error:handled and writes the envelope with X-Request-ID,
// plus Retry-After for rate limit errors. It never panics; a failure while
// building the response falls back to the generic 500 envelope.
func (ew *ErrorWriter) Handle(ctx context.Context, w http.ResponseWriter, err error, requestID string) {
	defer func() {
		if rec := recover(); rec != nil {
			writeFallback(w, requestID)
		}
	}()

	resp, de := ew.BuildResponse(err, requestID)

	fields := map[string]any{
		"status":  resp.Status,
		"code":    resp.Error,
		"kind":    de.Kind.String(),
		"message": resp.Message,
	}
	if de.Err != nil {
		fields["cause"] = de.Err.Error()
	}
	if ew.includeTrace {
		fields["stack"] = de.Stack()
	}
	ew.logger.Error(ctx, "error:handled", fields, requestID)

	body, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		writeFallback(w, requestID)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set(HeaderRequestID, requestID)
	if retryAfter, ok := de.RetryAfter(); ok {
		h.Set("Retry-After", strconv.Itoa(retryAfter))
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(append(body, '\n'))
}

func writeFallback(w http.ResponseWriter, requestID string) {
	defer func() { _ = recover() }()
	body, _ := json.Marshal(ErrorResponse{
		RequestID: requestID,
		Status:    http.StatusInternalServerError,
		Error:     dErrors.CodeInternal,
		Message:   dErrors.MessageInternal,
	})
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(HeaderRequestID, requestID)
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write(body)
}
