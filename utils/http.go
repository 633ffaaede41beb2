// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utils

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alexliesenfeld/health"
	"github.com/google/uuid"
	"github.com/luxfi/log"
)

// RequestIDHeader carries the id of a request through the HTTP services.
const RequestIDHeader = "X-Request-Id"

type requestIDKey struct{}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON writes body as a 200 JSON response.
func WriteJSON(logger log.Logger, w http.ResponseWriter, body any) {
	resp, err := json.Marshal(body)
	if err != nil {
		msg := "Failed to marshal response"
		logger.Error(msg, log.Err(err))
		WriteJSONError(logger, w, http.StatusInternalServerError, msg)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(resp); err != nil {
		logger.Error("Error writing response", log.Err(err))
	}
}

// DecodeJSON reads at most limit bytes of JSON from r into v. On failure it
// writes a 413 or 400 response and returns false.
func DecodeJSON(logger log.Logger, w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit)).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		logger.Warn("Request body too large", log.Int64("limit", tooLarge.Limit))
		WriteJSONError(logger, w, http.StatusRequestEntityTooLarge, "Request body too large")
		return false
	}
	msg := "Could not decode request body"
	logger.Warn(msg, log.Err(err))
	WriteJSONError(logger, w, http.StatusBadRequest, msg)
	return false
}

func WriteJSONError(
	logger log.Logger,
	w http.ResponseWriter,
	httpStatusCode int,
	errorMsg string,
) {
	resp, err := json.Marshal(ErrorResponse{Error: errorMsg})
	if err != nil {
		msg := "Error marshalling JSON error response"
		logger.Error(msg, log.Err(err))
		resp = []byte(msg)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)

	if _, err = w.Write(resp); err != nil {
		logger.Error("Error writing error response", log.Err(err))
	}
}

// HealthHandler reports up while checkFunc succeeds.
func HealthHandler(name string, checkFunc func(context.Context) error) http.Handler {
	healthChecker := health.NewChecker(
		health.WithCheck(health.Check{
			Name:  name,
			Check: checkFunc,
		}),
	)
	return health.NewHandler(healthChecker)
}

// WithRequestID tags each request with the id in its X-Request-Id header,
// generating a UUID when absent, and echoes it on the response.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the id WithRequestID attached to ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
