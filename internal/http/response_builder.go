// Package http exposes the expense services as a JSON API.
//
// This file holds the response builder and the error envelope. Every body is
// {"data": ..., "notification": ...} on success and {"error": ..., "notification": ...}
// on failure.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"gastos/internal/core"
	"gastos/internal/log"
)

type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
	NotificationInfo    NotificationType = "info"
)

// Notification is a transient toast for the SPA.
type Notification struct {
	Type       NotificationType `json:"type"`
	Message    string           `json:"message"`
	DurationMs int              `json:"duration"`
}

type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type envelope struct {
	Data         any           `json:"data,omitempty"`
	Error        *errorBody    `json:"error,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building API responses.
type JSONResponseBuilder struct {
	statusCode int
	body       envelope
	headers    map[string]string
}

func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.body.Data = v
	return b
}

func (b *JSONResponseBuilder) Notify(typ NotificationType, message string, durationMs int) *JSONResponseBuilder {
	b.body.Notification = &Notification{Type: typ, Message: message, DurationMs: durationMs}
	return b
}

func (b *JSONResponseBuilder) SuccessNotification(message string) *JSONResponseBuilder {
	return b.Notify(NotificationSuccess, message, 3000)
}

func (b *JSONResponseBuilder) WarningNotification(message string) *JSONResponseBuilder {
	return b.Notify(NotificationWarning, message, 5000)
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Fail turns the response into an error envelope with an error notification.
func (b *JSONResponseBuilder) Fail(kind, message string) *JSONResponseBuilder {
	b.body.Data = nil
	b.body.Error = &errorBody{Type: kind, Message: message}
	return b.Notify(NotificationError, message, 5000)
}

func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

// errUnauthenticated is returned when the auth proxy did not identify the caller.
var errUnauthenticated = errors.New("unauthenticated")

// errMalformed marks input that could not be decoded at all, as opposed to decoded
// input that failed validation.
var errMalformed = fmt.Errorf("%w: malformed request", core.ErrInvalidInput)

// classify maps an error onto its HTTP status, the envelope type and a message
// safe to show to the caller.
func classify(err error) (status int, kind, message string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "invalid_input", "request body too large"
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated", "missing user identity"
	case errors.Is(err, errMalformed):
		return http.StatusBadRequest, "invalid_input", err.Error()
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusUnprocessableEntity, "invalid_input", err.Error()
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, core.ErrPersistence):
		return http.StatusBadGateway, "persistence", "storage is unavailable, try again later"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}

// ErrorResponse builds the envelope for err.
func ErrorResponse(err error) *JSONResponseBuilder {
	status, kind, message := classify(err)
	return NewJSONResponse().Status(status).Fail(kind, message)
}

// writeError logs server-side failures with the request logger and writes the
// envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind, _ := classify(err)
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.NewFields().
				WithHTTPRequest(r.Method, r.URL.Path, "", "").
				WithError(err, kind).
				ToSlice()...)
	}
	ErrorResponse(err).Write(w)
}

func writeData(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Data(v).Write(w)
}
