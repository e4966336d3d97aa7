// Package http provides HTTP server and handler implementations.
//
// This file builds the HTMX replies of the estimate page: a status, an HTML
// fragment to swap in, and the HX-Trigger events app.js listens for.

package http

import (
	"html/template"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"retire/internal/diagnostics"
)

// Events raised through HX-Trigger.
const (
	eventCalculationCompleted = "calculation:completed"
	eventShowNotification     = "show-notification"
)

const (
	rateLimitMessage = "Rate limit exceeded. Please try again later."
	notFoundMessage  = "Page not found."

	errorNotificationTTL = 5 * time.Second
)

// HTMXResponseBuilder assembles one HTMX reply. Builders are single use.
type HTMXResponseBuilder struct {
	status int
	header http.Header
	events map[string]any
	body   []byte
}

// NewHTMXResponse starts a 200 reply with no body.
func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		status: http.StatusOK,
		header: make(http.Header),
		events: make(map[string]any),
	}
}

func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.status = code
	return b
}

func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.header.Set(name, value)
	return b
}

// Trigger raises a client event; data becomes the event detail.
func (b *HTMXResponseBuilder) Trigger(event string, data any) *HTMXResponseBuilder {
	b.events[event] = data
	return b
}

// TriggerCalculationCompleted tells the page a calculation was recorded so
// it can refresh the recent calculations panel.
func (b *HTMXResponseBuilder) TriggerCalculationCompleted(id string, outcome diagnostics.Outcome) *HTMXResponseBuilder {
	return b.Trigger(eventCalculationCompleted, map[string]string{
		"id":      id,
		"outcome": string(outcome),
	})
}

// TriggerErrorNotification shows message as an error toast. Used for
// replies htmx does not swap into the page.
func (b *HTMXResponseBuilder) TriggerErrorNotification(message string) *HTMXResponseBuilder {
	return b.Trigger(eventShowNotification, map[string]any{
		"type":     "error",
		"message":  message,
		"duration": errorNotificationTTL.Milliseconds(),
	})
}

// HTML sets an already rendered fragment as the body.
func (b *HTMXResponseBuilder) HTML(fragment string) *HTMXResponseBuilder {
	b.header.Set("Content-Type", "text/html; charset=utf-8")
	b.body = []byte(fragment)
	return b
}

// Write sends the reply. A trigger set that fails to encode is dropped so
// the body still reaches the page.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	h := w.Header()
	for name, values := range b.header {
		h[name] = values
	}
	if len(b.events) > 0 {
		if encoded, err := json.Marshal(b.events); err == nil {
			h.Set("HX-Trigger", string(encoded))
		}
	}
	w.WriteHeader(b.status)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// errorFragment renders message, escaped, in the page's alert box.
func errorFragment(message string) string {
	return `<div class="error" role="alert">` + template.HTMLEscapeString(message) + `</div>`
}

// ErrorResponse replies with status and message in an alert box.
func ErrorResponse(status int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().Status(status).HTML(errorFragment(message))
}

func BadRequestError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func InternalServerError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// MethodNotAllowedError replies 405 listing the accepted methods.
func MethodNotAllowedError(allowed string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(http.StatusMethodNotAllowed).
		Header("Allow", allowed)
}

// TooManyRequestsError replies 429. htmx does not swap it, so the message is
// also raised as an error notification.
func TooManyRequestsError(retryAfter string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, rateLimitMessage).
		Header("Retry-After", retryAfter).
		TriggerErrorNotification(rateLimitMessage)
}

// EstimateResponse replies to a form estimate with the rendered result
// fragment: 200 on success, 422 when the calculation failed. Both outcomes
// raise calculation:completed since both were recorded.
func EstimateResponse(view resultView, fragment string) *HTMXResponseBuilder {
	status, outcome := http.StatusOK, diagnostics.OutcomeSuccess
	if !view.OK {
		status, outcome = http.StatusUnprocessableEntity, diagnostics.OutcomeFailure
	}
	return NewHTMXResponse().
		Status(status).
		TriggerCalculationCompleted(view.CalculationID, outcome).
		HTML(fragment)
}
