package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/appetiteclub/appetite-client/internal/order"
)

// Kind groups failures by how the user should react to them.
type Kind string

const (
	KindNetwork       Kind = "network"
	KindTimeout       Kind = "timeout"
	KindAuthorization Kind = "authorization"
	KindValidation    Kind = "validation"
	KindServer        Kind = "server"
)

// ErrInvalidInput is wrapped by client-side validation failures.
var ErrInvalidInput = errors.New("invalid input")

// Error is a failed call to the backend.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Fields  map[string][]string
	Err     error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("api %s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("api %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies any error produced by this module.
func KindOf(err error) Kind {
	var apiErr *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &apiErr):
		return apiErr.Kind
	case errors.Is(err, order.ErrNotAllowed):
		return KindAuthorization
	case errors.Is(err, order.ErrMotiveTooShort), errors.Is(err, ErrInvalidInput):
		return KindValidation
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	return KindServer
}

// Banner is the dismissible message shown next to the affected view.
type Banner struct {
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
}

var friendlyMessages = map[string]string{
	"Authentication credentials were not provided.":      "Your session is missing, sign in again.",
	"Given token not valid for any token type":           "Your session has expired, sign in again.",
	"You do not have permission to perform this action.": "Your role cannot perform this action.",
	"Not found.":                                         "The order no longer exists.",
	"Transición no permitida":                            "That status change is not permitted for this order.",
}

var suggestions = map[Kind]string{
	KindNetwork:       "Check the connection and refresh the queue.",
	KindTimeout:       "The server is taking too long. Try again in a moment.",
	KindAuthorization: "Ask an administrator for the required role.",
	KindValidation:    "Review the highlighted fields and try again.",
	KindServer:        "Refresh the queue; if it persists contact support.",
}

// Describe turns err into a Banner. Server messages are shown verbatim unless
// a friendlier phrase is known.
func Describe(err error) Banner {
	if err == nil {
		return Banner{}
	}

	kind := KindOf(err)
	msg := err.Error()

	var apiErr *Error
	if errors.As(err, &apiErr) {
		msg = apiErr.Message
	}
	if friendly, ok := friendlyMessages[msg]; ok {
		msg = friendly
	}

	return Banner{
		Kind:       kind,
		Message:    msg,
		Suggestion: suggestions[kind],
	}
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuthorization
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return KindTimeout
	}
	return KindServer
}

// flattenFields renders a field-keyed validation map in a stable order.
func flattenFields(fields map[string][]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(fields[k], " ")))
	}
	return strings.Join(parts, "; ")
}
