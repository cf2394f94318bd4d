// Package errs holds the error taxonomy shared by every provider call.
//
// Callers branch on the concrete types with errors.As:
//   - ConfigurationError: a required setting is missing, caught before any network call
//   - CredentialError: the OAuth2 token exchange failed
//   - APIError: the provider answered with a non-2xx status
//   - EmptyResponseError: a 2xx answer carried no extractable text
//   - CancelledError: the caller's context ended the call
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ConfigurationError reports a missing or invalid setting.
type ConfigurationError struct {
	Provider string
	Field    string
	Reason   string
}

// Configuration builds a ConfigurationError.
func Configuration(provider, field, reason string) *ConfigurationError {
	return &ConfigurationError{Provider: provider, Field: field, Reason: reason}
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.Provider != "" {
		b.WriteString(" for provider ")
		b.WriteString(e.Provider)
	}
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	if e.Reason != "" {
		b.WriteString(" ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

// CredentialError reports a failed token acquisition.
type CredentialError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *CredentialError) Error() string {
	msg := "credential error"
	if e.Provider != "" {
		msg += " for provider " + e.Provider
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": token endpoint returned %d", e.StatusCode)
		if body := strings.TrimSpace(e.Body); body != "" {
			msg += ": " + body
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CredentialError) Unwrap() error { return e.Err }

// APIError is a classified non-2xx provider response.
type APIError struct {
	Provider   string
	StatusCode int
	Code       string
	Type       string
	Message    string
	RequestID  string
	Raw        []byte
}

func (e *APIError) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, "http %d", e.StatusCode)
	}

	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if msg != "" {
		if e.StatusCode != 0 {
			b.WriteString(": ")
		}
		b.WriteString(msg)
	}
	if e.Code != "" {
		b.WriteString(" (")
		b.WriteString(e.Code)
		b.WriteString(")")
	}
	if e.RequestID != "" {
		b.WriteString(" request_id=")
		b.WriteString(e.RequestID)
	}
	return b.String()
}

// IsAuth reports whether the provider rejected the credential.
func (e *APIError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// EmptyResponseError reports a successful response without extractable text.
type EmptyResponseError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *EmptyResponseError) Error() string {
	msg := "empty response"
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EmptyResponseError) Unwrap() error { return e.Err }

// CancelledError reports a caller-initiated abort. Err keeps the native cause
// (context.Canceled, context.DeadlineExceeded).
type CancelledError struct {
	Err error
}

func (e *CancelledError) Error() string {
	if e.Err != nil {
		return "request cancelled: " + e.Err.Error()
	}
	return "request cancelled"
}

func (e *CancelledError) Unwrap() error { return e.Err }

// IsConfiguration reports whether err is or wraps a ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsCredential reports whether err is or wraps a CredentialError.
func IsCredential(err error) bool {
	var target *CredentialError
	return errors.As(err, &target)
}

// IsEmptyResponse reports whether err is or wraps an EmptyResponseError.
func IsEmptyResponse(err error) bool {
	var target *EmptyResponseError
	return errors.As(err, &target)
}

// IsCancelled reports whether err is or wraps a CancelledError.
func IsCancelled(err error) bool {
	var target *CancelledError
	return errors.As(err, &target)
}

// AsAPIError returns the APIError carried by err, if any.
func AsAPIError(err error) (*APIError, bool) {
	var target *APIError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Code returns a short machine-readable tag for the kind of err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case IsConfiguration(err):
		return "configuration_error"
	case IsCredential(err):
		return "credential_error"
	case IsCancelled(err):
		return "cancelled"
	case IsEmptyResponse(err):
		return "empty_response"
	}
	if _, ok := AsAPIError(err); ok {
		return "upstream_error"
	}
	return "network_error"
}
