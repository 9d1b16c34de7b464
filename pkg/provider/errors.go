package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for provider operations.
var (
	// ErrNotFound indicates the requested object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrAccessDenied indicates insufficient permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrBucketNotFound indicates the bucket or storage zone does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrInvalidCredentials indicates authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrProviderUnavailable indicates the provider service is unavailable.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrThrottled indicates the request was rate limited by the provider.
	ErrThrottled = errors.New("request throttled")
)

// ProviderError wraps provider-specific errors with context.
type ProviderError struct {
	// Op is the operation that failed (e.g., "List", "Remove").
	Op string

	// Provider is the provider type (e.g., "zone").
	Provider ProviderType

	// Bucket is the bucket or storage zone name, if applicable.
	Bucket string

	// Key is the object key, if applicable.
	Key string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %s/%s: %v", e.Provider, e.Op, e.Bucket, trimLeadingSlashes(e.Key), e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Bucket, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// TransportError reports a non-success HTTP status from a storage backend.
//
// Body holds the response body when the backend declared it as JSON and it
// parsed; it is nil otherwise.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int
	StatusText string
	Body       json.RawMessage
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, e.StatusText)
	if len(e.Body) > 0 {
		msg += ": " + string(e.Body)
	}
	return msg
}

// Unwrap classifies the status code onto the sentinel errors, so callers can
// use IsNotFound and friends on transport failures.
func (e *TransportError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusUnauthorized:
		return ErrInvalidCredentials
	case e.StatusCode == http.StatusForbidden:
		return ErrAccessDenied
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrThrottled
	case e.StatusCode >= 500:
		return ErrProviderUnavailable
	}
	return nil
}

// HasBody reports whether a JSON error body was captured.
func (e *TransportError) HasBody() bool {
	return len(e.Body) > 0
}

// DecodeBody unmarshals the captured JSON error body into v.
func (e *TransportError) DecodeBody(v any) error {
	if !e.HasBody() {
		return errors.New("transport error has no JSON body")
	}
	return json.Unmarshal(e.Body, v)
}

// PreserveRootError reports an attempt to delete the root key while the root
// guard is enabled. No request is sent when it is returned.
type PreserveRootError struct {
	Key string
}

// Error implements the error interface.
func (e *PreserveRootError) Error() string {
	return fmt.Sprintf("refusing to remove root key %q while root is preserved", e.Key)
}

// UnknownContentTypeError reports a listing response that was not JSON.
type UnknownContentTypeError struct {
	ContentType string
}

// Error implements the error interface.
func (e *UnknownContentTypeError) Error() string {
	if e.ContentType == "" {
		return "unknown content type: response has no Content-Type"
	}
	return fmt.Sprintf("unknown content type: %q", e.ContentType)
}

// ResponseValidationError reports a JSON response that does not match the
// expected shape.
//
// Index is the offending array element, or -1 when the document itself is
// malformed. Field is empty when the element or document as a whole has the
// wrong type.
type ResponseValidationError struct {
	Index    int
	Field    string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *ResponseValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid response: expected %s, got %s", e.Expected, e.Actual)
	}
	if e.Field == "" {
		return fmt.Sprintf("invalid response entry %d: expected %s, got %s", e.Index, e.Expected, e.Actual)
	}
	return fmt.Sprintf("invalid response entry %d: field %s: expected %s, got %s", e.Index, e.Field, e.Expected, e.Actual)
}

// InputValidationError reports malformed caller-supplied options.
type InputValidationError struct {
	Field   string
	Value   string
	Message string
}

// Error implements the error interface.
func (e *InputValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Message)
}

// IsNotFound returns true if the error indicates an object was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAccessDenied returns true if the error indicates insufficient permissions.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsBucketNotFound returns true if the error indicates the bucket does not exist.
func IsBucketNotFound(err error) bool {
	return errors.Is(err, ErrBucketNotFound)
}

// IsInvalidCredentials returns true if the error indicates authentication failed.
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}

// IsProviderUnavailable returns true if the error indicates the provider service is unavailable.
func IsProviderUnavailable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}

// IsThrottled returns true if the error indicates the request was rate limited.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}

// IsPreserveRoot returns true if the error is a refused root deletion.
func IsPreserveRoot(err error) bool {
	var target *PreserveRootError
	return errors.As(err, &target)
}

// IsInputValidation returns true if the error reports malformed options.
func IsInputValidation(err error) bool {
	var target *InputValidationError
	return errors.As(err, &target)
}

// IsInvalidResponse returns true if the backend answered with an unexpected
// content type or shape.
func IsInvalidResponse(err error) bool {
	var ct *UnknownContentTypeError
	var rv *ResponseValidationError
	return errors.As(err, &ct) || errors.As(err, &rv)
}
