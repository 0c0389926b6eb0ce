package webauthn

import "errors"

// DOMException names surfaced by platform credential APIs.
const (
	ErrNameNotAllowed   = "NotAllowedError"
	ErrNameInvalidState = "InvalidStateError"
	ErrNameNotSupported = "NotSupportedError"
	ErrNameSecurity     = "SecurityError"
	ErrNameAbort        = "AbortError"
	ErrNameTimeout      = "TimeoutError"
	ErrNameUnknown      = "UnknownError"
)

// PlatformError is the error shape every platform authenticator
// implementation must return: a DOMException-style name plus a free-form
// message. The workflow classifies failures by Name and never lets a
// PlatformError escape to its callers.
type PlatformError struct {
	Name    string
	Message string
}

func NewPlatformError(name, message string) *PlatformError {
	return &PlatformError{
		Name:    name,
		Message: message,
	}
}

func (e *PlatformError) Error() string {
	if e.Message != "" {
		return e.Name + ": " + e.Message
	}
	return e.Name
}

// AsPlatformError unwraps err into a PlatformError, if it is one.
func AsPlatformError(err error) (*PlatformError, bool) {
	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
