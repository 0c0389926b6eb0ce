package workflow

import (
	"strings"

	"github.com/medvault/passkey/pkg/webauthn"
)

// Kind classifies a failed workflow operation. Every platform-call failure
// is mapped to one of these at the workflow boundary; no raw platform error
// reaches the caller.
type Kind string

const (
	// KindUnsupported: no platform credential API exists in this context.
	KindUnsupported Kind = "Unsupported"
	// KindBiometricUnavailable: the API exists but no platform authenticator is usable.
	KindBiometricUnavailable Kind = "BiometricUnavailable"
	// KindNotRegistered: no usable stored credential.
	KindNotRegistered Kind = "NotRegistered"
	// KindUserCancelled: the user dismissed the platform ceremony.
	KindUserCancelled Kind = "UserCancelled"
	// KindTimeout: the platform ceremony timed out.
	KindTimeout Kind = "Timeout"
	// KindAlreadyRegistered: the platform refused creation because a credential already exists.
	KindAlreadyRegistered Kind = "AlreadyRegistered"
	// KindNotSupportedConfiguration: the creation parameters are unsatisfiable on this platform.
	KindNotSupportedConfiguration Kind = "NotSupportedConfiguration"
	// KindSecurityContextError: the browsing context is not secure enough for credentials.
	KindSecurityContextError Kind = "SecurityContextError"
	// KindAborted: the platform call was aborted, or failed in an unclassifiable way.
	KindAborted Kind = "Aborted"
	// KindStorageWriteFailed: the persistence layer refused a write.
	KindStorageWriteFailed Kind = "StorageWriteFailed"
	// KindStorageVerificationFailed: the post-write read-back did not contain the credential.
	KindStorageVerificationFailed Kind = "StorageVerificationFailed"
	// KindBusy: another registration or authentication is already in flight.
	KindBusy Kind = "Busy"
)

// Error is the single error type surfaced by workflow operations.
type Error struct {
	Kind    Kind
	Message string
	// NeedsRegistration directs the caller to re-register instead of
	// retrying authentication.
	NeedsRegistration bool

	cause error
}

func newError(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
	}
}

func (e *Error) Error() string {
	return "workflow: " + string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

type operation int

const (
	opCreate operation = iota
	opGet
)

// classifyPlatformError maps a native platform failure to a surfaced kind
// with a user-presentable message. InvalidState and NotSupported only carry
// their specific meanings on creation.
func classifyPlatformError(op operation, err error) *Error {
	pe, ok := webauthn.AsPlatformError(err)
	if !ok {
		return &Error{Kind: KindAborted, Message: "the platform call failed", cause: err}
	}

	var (
		kind    Kind
		message string
	)
	switch pe.Name {
	case webauthn.ErrNameTimeout:
		kind, message = KindTimeout, "the operation timed out"
	case webauthn.ErrNameNotAllowed:
		lower := strings.ToLower(pe.Message)
		if strings.Contains(lower, "timed out") || strings.Contains(lower, "timeout") {
			kind, message = KindTimeout, "the operation timed out"
		} else {
			kind, message = KindUserCancelled, "the operation was cancelled"
		}
	case webauthn.ErrNameInvalidState:
		if op == opCreate {
			kind, message = KindAlreadyRegistered, "a credential is already registered on this device"
		} else {
			kind, message = KindAborted, "the platform call failed"
		}
	case webauthn.ErrNameNotSupported:
		if op == opCreate {
			kind, message = KindNotSupportedConfiguration, "the requested configuration is not supported"
		} else {
			kind, message = KindAborted, "the platform call failed"
		}
	case webauthn.ErrNameSecurity:
		kind, message = KindSecurityContextError, "a secure context is required"
	case webauthn.ErrNameAbort:
		kind, message = KindAborted, "the operation was aborted"
	default:
		kind, message = KindAborted, "the platform call failed"
	}

	return &Error{Kind: kind, Message: message, cause: err}
}
