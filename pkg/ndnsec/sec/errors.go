// Package sec defines the shared error taxonomy threaded through every
// validation callback in the module. It plays the role that
// knative.dev/pkg/apis.FieldError plays for the teacher repo: a single sum
// type carried through call chains instead of bare error strings.
package sec

import "fmt"

// Code is one of the validation-error kinds shared across callbacks.
// Values below 256 are reserved for the taxonomy defined here; a caller may
// mint its own application codes starting at 256.
type Code int

const (
	// CodeUnspecified is the zero value and is never produced by this
	// package; its presence on an Error indicates a programmer error.
	CodeUnspecified Code = iota
	CodeNoSignature
	CodeInvalidSignature
	CodeCannotRetrieveCertificate
	CodeExpiredCertificate
	CodeLoopDetected
	CodeMalformedCertificate
	CodeExceededDepthLimit
	CodeInvalidKeyLocator
	CodePolicyError
	CodeImplementationError
)

// FirstUserCode is the lowest code value an application may define for its
// own purposes without colliding with this taxonomy.
const FirstUserCode Code = 256

func (c Code) String() string {
	switch c {
	case CodeNoSignature:
		return "NO_SIGNATURE"
	case CodeInvalidSignature:
		return "INVALID_SIGNATURE"
	case CodeCannotRetrieveCertificate:
		return "CANNOT_RETRIEVE_CERTIFICATE"
	case CodeExpiredCertificate:
		return "EXPIRED_CERTIFICATE"
	case CodeLoopDetected:
		return "LOOP_DETECTED"
	case CodeMalformedCertificate:
		return "MALFORMED_CERTIFICATE"
	case CodeExceededDepthLimit:
		return "EXCEEDED_DEPTH_LIMIT"
	case CodeInvalidKeyLocator:
		return "INVALID_KEY_LOCATOR"
	case CodePolicyError:
		return "POLICY_ERROR"
	case CodeImplementationError:
		return "IMPLEMENTATION_ERROR"
	default:
		if c >= FirstUserCode {
			return fmt.Sprintf("USER_CODE(%d)", int(c))
		}
		return "UNSPECIFIED"
	}
}

// Error is the single sum type carried by every failure callback. It is
// intentionally not wrapped in Go's error-chain machinery beyond Unwrap,
// because validation outcomes are reported by code, not by type-switching
// on a tree of concrete error types.
type Error struct {
	Code Code
	Info string
	err  error // optional underlying cause, for %w-style unwrapping
}

func New(code Code, info string) *Error {
	return &Error{Code: code, Info: info}
}

func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Info: fmt.Sprintf(format, args...)}
}

// Wrap attaches an underlying cause while keeping the taxonomy code.
func Wrap(code Code, cause error, info string) *Error {
	return &Error{Code: code, Info: info, err: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Info == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Info)
}

func (e *Error) Unwrap() error { return e.err }

// Is allows errors.Is(err, sec.New(CodeLoopDetected, "")) to match purely on
// Code, ignoring Info, the way callers actually want to compare outcomes.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}
