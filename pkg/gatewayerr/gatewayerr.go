// Package gatewayerr defines the closed set of error kinds the gateway
// surfaces to callers, and the mapping from those kinds to HTTP status
// codes and duplex-socket close codes.
package gatewayerr

import (
	"errors"
	"fmt"
)

// Kind is a closed enumeration of the error categories the gateway
// distinguishes at its boundaries.
type Kind string

const (
	// BadRequest covers malformed submissions, invalid cancel targets,
	// and unknown message types. Reported to the caller, not logged at
	// error level.
	BadRequest Kind = "bad_request"
	// NotFound covers absent job, machine, or worker ids.
	NotFound Kind = "not_found"
	// AuthFailure covers a token mismatch. Closes the connection or
	// returns 401.
	AuthFailure Kind = "auth_failure"
	// StoreFailure covers an underlying store error. Surfaced to the
	// caller as 500 with the message text, and logged.
	StoreFailure Kind = "store_failure"
	// DecodeFailure covers malformed JSON in a subscription message.
	// Logged and reported back on duplex connections; silent on
	// pub/sub traffic (the message is discarded, optionally with an
	// anomaly log).
	DecodeFailure Kind = "decode_failure"
	// SendFailure covers a failed write to a subscriber. The affected
	// connection is evicted; delivery continues for other recipients.
	SendFailure Kind = "send_failure"
)

// Error is the gateway's error type: a closed Kind plus a wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs an Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind, wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is a gatewayerr.Error of the given kind.
func Is(err error, kind Kind) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err if it is a gatewayerr.Error, and
// StoreFailure otherwise (the conservative default for an error this
// package didn't originate).
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return StoreFailure
}

// HTTPStatus maps a Kind to the status code the ingress surface returns
// for it (§7).
func HTTPStatus(kind Kind) int {
	switch kind {
	case BadRequest, DecodeFailure:
		return 400
	case NotFound:
		return 404
	case AuthFailure:
		return 401
	default:
		return 500
	}
}

// WebSocketCloseCode maps a Kind to the duplex-socket close code used
// when the connection must be torn down for that reason (§6.2).
func WebSocketCloseCode(kind Kind) int {
	if kind == AuthFailure {
		return 1008
	}
	return 1011
}
