package mq

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is a stable numeric error identifier, useful for grepping logs or
// dashboards by code across deployments without depending on Message text.
type Code int

const (
	CodeConnectionFailed               Code = 1
	CodeUnsupportedProtocolVersion     Code = 2
	CodeIdentifierRejected             Code = 3
	CodeBrokerUnavailable              Code = 4
	CodeBadCredentials                 Code = 5
	CodeNotAuthorized                  Code = 6
	CodeTXFailure                      Code = 101
	CodeRXFailure                      Code = 102
	CodeUnexpectedConnack              Code = 201
	CodeUnexpectedPubackOrUnsuback     Code = 202
	CodeUnexpectedSuback               Code = 203
	CodeUnexpectedPubrel               Code = 204
	CodeUnexpectedPubrec               Code = 205
	CodeUnexpectedPubcomp              Code = 206
	CodeNotConnected                   Code = 300
	CodeSocketError                    Code = 1000
	CodeTLSError                       Code = 2000
)

// Kind groups errors the way callers are expected to branch on. A single
// Kind may be raised with different Codes.
type Kind int

const (
	KindConfigurationInvalid Kind = iota
	KindConnectingToBrokerFailed
	KindDataTransfer
	KindNotConnected
	KindProtocolViolation
	KindUnexpectedAcknowledgement
	KindRepository
	KindTopicNotSubscribed
	KindProtocolNotSupported
)

func (k Kind) String() string {
	switch k {
	case KindConfigurationInvalid:
		return "configuration invalid"
	case KindConnectingToBrokerFailed:
		return "connecting to broker failed"
	case KindDataTransfer:
		return "data transfer"
	case KindNotConnected:
		return "not connected"
	case KindProtocolViolation:
		return "protocol violation"
	case KindUnexpectedAcknowledgement:
		return "unexpected acknowledgement"
	case KindRepository:
		return "repository"
	case KindTopicNotSubscribed:
		return "topic not subscribed"
	case KindProtocolNotSupported:
		return "protocol not supported"
	default:
		return "unknown"
	}
}

// Error is the single error type this module returns. Kind is for
// programmatic branching (errors.As into *Error, switch on Kind), Code is
// the legacy numeric identifier, Message is human-readable detail.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("mqtt: %s (code %04d): %s: %v", e.Kind, e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("mqtt: %s (code %04d): %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets callers write errors.Is(err, &Error{Code: mq.CodeNotConnected}).
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && e.Code == other.Code
}

func newErr(kind Kind, code Code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// wrapErr attaches cause with a stack trace captured at the call site,
// grounded on the pkg/errors idiom for preserving fatal, loop-terminating
// failures (codec malformed-packet and transport errors) with a trace.
func wrapErr(kind Kind, code Code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, cause: errors.WithStack(cause)}
}
