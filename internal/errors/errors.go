// Package errors defines the node's typed error taxonomy: a small closed
// set of Kinds that every component returns instead of ad-hoc error
// strings, so callers (HTTP handlers especially) can map failures to the
// right status code without string matching.
//
// Shape mirrors a Code/Message/WrappedErr triple with Is/As/Unwrap, minus
// the gRPC status-code and protobuf plumbing this node has no use for —
// there is no gRPC transport here.
package errors

import (
	"errors"
	"fmt"
)

// Kind enumerates the node's error taxonomy.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidAddress
	KindInvalidTransaction
	KindInsufficientBalance
	KindDuplicateTransaction
	KindInvalidBlock
	KindChainInvalid
	KindPeerUnreachable
	KindSyncSkipped
	KindStoreUnavailable
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindInvalidAddress:
		return "InvalidAddress"
	case KindInvalidTransaction:
		return "InvalidTransaction"
	case KindInsufficientBalance:
		return "InsufficientBalance"
	case KindDuplicateTransaction:
		return "DuplicateTransaction"
	case KindInvalidBlock:
		return "InvalidBlock"
	case KindChainInvalid:
		return "ChainInvalid"
	case KindPeerUnreachable:
		return "PeerUnreachable"
	case KindSyncSkipped:
		return "SyncSkipped"
	case KindStoreUnavailable:
		return "StoreUnavailable"
	case KindUnsupported:
		return "Unsupported"
	default:
		return "Unknown"
	}
}

// HTTPStatus maps a Kind to the HTTP status an API handler should return.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidAddress, KindInvalidTransaction, KindInsufficientBalance,
		KindDuplicateTransaction, KindInvalidBlock, KindChainInvalid,
		KindUnsupported:
		return 400
	case KindSyncSkipped:
		return 200
	case KindPeerUnreachable, KindStoreUnavailable:
		return 502
	default:
		return 500
	}
}

// Error is the node's single typed error value.
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

// New builds an *Error of the given kind, formatting Message like fmt.Sprintf.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and message to an existing error.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Wrapped == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Wrapped
}

// Is reports whether target carries the same Kind, matching through any
// wrapped chain of *Error values.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is is the package-level helper mirroring errors.Is, here specialized to
// compare by Kind rather than by pointer identity.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
