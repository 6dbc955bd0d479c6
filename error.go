package cascade

import "fmt"

type ErrorCode int

const (
	Unknown ErrorCode = iota
	// Unauthenticated means no credential or an unverifiable one.
	Unauthenticated
	// Forbidden means the credential is valid but scope/ticket-state forbids the operation.
	Forbidden
	// NotFound means the key is not owned by the realm, or the ticket/commit/depot is absent.
	NotFound
	// Gone is returned for expired tickets.
	Gone
	// MalformedRequest covers JSON/schema/path failures.
	MalformedRequest
	// HashMismatch means the submitted key does not equal the SHA-256 of the body.
	HashMismatch
	// MalformedNode covers node framing rejections.
	MalformedNode
	// SizeMismatch means a collection's declared size differs from the sum of its children.
	SizeMismatch
	// MissingChildren is a planned outcome of PutNode, not a failure: the
	// client should upload the listed children first and retry.
	MissingChildren
	// QuotaExceeded covers both realm and ticket quota rejections.
	QuotaExceeded
	// Conflict covers depot name collisions, duplicate root commits, version CAS losses and already-committed tickets.
	Conflict
	// Transient is store I/O that may succeed on retry.
	Transient
)

// String returns the snake_case wire name of the code.
func (c ErrorCode) String() string {
	switch c {
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case Gone:
		return "gone"
	case MalformedRequest:
		return "malformed_request"
	case HashMismatch:
		return "hash_mismatch"
	case MalformedNode:
		return "malformed_node"
	case SizeMismatch:
		return "size_mismatch"
	case MissingChildren:
		return "missing_nodes"
	case QuotaExceeded:
		return "quota_exceeded"
	case Conflict:
		return "conflict"
	case Transient:
		return "transient"
	}
	return "unknown"
}

// Cascade custom error. UserData carries detail payloads such as the missing
// children list or the remaining quota budget.
type Error struct {
	Code     ErrorCode
	Err      error
	UserData any
}

func (e Error) Error() string {
	return fmt.Errorf("error code: %d, user data: %v, details: %w", e.Code, e.UserData, e.Err).Error()
}

func (e Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the ErrorCode from err, or Unknown if err is not a cascade Error.
func CodeOf(err error) ErrorCode {
	if e, ok := err.(Error); ok {
		return e.Code
	}
	return Unknown
}
