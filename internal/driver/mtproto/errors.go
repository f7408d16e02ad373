package mtproto

import (
	"fmt"
	"strings"
	"time"

	"github.com/gotd/td/tgerr"
)

// ErrorKind classifies an RPC failure for callers deciding whether to retry.
type ErrorKind string

const (
	// ErrorKindUnknown is an unclassified failure.
	ErrorKindUnknown ErrorKind = "unknown"
	// ErrorKindRateLimited means the server asked to wait (FLOOD_WAIT).
	ErrorKindRateLimited ErrorKind = "rate_limited"
	// ErrorKindTemporary means the same call may succeed later.
	ErrorKindTemporary ErrorKind = "temporary"
	// ErrorKindPermanent means the call is rejected as made.
	ErrorKindPermanent ErrorKind = "permanent"
)

// RPCError is a classified MTProto call failure.
type RPCError struct {
	Operation  string
	Kind       ErrorKind
	Code       int
	Type       string
	RetryAfter time.Duration
	Cause      error
}

func (e *RPCError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram %s: %s (retry after %s): %v", e.Operation, e.Kind, e.RetryAfter, e.Cause)
	}

	return fmt.Sprintf("telegram %s: %s: %v", e.Operation, e.Kind, e.Cause)
}

func (e *RPCError) Unwrap() error {
	return e.Cause
}

// mapRPCError wraps err with its classification.
func mapRPCError(operation string, err error) error {
	if err == nil {
		return nil
	}

	rpcErr := &RPCError{
		Operation: operation,
		Kind:      ErrorKindUnknown,
		Cause:     err,
	}

	if retryAfter, ok := tgerr.AsFloodWait(err); ok {
		rpcErr.Kind = ErrorKindRateLimited
		rpcErr.RetryAfter = retryAfter
		if typed, hasRPC := tgerr.As(err); hasRPC {
			rpcErr.Code = typed.Code
			rpcErr.Type = typed.Type
		}
		return rpcErr
	}

	typed, ok := tgerr.As(err)
	if !ok {
		return rpcErr
	}
	rpcErr.Code = typed.Code
	rpcErr.Type = typed.Type
	rpcErr.Kind = classifyRPCError(typed)

	return rpcErr
}

func classifyRPCError(rpcErr *tgerr.Error) ErrorKind {
	errorType := strings.ToUpper(strings.TrimSpace(rpcErr.Type))
	if rpcErr.Code == 420 || rpcErr.Code == 429 || strings.Contains(errorType, "FLOOD") {
		return ErrorKindRateLimited
	}

	switch {
	case rpcErr.Code == 303:
		return ErrorKindTemporary
	case rpcErr.Code >= 400 && rpcErr.Code <= 406:
		return ErrorKindPermanent
	case rpcErr.Code >= 500:
		return ErrorKindTemporary
	default:
		return ErrorKindUnknown
	}
}
