// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

package remote

import (
	"errors"
	"fmt"
)

// Result is the remote service's result code for a failed operation.
type Result int

const (
	ResultFail                 Result = 2
	ResultNoConnection         Result = 3
	ResultInvalidPassword      Result = 5
	ResultAccessDenied         Result = 15
	ResultServiceUnavailable   Result = 20
	ResultExpired              Result = 27
	ResultLogonSessionReplaced Result = 34
	ResultRateLimitExceeded    Result = 84
	ResultInvalidSignature     Result = 119
)

func (r Result) String() string {
	switch r {
	case ResultFail:
		return "Fail"
	case ResultNoConnection:
		return "NoConnection"
	case ResultInvalidPassword:
		return "InvalidPassword"
	case ResultServiceUnavailable:
		return "ServiceUnavailable"
	case ResultLogonSessionReplaced:
		return "LogonSessionReplaced"
	case ResultAccessDenied:
		return "AccessDenied"
	case ResultRateLimitExceeded:
		return "RateLimitExceeded"
	case ResultExpired:
		return "Expired"
	case ResultInvalidSignature:
		return "InvalidSignature"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Error is a failure reported by the remote service.
type Error struct {
	Result  Result
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Result.String()
	}
	return fmt.Sprintf("%s: %s", e.Result, e.Message)
}

// NewError creates an Error for result.
func NewError(result Result, message string) *Error {
	return &Error{Result: result, Message: message}
}

// ResultOf extracts the Result from err, reporting false when err does not
// carry one.
func ResultOf(err error) (Result, bool) {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Result, true
	}
	return 0, false
}
