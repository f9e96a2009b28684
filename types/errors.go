package types

import "fmt"

// ErrorCode enumerates the core's error kinds (spec §7). Errors never
// escape as exceptions; handler methods return one of these directly and
// only the orchestrator translates it into a wire Ack/Nack plus a logged
// reason.
type ErrorCode string

const (
	ErrIdentityInvalid         ErrorCode = "IDENTITY_INVALID"
	ErrSignatureInvalid        ErrorCode = "SIGNATURE_INVALID"
	ErrSizeSignatureInvalid    ErrorCode = "SIZE_SIGNATURE_INVALID"
	ErrRequestSignatureInvalid ErrorCode = "REQUEST_SIGNATURE_INVALID"

	ErrChunkInfoInvalidName      ErrorCode = "CHUNK_INFO_INVALID_NAME"
	ErrChunkInfoInvalidSize      ErrorCode = "CHUNK_INFO_INVALID_SIZE"
	ErrChunkInfoNoActiveWatchers ErrorCode = "CHUNK_INFO_NO_ACTIVE_WATCHERS"

	ErrAccountNotFound       ErrorCode = "ACCOUNT_NOT_FOUND"
	ErrAccountExists         ErrorCode = "ACCOUNT_EXISTS"
	ErrAccountNotEnoughSpace ErrorCode = "ACCOUNT_NOT_ENOUGH_SPACE"
	ErrAccountWrongField     ErrorCode = "ACCOUNT_WRONG_ACCOUNT_FIELD"
	ErrAccountDeleteFailed   ErrorCode = "ACCOUNT_DELETE_FAILED"

	ErrAmendAccountTypeError    ErrorCode = "AMEND_ACCOUNT_TYPE_ERROR"
	ErrAmendAccountCountError   ErrorCode = "AMEND_ACCOUNT_COUNT_ERROR"
	ErrAccountAmendmentNotFound ErrorCode = "ACCOUNT_AMENDMENT_NOT_FOUND"
	ErrAccountAmendmentUpdated  ErrorCode = "ACCOUNT_AMENDMENT_UPDATED"
	ErrAccountAmendmentFinished ErrorCode = "ACCOUNT_AMENDMENT_FINISHED"
	ErrAccountAmendmentPending  ErrorCode = "ACCOUNT_AMENDMENT_PENDING"

	ErrPrepNotFound        ErrorCode = "PREP_NOT_FOUND"
	ErrStoreFailed         ErrorCode = "STORE_FAILED"
	ErrInsufficientSpace   ErrorCode = "INSUFFICIENT_SPACE"
	ErrNotFromClosestGroup ErrorCode = "NOT_FROM_CLOSEST_GROUP"

	ErrNotInitialised ErrorCode = "NOT_INITIALISED"
)

// CoreError is the concrete error value every handler method in this
// module returns. It carries a stable Code for logging/metrics plus a
// human-readable Msg.
type CoreError struct {
	Code ErrorCode
	Msg  string
}

func (e *CoreError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// NewError constructs a CoreError for the given code.
func NewError(code ErrorCode, msg string) *CoreError {
	return &CoreError{Code: code, Msg: msg}
}

// CodeOf extracts the ErrorCode from err if it is a *CoreError, or "" otherwise.
func CodeOf(err error) ErrorCode {
	if ce, ok := err.(*CoreError); ok && ce != nil {
		return ce.Code
	}
	return ""
}
