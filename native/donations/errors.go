package donations

import "errors"

var (
	ErrAlreadyInitialized = errors.New("donations: registry already initialized")
	ErrNotAuthorized      = errors.New("donations: not authorized")
	ErrPaused             = errors.New("donations: donations are paused")
	ErrInvalidAmount      = errors.New("donations: amount must be positive")
	ErrInsufficientFunds  = errors.New("donations: insufficient funds")
	ErrOverflow           = errors.New("donations: arithmetic overflow")
	ErrFieldTooLong       = errors.New("donations: field too long")
	ErrNotFound           = errors.New("donations: record not found")
	ErrNotInitialized     = errors.New("donations: registry not initialized")
	ErrInvalidDonorIndex  = errors.New("donations: donor index inconsistent with donor")
	ErrInvalidAccount     = errors.New("donations: unexpected account")
	ErrUnknownInstruction = errors.New("donations: unknown instruction")
)

// ErrorCodeBase is the first custom program error code.
const ErrorCodeBase = 6000

var errorTable = []struct {
	err  error
	name string
}{
	{ErrAlreadyInitialized, "AlreadyInitialized"},
	{ErrNotAuthorized, "NotAuthorized"},
	{ErrPaused, "Paused"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrInsufficientFunds, "InsufficientFunds"},
	{ErrOverflow, "Overflow"},
	{ErrFieldTooLong, "FieldTooLong"},
	{ErrNotFound, "NotFound"},
	{ErrNotInitialized, "NotInitialized"},
	{ErrInvalidDonorIndex, "InvalidDonorIndex"},
	{ErrInvalidAccount, "InvalidAccount"},
	{ErrUnknownInstruction, "UnknownInstruction"},
}

// ErrorCode maps a registry error, possibly wrapped, to its stable numeric
// code and name. ok is false for errors that did not originate in the
// registry.
func ErrorCode(err error) (code uint32, name string, ok bool) {
	if err == nil {
		return 0, "", false
	}
	for i, entry := range errorTable {
		if errors.Is(err, entry.err) {
			return ErrorCodeBase + uint32(i), entry.name, true
		}
	}
	return 0, "", false
}
