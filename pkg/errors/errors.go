package errors

import "fmt"

type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Code extracts the error code from an AppError, or ErrCodeInternalError
// for anything else.
func Code(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrCodeInternalError
}

// Is reports whether err is an AppError carrying the given code.
func Is(err error, code string) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}

// Common error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeAlreadyExists     = "ALREADY_EXISTS"
	ErrCodeInsufficientFunds = "INSUFFICIENT_FUNDS"
)

// Registry error codes
const (
	ErrCodeInvalidAddress        = "INVALID_ADDRESS"
	ErrCodeInvalidGameParameters = "INVALID_GAME_PARAMETERS"
	ErrCodeInvalidInstance       = "INVALID_INSTANCE"
)

// Game error codes
const (
	ErrCodeGameNotOpen         = "GAME_NOT_OPEN"
	ErrCodeGameNotInProgress   = "GAME_NOT_IN_PROGRESS"
	ErrCodeAlreadyJoined       = "ALREADY_JOINED"
	ErrCodePlayerLimitReached  = "PLAYER_LIMIT_REACHED"
	ErrCodeNotEnoughPlayers    = "NOT_ENOUGH_PLAYERS"
	ErrCodeInvalidBasename     = "INVALID_BASENAME"
	ErrCodeEmptyHandle         = "EMPTY_HANDLE"
	ErrCodeQuestionsNotSet     = "QUESTIONS_NOT_SET"
	ErrCodeQuestionsAlreadySet = "QUESTIONS_ALREADY_SET"
	ErrCodeInvalidQuestions    = "INVALID_QUESTION_COUNT"
	ErrCodeInvalidAnswer       = "INVALID_ANSWER"
	ErrCodeNotAPlayer          = "NOT_A_PLAYER"
	ErrCodeAlreadyEliminated   = "ALREADY_ELIMINATED"
	ErrCodeTimeoutNotReached   = "TIMEOUT_NOT_REACHED"
	ErrCodeInsufficientStake   = "INSUFFICIENT_STAKE"
	ErrCodeTransferFailed      = "TRANSFER_FAILED"
	ErrCodeNotAMinter          = "NOT_A_MINTER"
)
