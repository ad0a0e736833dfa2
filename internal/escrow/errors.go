package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Code identifies one member of the closed escrow failure taxonomy. Every
// ledger failure is decoded into one of these; anything unparseable becomes
// CodeUnrecognized with the raw message attached.
type Code string

const (
	CodeWalletNotConnected    Code = "WalletNotConnected"
	CodeNetworkMismatch       Code = "NetworkMismatch"
	CodeBillExists            Code = "BillExists"
	CodeBillNotFound          Code = "BillNotFound"
	CodeBillClosed            Code = "BillClosed"
	CodeNotParticipant        Code = "NotParticipant"
	CodeNotCreator            Code = "NotCreator"
	CodeAlreadyPaid           Code = "AlreadyPaid"
	CodeAlreadyRefunded       Code = "AlreadyRefunded"
	CodeNotRefundable         Code = "NotRefundable"
	CodeIncorrectAmount       Code = "IncorrectAmount"
	CodeInsufficientFunds     Code = "InsufficientFunds"
	CodeUserRejected          Code = "UserRejected"
	CodeDeadlineNotReached    Code = "DeadlineNotReached"
	CodeNothingToSettle       Code = "NothingToSettle"
	CodeNoPayableParticipants Code = "NoPayableParticipants"
	CodeParticipantNotFound   Code = "ParticipantNotFound"
	CodeInvalidFunding        Code = "InvalidFunding"
	CodeUnrecognized          Code = "Unrecognized"
)

// Error is a classified escrow failure.
type Error struct {
	Code Code

	// Expected and Actual carry the amount mismatch for CodeIncorrectAmount.
	Expected *big.Int
	Actual   *big.Int

	// Raw is the underlying message for CodeUnrecognized, or extra context.
	Raw string
}

func (e *Error) Error() string {
	switch {
	case e.Code == CodeIncorrectAmount && e.Expected != nil && e.Actual != nil:
		return fmt.Sprintf("%s: expected %s, got %s", e.Code, e.Expected, e.Actual)
	case e.Raw != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Raw)
	default:
		return string(e.Code)
	}
}

// Is matches any *Error with the same code, so callers can compare against
// the exported sentinels with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// Sentinel values for errors.Is comparisons.
var (
	ErrWalletNotConnected    = &Error{Code: CodeWalletNotConnected}
	ErrNetworkMismatch       = &Error{Code: CodeNetworkMismatch}
	ErrBillExists            = &Error{Code: CodeBillExists}
	ErrBillNotFound          = &Error{Code: CodeBillNotFound}
	ErrBillClosed            = &Error{Code: CodeBillClosed}
	ErrNotParticipant        = &Error{Code: CodeNotParticipant}
	ErrNotCreator            = &Error{Code: CodeNotCreator}
	ErrAlreadyPaid           = &Error{Code: CodeAlreadyPaid}
	ErrAlreadyRefunded       = &Error{Code: CodeAlreadyRefunded}
	ErrNotRefundable         = &Error{Code: CodeNotRefundable}
	ErrInsufficientFunds     = &Error{Code: CodeInsufficientFunds}
	ErrUserRejected          = &Error{Code: CodeUserRejected}
	ErrDeadlineNotReached    = &Error{Code: CodeDeadlineNotReached}
	ErrNothingToSettle       = &Error{Code: CodeNothingToSettle}
	ErrNoPayableParticipants = &Error{Code: CodeNoPayableParticipants}
	ErrParticipantNotFound   = &Error{Code: CodeParticipantNotFound}
)

// IncorrectAmount builds the amount-mismatch failure with both values
// attached so callers can log them.
func IncorrectAmount(expected, actual *big.Int) *Error {
	return &Error{
		Code:     CodeIncorrectAmount,
		Expected: new(big.Int).Set(expected),
		Actual:   new(big.Int).Set(actual),
	}
}

// Unrecognized wraps a raw message that matched nothing in the taxonomy.
func Unrecognized(raw string) *Error {
	return &Error{Code: CodeUnrecognized, Raw: raw}
}

// CodeOf extracts the taxonomy code from err, or CodeUnrecognized.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnrecognized
}

// revertReasons maps the contract's revert strings onto taxonomy codes.
var revertReasons = map[string]Code{
	"bill exists":          CodeBillExists,
	"bill not found":       CodeBillNotFound,
	"bill closed":          CodeBillClosed,
	"not a participant":    CodeNotParticipant,
	"not the creator":      CodeNotCreator,
	"already paid":         CodeAlreadyPaid,
	"already refunded":     CodeAlreadyRefunded,
	"not refundable":       CodeNotRefundable,
	"incorrect amount":     CodeIncorrectAmount,
	"deadline not reached": CodeDeadlineNotReached,
	"nothing to settle":    CodeNothingToSettle,
	"invalid funding":      CodeInvalidFunding,
}

// Classify maps an arbitrary ledger/transport error into the taxonomy.
// Already-classified errors pass through unchanged; revert reasons and
// well-known node error strings are pattern-matched; everything else becomes
// CodeUnrecognized carrying the raw message.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	for reason, code := range revertReasons {
		if strings.Contains(lower, reason) {
			return &Error{Code: code, Raw: msg}
		}
	}

	switch {
	case strings.Contains(lower, "insufficient funds"):
		return &Error{Code: CodeInsufficientFunds, Raw: msg}
	case strings.Contains(lower, "user rejected"), strings.Contains(lower, "user denied"):
		return &Error{Code: CodeUserRejected, Raw: msg}
	}

	return Unrecognized(msg)
}
