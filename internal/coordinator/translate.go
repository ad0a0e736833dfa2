package coordinator

import (
	"splitrails/internal/escrow"
)

// UserError is the structured {title, message, action} triple every ledger
// failure is reduced to at the coordinator boundary. Nothing escapes as an
// opaque exception; unrecognized failures keep their raw message visible.
type UserError struct {
	Code    escrow.Code `json:"code"`
	Title   string      `json:"title"`
	Message string      `json:"message"`
	Action  string      `json:"action"`

	// Retryable hints whether resubmitting the same request can succeed.
	Retryable bool `json:"retryable"`
}

// Translate maps a classified escrow failure onto its user-facing category.
func Translate(err error) UserError {
	e := escrow.Classify(err)
	switch e.Code {
	case escrow.CodeWalletNotConnected:
		return UserError{Code: e.Code, Title: "Wallet not connected",
			Message: "No signer is available for this operation.",
			Action:  "Connect a wallet and try again."}
	case escrow.CodeNetworkMismatch:
		return UserError{Code: e.Code, Title: "Wrong network",
			Message: "Your wallet is connected to a different chain and automatic switching failed.",
			Action:  "Switch your wallet to the escrow network manually."}
	case escrow.CodeBillExists:
		return UserError{Code: e.Code, Title: "Escrow already exists",
			Message: "An escrow has already been created for this bill.",
			Action:  "Use the existing escrow instead of creating a new one."}
	case escrow.CodeBillNotFound:
		return UserError{Code: e.Code, Title: "Escrow not found",
			Message: "No escrow is registered under this bill ID.",
			Action:  "Check that escrow creation confirmed and the ID derivation matches."}
	case escrow.CodeBillClosed:
		return UserError{Code: e.Code, Title: "Escrow closed",
			Message: "This bill has already settled or been cancelled; no further changes are accepted."}
	case escrow.CodeNotParticipant:
		return UserError{Code: e.Code, Title: "Not a participant",
			Message: "Your address is not on this bill's participant list.",
			Action:  "Contact the bill creator to be added before the escrow is created."}
	case escrow.CodeNotCreator:
		return UserError{Code: e.Code, Title: "Creator only",
			Message: "Only the bill creator can perform this operation."}
	case escrow.CodeAlreadyPaid:
		return UserError{Code: e.Code, Title: "Already paid",
			Message: "Your share for this bill is already paid. Nothing to do."}
	case escrow.CodeAlreadyRefunded:
		return UserError{Code: e.Code, Title: "Already refunded",
			Message: "This refund has already been claimed."}
	case escrow.CodeNotRefundable:
		return UserError{Code: e.Code, Title: "Not refundable",
			Message: "Refunds are only available to paid participants after cancellation or expiry."}
	case escrow.CodeIncorrectAmount:
		msg := "The payment amount does not match the required share."
		if e.Expected != nil && e.Actual != nil {
			msg = "The payment amount does not match: expected " + e.Expected.String() + " wei, got " + e.Actual.String() + " wei."
		}
		return UserError{Code: e.Code, Title: "Incorrect amount", Message: msg,
			Action: "Refresh the bill to recompute the required amount; do not retry with the same value."}
	case escrow.CodeInsufficientFunds:
		return UserError{Code: e.Code, Title: "Insufficient funds",
			Message: "Your balance is too low to cover this payment.",
			Action:  "Fund your wallet, then retry."}
	case escrow.CodeUserRejected:
		return UserError{Code: e.Code, Title: "Request rejected",
			Message: "The transaction was declined in your wallet.",
			Action:  "Retry when ready.", Retryable: true}
	case escrow.CodeDeadlineNotReached:
		return UserError{Code: e.Code, Title: "Deadline not reached",
			Message: "Automatic refunds only open once the payment deadline has passed."}
	case escrow.CodeNothingToSettle:
		return UserError{Code: e.Code, Title: "Nothing to settle",
			Message: "No participant has paid yet, so there is nothing to forward."}
	case escrow.CodeNoPayableParticipants:
		return UserError{Code: e.Code, Title: "No payable participants",
			Message: "Every computed share is zero, so there is nothing to escrow.",
			Action:  "Add items and assign them to participants before activating escrow."}
	case escrow.CodeParticipantNotFound, escrow.CodeInvalidFunding:
		return UserError{Code: e.Code, Title: "Invalid bill data",
			Message: e.Error(),
			Action:  "Fix the bill's participants and items, then retry."}
	default:
		return UserError{Code: escrow.CodeUnrecognized, Title: "Transaction failed",
			Message: e.Error(),
			Action:  "Try again.", Retryable: true}
	}
}
