package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code Code
	}{
		{"revert bill exists", errors.New(`execution reverted: Bill exists`), CodeBillExists},
		{"revert not a participant", errors.New("execution reverted: not a participant"), CodeNotParticipant},
		{"revert incorrect amount", errors.New("execution reverted: incorrect amount"), CodeIncorrectAmount},
		{"revert deadline", errors.New("execution reverted: deadline not reached"), CodeDeadlineNotReached},
		{"node insufficient funds", errors.New("insufficient funds for gas * price + value"), CodeInsufficientFunds},
		{"wallet rejection", errors.New("user rejected the request"), CodeUserRejected},
		{"wallet denial", errors.New("MetaMask Tx Signature: User denied transaction signature"), CodeUserRejected},
		{"unknown", errors.New("rpc timeout"), CodeUnrecognized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Code != tt.code {
				t.Fatalf("Classify(%q).Code = %s, want %s", tt.err, got.Code, tt.code)
			}
			if got.Raw == "" {
				t.Error("classified error must keep the raw message")
			}
		})
	}
}

func TestClassifyPassthrough(t *testing.T) {
	orig := IncorrectAmount(big.NewInt(30), big.NewInt(29))
	if got := Classify(orig); got != orig {
		t.Fatalf("already-classified error must pass through, got %v", got)
	}
	wrapped := fmt.Errorf("submit payment: %w", ErrBillClosed)
	if got := Classify(wrapped); got.Code != CodeBillClosed {
		t.Fatalf("wrapped sentinel classified as %s, want BillClosed", got.Code)
	}
	if Classify(nil) != nil {
		t.Fatal("Classify(nil) must be nil")
	}
}

func TestErrorsIsSentinels(t *testing.T) {
	wrapped := fmt.Errorf("pay share: %w", &Error{Code: CodeAlreadyPaid, Raw: "participant 0xa1"})
	if !errors.Is(wrapped, ErrAlreadyPaid) {
		t.Error("wrapped error with matching code must match its sentinel")
	}
	if errors.Is(wrapped, ErrBillClosed) {
		t.Error("codes must not cross-match")
	}
}

func TestErrorMessages(t *testing.T) {
	e := IncorrectAmount(big.NewInt(30), big.NewInt(29))
	if got := e.Error(); got != "IncorrectAmount: expected 30, got 29" {
		t.Errorf("message = %q", got)
	}
	if got := Unrecognized("boom").Error(); got != "Unrecognized: boom" {
		t.Errorf("message = %q", got)
	}
	if got := ErrBillClosed.Error(); got != "BillClosed" {
		t.Errorf("message = %q", got)
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(fmt.Errorf("wrapped: %w", ErrNotCreator)); got != CodeNotCreator {
		t.Errorf("CodeOf(wrapped) = %s, want NotCreator", got)
	}
	if got := CodeOf(errors.New("plain")); got != CodeUnrecognized {
		t.Errorf("CodeOf(plain) = %s, want Unrecognized", got)
	}
}
