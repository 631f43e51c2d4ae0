package ledger

import (
	"errors"
	"time"

	"github.com/messbook/messbook/pkg/meal"
	"github.com/shopspring/decimal"
)

var (
	ErrBalanceFrozen       = errors.New("balance is frozen")
	ErrAlreadyReversed     = errors.New("transaction is already reversed")
	ErrCannotReverse       = errors.New("a reversal transaction cannot be reversed")
	ErrConflict            = errors.New("balance was modified concurrently")
	ErrInvalidTransaction  = errors.New("invalid transaction")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrPermissionDenied    = errors.New("actor is not allowed to perform this ledger operation")
)

// Kind classifies ledger transactions. Reversals are never applied directly;
// they only come out of Reverse.
type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindDeduction  Kind = "deduction"
	KindAdjustment Kind = "adjustment"
	KindReversal   Kind = "reversal"
	KindRefund     Kind = "refund"
)

func (k Kind) Valid() bool {
	switch k {
	case KindDeposit, KindDeduction, KindAdjustment, KindReversal, KindRefund:
		return true
	}
	return false
}

// Balance is a member's running prepaid total for one meal category. The
// amount only ever changes through transactions; Version guards against lost
// updates across processes.
type Balance struct {
	UserID       int
	Category     meal.Category
	Amount       decimal.Decimal
	Frozen       bool
	FrozenBy     *int
	FrozenAt     *time.Time
	FrozenReason string
	// Version is the optimistic lock counter read with the row. A save
	// succeeds only while the stored row still carries this version.
	Version   int64
	UpdatedAt time.Time
}

// Transaction is one immutable ledger entry. NewBalance is always exactly
// PreviousBalance plus Amount; IsReversed is the only field that may change
// after creation.
type Transaction struct {
	ID              string
	UserID          int
	Category        meal.Category
	Amount          decimal.Decimal
	PreviousBalance decimal.Decimal
	NewBalance      decimal.Decimal
	Kind            Kind
	// ReferenceID links the transaction to its source: the reversed
	// transaction for reversals, the cost event for batch deductions and
	// refunds.
	ReferenceID *string
	Note        string
	IsReversed  bool
	ActorID     int
	CreatedAt   time.Time
}
