package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced variant does not exist.
	ErrNotFound = errors.New("variant not found")
	// ErrInvalidQuantity rejects claims and quotes for fewer than one unit.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrEmptyCart means the owner has no live reservations to settle.
	ErrEmptyCart = errors.New("cart is empty or reservation expired")
	// ErrStockConflict means a conditional stock decrement would have gone negative.
	ErrStockConflict = errors.New("stock decrement conflict")
)

// TransactionError wraps a persistence fault raised inside a claim or checkout.
// The transaction was rolled back when this is returned.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s transaction failed: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// NewTransactionError wraps err unless it already carries a business meaning.
func NewTransactionError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidQuantity) || errors.Is(err, ErrEmptyCart) {
		return err
	}
	var txErr *TransactionError
	if errors.As(err, &txErr) {
		return err
	}
	return &TransactionError{Op: op, Err: err}
}
