package repositories

import "fmt"

// CheckoutErrorCode enumerates repository error causes for the checkout transaction.
type CheckoutErrorCode string

const (
	// CheckoutErrorUnknown represents an unspecified failure.
	CheckoutErrorUnknown CheckoutErrorCode = "checkout_unknown"
	// CheckoutErrorInvalidVariant indicates a requested variant is unknown,
	// inactive, or duplicated in the request.
	CheckoutErrorInvalidVariant CheckoutErrorCode = "checkout_invalid_variant"
	// CheckoutErrorInsufficientStock indicates requested quantity exceeds availability.
	CheckoutErrorInsufficientStock CheckoutErrorCode = "checkout_insufficient_stock"
	// CheckoutErrorNumberExhausted indicates order number generation kept colliding.
	CheckoutErrorNumberExhausted CheckoutErrorCode = "checkout_number_exhausted"
)

// CheckoutError wraps checkout-transaction failures with machine readable codes.
type CheckoutError struct {
	Op      string
	Code    CheckoutErrorCode
	Message string
	// ProductName names the offending product for insufficient-stock failures.
	ProductName string
	Err         error
}

// Error implements the error interface.
func (e *CheckoutError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *CheckoutError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewCheckoutError constructs a typed checkout error.
func NewCheckoutError(code CheckoutErrorCode, message string, err error) *CheckoutError {
	if message == "" {
		message = string(code)
	}
	return &CheckoutError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
