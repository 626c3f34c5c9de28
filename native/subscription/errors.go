package subscription

import "errors"

var (
	ErrNilStore             = errors.New("subscription: store not configured")
	ErrMissingParameters    = errors.New("subscription: missing required parameters")
	ErrSubscriptionNotFound = errors.New("subscription: not found")
	ErrSubscriptionCanceled = errors.New("subscription: already canceled")
	ErrInvalidInvoice       = errors.New("subscription: invoice id required")
)
