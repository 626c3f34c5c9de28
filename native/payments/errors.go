package payments

import "errors"

var (
	ErrNilStore               = errors.New("payments: store not configured")
	ErrInvalidAmount          = errors.New("payments: amount must be positive")
	ErrInvalidPayer           = errors.New("payments: payer required")
	ErrTransactionNotFound    = errors.New("payments: transaction not found")
	ErrInvalidState           = errors.New("payments: invalid status for operation")
	ErrInvalidStateForRefund  = errors.New("payments: transaction not refundable in current status")
	ErrRefundExceedsGross     = errors.New("payments: refund amount exceeds transaction amount")
	ErrProcessorUnavailable   = errors.New("payments: payment processor unavailable")
	ErrNotTransactionPayer    = errors.New("payments: only the payer may open a dispute")
	ErrDisputeWindowExpired   = errors.New("payments: dispute window has expired")
	ErrDisputeAlreadyOpen     = errors.New("payments: dispute already open for transaction")
	ErrDisputeNotFound        = errors.New("payments: no dispute for transaction")
	ErrDisputeAlreadyResolved = errors.New("payments: dispute already resolved")
	ErrInvalidResolution      = errors.New("payments: resolution must be customer or merchant")
)
