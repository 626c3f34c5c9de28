package events

import "strconv"

const (
	TypePaymentAuthorized      = "payments.authorized"
	TypePaymentCaptured        = "payments.captured"
	TypePaymentCompleted       = "payments.completed"
	TypePaymentRefunded        = "payments.refunded"
	TypePaymentDisputed        = "payments.disputed"
	TypePaymentDisputeResolved = "payments.dispute.resolved"
)

type PaymentAuthorized struct {
	TransactionID string
	PayerID       string
	RecipientID   string
	GrossCents    int64
	FeeCents      int64
	Currency      string
	Method        string
}

func (PaymentAuthorized) EventType() string { return TypePaymentAuthorized }

func (e PaymentAuthorized) Record() *Record {
	return &Record{
		Type: TypePaymentAuthorized,
		Attributes: map[string]string{
			"transaction": e.TransactionID,
			"payer":       e.PayerID,
			"recipient":   e.RecipientID,
			"gross":       strconv.FormatInt(e.GrossCents, 10),
			"fee":         strconv.FormatInt(e.FeeCents, 10),
			"currency":    e.Currency,
			"method":      e.Method,
		},
	}
}

type PaymentCaptured struct {
	TransactionID string
}

func (PaymentCaptured) EventType() string { return TypePaymentCaptured }

func (e PaymentCaptured) Record() *Record {
	return &Record{
		Type:       TypePaymentCaptured,
		Attributes: map[string]string{"transaction": e.TransactionID},
	}
}

type PaymentCompleted struct {
	TransactionID string
	PointsAwarded int64
}

func (PaymentCompleted) EventType() string { return TypePaymentCompleted }

func (e PaymentCompleted) Record() *Record {
	return &Record{
		Type: TypePaymentCompleted,
		Attributes: map[string]string{
			"transaction": e.TransactionID,
			"points":      strconv.FormatInt(e.PointsAwarded, 10),
		},
	}
}

type PaymentRefunded struct {
	TransactionID  string
	RefundCents    int64
	PointsReversed int64
	Reason         string
}

func (PaymentRefunded) EventType() string { return TypePaymentRefunded }

func (e PaymentRefunded) Record() *Record {
	return &Record{
		Type: TypePaymentRefunded,
		Attributes: map[string]string{
			"transaction":    e.TransactionID,
			"refund":         strconv.FormatInt(e.RefundCents, 10),
			"pointsReversed": strconv.FormatInt(e.PointsReversed, 10),
			"reason":         e.Reason,
		},
	}
}

type PaymentDisputed struct {
	TransactionID string
	DisputeID     string
	Reason        string
}

func (PaymentDisputed) EventType() string { return TypePaymentDisputed }

func (e PaymentDisputed) Record() *Record {
	return &Record{
		Type: TypePaymentDisputed,
		Attributes: map[string]string{
			"transaction": e.TransactionID,
			"dispute":     e.DisputeID,
			"reason":      e.Reason,
		},
	}
}

type PaymentDisputeResolved struct {
	TransactionID string
	DisputeID     string
	Resolution    string
}

func (PaymentDisputeResolved) EventType() string { return TypePaymentDisputeResolved }

func (e PaymentDisputeResolved) Record() *Record {
	return &Record{
		Type: TypePaymentDisputeResolved,
		Attributes: map[string]string{
			"transaction": e.TransactionID,
			"dispute":     e.DisputeID,
			"resolution":  e.Resolution,
		},
	}
}
