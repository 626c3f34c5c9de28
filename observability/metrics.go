// Package observability holds the Prometheus instrumentation shared by the
// engines and the gateway. Registries are lazily initialised and registered
// on the default registerer exactly once.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics counts payment orchestration activity.
type PaymentMetrics struct {
	payments    *prometheus.CounterVec
	volumeCents *prometheus.CounterVec
	feeCents    prometheus.Counter
	refunds     prometheus.Counter
	disputes    *prometheus.CounterVec
}

var (
	paymentOnce     sync.Once
	paymentRegistry *PaymentMetrics
)

// Payments returns the payment metrics registry.
func Payments() *PaymentMetrics {
	paymentOnce.Do(func() {
		paymentRegistry = &PaymentMetrics{
			payments: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "payward",
				Subsystem: "payments",
				Name:      "processed_total",
				Help:      "Payments processed segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			volumeCents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "payward",
				Subsystem: "payments",
				Name:      "volume_cents_total",
				Help:      "Gross payment volume in cents segmented by payment type.",
			}, []string{"type"}),
			feeCents: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "payward",
				Subsystem: "payments",
				Name:      "commission_cents_total",
				Help:      "Commission withheld in cents.",
			}),
			refunds: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "payward",
				Subsystem: "payments",
				Name:      "refunds_total",
				Help:      "Refunds issued.",
			}),
			disputes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "payward",
				Subsystem: "payments",
				Name:      "disputes_total",
				Help:      "Disputes segmented by lifecycle stage.",
			}, []string{"stage"}),
		}
		prometheus.MustRegister(
			paymentRegistry.payments,
			paymentRegistry.volumeCents,
			paymentRegistry.feeCents,
			paymentRegistry.refunds,
			paymentRegistry.disputes,
		)
	})
	return paymentRegistry
}

// ObservePayment records one processed payment attempt.
func (m *PaymentMetrics) ObservePayment(method, outcome, paymentType string, grossCents, feeCents int64) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(method, outcome).Inc()
	if outcome == "authorized" {
		m.volumeCents.WithLabelValues(paymentType).Add(float64(grossCents))
		m.feeCents.Add(float64(feeCents))
	}
}

// ObserveRefund records an issued refund.
func (m *PaymentMetrics) ObserveRefund() {
	if m == nil {
		return
	}
	m.refunds.Inc()
}

// ObserveDispute records dispute activity ("opened", "customer", "merchant").
func (m *PaymentMetrics) ObserveDispute(stage string) {
	if m == nil {
		return
	}
	m.disputes.WithLabelValues(stage).Inc()
}

// LoyaltyMetrics counts loyalty ledger activity.
type LoyaltyMetrics struct {
	points      *prometheus.CounterVec
	redemptions prometheus.Counter
	referrals   prometheus.Counter
}

var (
	loyaltyOnce     sync.Once
	loyaltyRegistry *LoyaltyMetrics
)

// Loyalty returns the loyalty metrics registry.
func Loyalty() *LoyaltyMetrics {
	loyaltyOnce.Do(func() {
		loyaltyRegistry = &LoyaltyMetrics{
			points: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "payward",
				Subsystem: "loyalty",
				Name:      "points_total",
				Help:      "Points moved through the ledger segmented by direction.",
			}, []string{"direction"}),
			redemptions: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "payward",
				Subsystem: "loyalty",
				Name:      "redemptions_total",
				Help:      "Reward redemptions.",
			}),
			referrals: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "payward",
				Subsystem: "loyalty",
				Name:      "referrals_total",
				Help:      "Referral bonuses paid.",
			}),
		}
		prometheus.MustRegister(loyaltyRegistry.points, loyaltyRegistry.redemptions, loyaltyRegistry.referrals)
	})
	return loyaltyRegistry
}

// ObservePoints records a point movement ("earned" or "reversed").
func (m *LoyaltyMetrics) ObservePoints(direction string, points int64) {
	if m == nil || points <= 0 {
		return
	}
	m.points.WithLabelValues(direction).Add(float64(points))
}

// ObserveRedemption records a reward redemption.
func (m *LoyaltyMetrics) ObserveRedemption() {
	if m == nil {
		return
	}
	m.redemptions.Inc()
}

// ObserveReferral records a paid referral.
func (m *LoyaltyMetrics) ObserveReferral() {
	if m == nil {
		return
	}
	m.referrals.Inc()
}

// SubscriptionMetrics counts billing activity.
type SubscriptionMetrics struct {
	invoices      *prometheus.CounterVec
	cancellations *prometheus.CounterVec
}

var (
	subscriptionOnce     sync.Once
	subscriptionRegistry *SubscriptionMetrics
)

// Subscriptions returns the subscription metrics registry.
func Subscriptions() *SubscriptionMetrics {
	subscriptionOnce.Do(func() {
		subscriptionRegistry = &SubscriptionMetrics{
			invoices: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "payward",
				Subsystem: "subscriptions",
				Name:      "invoices_total",
				Help:      "Invoice events segmented by outcome.",
			}, []string{"outcome"}),
			cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "payward",
				Subsystem: "subscriptions",
				Name:      "cancellations_total",
				Help:      "Cancellations segmented by kind (immediate, deferred, period_end).",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(subscriptionRegistry.invoices, subscriptionRegistry.cancellations)
	})
	return subscriptionRegistry
}

// ObserveInvoice records an invoice outcome ("paid", "failed", "replay").
func (m *SubscriptionMetrics) ObserveInvoice(outcome string) {
	if m == nil {
		return
	}
	m.invoices.WithLabelValues(outcome).Inc()
}

// ObserveCancellation records a cancellation.
func (m *SubscriptionMetrics) ObserveCancellation(kind string) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(kind).Inc()
}
