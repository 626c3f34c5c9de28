package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"payward/native/subscription"
	"payward/observability"
)

type createSubscriptionRequest struct {
	OwnerID         string `json:"ownerId"`
	OwnerEmail      string `json:"ownerEmail,omitempty"`
	PlanID          string `json:"planId"`
	PlanName        string `json:"planName"`
	AmountCents     int64  `json:"amountCents"`
	Currency        string `json:"currency,omitempty"`
	Interval        string `json:"interval,omitempty"`
	Processor       string `json:"processor"`
	PaymentMethodID string `json:"paymentMethodId"`
	TrialDays       int    `json:"trialDays,omitempty"`
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if err := s.decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	sub, err := s.subscriptions.CreateSubscription(r.Context(), subscription.CreateInput{
		OwnerID:         req.OwnerID,
		OwnerEmail:      req.OwnerEmail,
		PlanID:          req.PlanID,
		PlanName:        req.PlanName,
		AmountCents:     req.AmountCents,
		Currency:        req.Currency,
		Interval:        req.Interval,
		Processor:       req.Processor,
		PaymentMethodID: req.PaymentMethodID,
		TrialDays:       req.TrialDays,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.audit(r, http.StatusCreated)
	s.writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.subscriptions.Subscription(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sub)
}

type invoiceRequest struct {
	InvoiceID     string `json:"invoiceId"`
	AmountCents   int64  `json:"amountCents,omitempty"`
	Paid          bool   `json:"paid"`
	FailureReason string `json:"failureReason,omitempty"`
}

func (s *Server) handleSubscriptionInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if err := s.decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	result, err := s.subscriptions.ProcessPayment(r.Context(), chi.URLParam(r, "id"), subscription.InvoiceInput{
		InvoiceID:     req.InvoiceID,
		AmountCents:   req.AmountCents,
		Paid:          req.Paid,
		FailureReason: req.FailureReason,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !result.AlreadyProcessed {
		outcome := "failed"
		if req.Paid {
			outcome = "paid"
		}
		observability.Subscriptions().ObserveInvoice(outcome)
	}
	s.audit(r, http.StatusOK)
	s.writeJSON(w, http.StatusOK, result)
}

type cancelSubscriptionRequest struct {
	Immediate bool   `json:"immediate,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	var req cancelSubscriptionRequest
	if err := s.decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	sub, err := s.subscriptions.CancelSubscription(r.Context(), chi.URLParam(r, "id"), req.Immediate, req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	kind := "deferred"
	if req.Immediate {
		kind = "immediate"
	}
	observability.Subscriptions().ObserveCancellation(kind)
	s.audit(r, http.StatusOK)
	s.writeJSON(w, http.StatusOK, sub)
}

type updateSubscriptionRequest struct {
	PlanID      string `json:"planId,omitempty"`
	PlanName    string `json:"planName,omitempty"`
	AmountCents int64  `json:"amountCents,omitempty"`
	Interval    string `json:"interval,omitempty"`
}

func (s *Server) handleUpdateSubscription(w http.ResponseWriter, r *http.Request) {
	var req updateSubscriptionRequest
	if err := s.decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	sub, err := s.subscriptions.UpdateSubscription(r.Context(), chi.URLParam(r, "id"), subscription.UpdateInput{
		PlanID:      req.PlanID,
		PlanName:    req.PlanName,
		AmountCents: req.AmountCents,
		Interval:    req.Interval,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.audit(r, http.StatusOK)
	s.writeJSON(w, http.StatusOK, sub)
}
