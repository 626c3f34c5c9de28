package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"payward/native/payments"
	"payward/observability"
	"payward/observability/logging"
)

type processPaymentRequest struct {
	PayerID             string `json:"payerId"`
	PayerEmail          string `json:"payerEmail,omitempty"`
	RecipientID         string `json:"recipientId"`
	AmountCents         int64  `json:"amountCents"`
	Currency            string `json:"currency,omitempty"`
	PaymentType         string `json:"paymentType,omitempty"`
	Method              string `json:"method,omitempty"`
	Description         string `json:"description,omitempty"`
	RecipientSubscriber bool   `json:"recipientSubscriber,omitempty"`
}

func (s *Server) handleProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req processPaymentRequest
	if err := s.decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	result, err := s.payments.ProcessPayment(r.Context(), payments.PaymentInput{
		PayerID:             req.PayerID,
		PayerEmail:          req.PayerEmail,
		RecipientID:         req.RecipientID,
		AmountCents:         req.AmountCents,
		Currency:            req.Currency,
		PaymentType:         req.PaymentType,
		Method:              req.Method,
		Description:         req.Description,
		RecipientSubscriber: req.RecipientSubscriber,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	outcome := "declined"
	status := http.StatusPaymentRequired
	if result.Success {
		outcome = "authorized"
		status = http.StatusCreated
	}
	observability.Payments().ObservePayment(req.Method, outcome, req.PaymentType, result.AmountCents, result.FeeCents)
	s.logger.Info("payment processed",
		"transaction", result.TransactionID,
		logging.MaskField("payer", req.PayerID),
		"amount", result.AmountCents,
		"outcome", outcome)
	s.audit(r, status)
	s.writeJSON(w, status, result)
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	tx, err := s.payments.Transaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleCapturePayment(w http.ResponseWriter, r *http.Request) {
	tx, err := s.payments.Capture(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.audit(r, http.StatusOK)
	s.writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleCompletePayment(w http.ResponseWriter, r *http.Request) {
	tx, err := s.payments.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.audit(r, http.StatusOK)
	s.writeJSON(w, http.StatusOK, tx)
}

type fulfilmentRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleFulfilment(w http.ResponseWriter, r *http.Request) {
	var req fulfilmentRequest
	if err := s.decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	tx, err := s.payments.UpdateFulfilment(r.Context(), chi.URLParam(r, "id"), payments.Status(req.Status))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.audit(r, http.StatusOK)
	s.writeJSON(w, http.StatusOK, tx)
}

type refundRequest struct {
	AmountCents int64  `json:"amountCents,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func (s *Server) handleRefundPayment(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := s.decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	outcome, err := s.payments.ProcessRefund(r.Context(), chi.URLParam(r, "id"), payments.RefundInput{
		AmountCents: req.AmountCents,
		Reason:      req.Reason,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	observability.Payments().ObserveRefund()
	s.audit(r, http.StatusOK)
	s.writeJSON(w, http.StatusOK, outcome)
}

type disputeRequest struct {
	RequesterID string `json:"requesterId"`
	Reason      string `json:"reason"`
	Evidence    string `json:"evidence,omitempty"`
}

func (s *Server) handleCreateDispute(w http.ResponseWriter, r *http.Request) {
	var req disputeRequest
	if err := s.decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	dispute, err := s.payments.CreateDispute(r.Context(), chi.URLParam(r, "id"), payments.DisputeInput{
		RequesterID: req.RequesterID,
		Reason:      req.Reason,
		Evidence:    req.Evidence,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	observability.Payments().ObserveDispute("opened")
	s.audit(r, http.StatusCreated)
	s.writeJSON(w, http.StatusCreated, dispute)
}

type resolveDisputeRequest struct {
	Resolution string `json:"resolution"`
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	var req resolveDisputeRequest
	if err := s.decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	outcome, err := s.payments.ResolveDispute(r.Context(), chi.URLParam(r, "id"), payments.Resolution(req.Resolution))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	observability.Payments().ObserveDispute("resolved")
	s.audit(r, http.StatusOK)
	s.writeJSON(w, http.StatusOK, outcome)
}
