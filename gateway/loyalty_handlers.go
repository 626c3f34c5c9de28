package gateway

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"payward/observability"
)

func (s *Server) handleLoyaltySnapshot(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	snapshot, err := s.ledger.Snapshot(r.Context(), chi.URLParam(r, "ownerID"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleListRewards(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"rewards": s.ledger.Catalog().Rewards(),
	})
}

type adjustPointsRequest struct {
	OwnerID   string `json:"ownerId"`
	Points    int64  `json:"points"`
	Reason    string `json:"reason"`
	Reference string `json:"reference,omitempty"`
}

func (s *Server) handleAdjustPoints(w http.ResponseWriter, r *http.Request) {
	var req adjustPointsRequest
	if err := s.decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	result, err := s.ledger.AddPoints(r.Context(), req.OwnerID, req.Points, req.Reason, req.Reference)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	direction, points := "credit", req.Points
	if points < 0 {
		direction, points = "debit", -points
	}
	observability.Loyalty().ObservePoints(direction, points)
	s.audit(r, http.StatusOK)
	s.writeJSON(w, http.StatusOK, result)
}

type redeemRequest struct {
	OwnerID  string `json:"ownerId"`
	RewardID string `json:"rewardId"`
}

func (s *Server) handleRedeemReward(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := s.decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	result, err := s.ledger.RedeemReward(r.Context(), req.OwnerID, req.RewardID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	observability.Loyalty().ObserveRedemption()
	s.audit(r, http.StatusCreated)
	s.writeJSON(w, http.StatusCreated, result)
}

type referralRequest struct {
	ReferralCode string `json:"referralCode"`
	NewOwnerID   string `json:"newOwnerId"`
	Reference    string `json:"reference,omitempty"`
}

func (s *Server) handleProcessReferral(w http.ResponseWriter, r *http.Request) {
	var req referralRequest
	if err := s.decode(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	result, err := s.ledger.ProcessReferral(r.Context(), req.ReferralCode, req.NewOwnerID, req.Reference)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	observability.Loyalty().ObserveReferral()
	s.audit(r, http.StatusCreated)
	s.writeJSON(w, http.StatusCreated, result)
}
