// Package gateway exposes the orchestration core over REST. Handlers
// translate between JSON and the native engines; business failures surface as
// {"success": false, "message": ...} with a meaningful status code.
package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"payward/gateway/middleware"
	"payward/native/loyalty"
	"payward/native/payments"
	"payward/native/subscription"
	"payward/storage"
)

// Deps bundles the collaborators the server needs.
type Deps struct {
	Ledger        *loyalty.Ledger
	Payments      *payments.Engine
	Subscriptions *subscription.Engine
	Store         *storage.Store
	Logger        *slog.Logger
	Auth          *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          *middleware.CORSConfig
}

// Server is the REST surface over the engines.
type Server struct {
	ledger        *loyalty.Ledger
	payments      *payments.Engine
	subscriptions *subscription.Engine
	store         *storage.Store
	logger        *slog.Logger
	auth          *middleware.Authenticator
	limiter       *middleware.RateLimiter
	obs           *middleware.Observability
	cors          *middleware.CORSConfig
}

// NewServer wires a server from its dependencies.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		ledger:        deps.Ledger,
		payments:      deps.Payments,
		subscriptions: deps.Subscriptions,
		store:         deps.Store,
		logger:        logger,
		auth:          deps.Auth,
		limiter:       deps.RateLimiter,
		obs:           deps.Observability,
		cors:          deps.CORS,
	}
}

// Router assembles the chi routing tree with the middleware stack.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	if s.cors != nil {
		r.Use(middleware.CORS(*s.cors))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.obs != nil {
		r.Method(http.MethodGet, "/metrics", s.obs.MetricsHandler())
	}

	r.Route("/v1", func(r chi.Router) {
		if s.auth != nil {
			r.Use(s.auth.Middleware())
		}
		r.Group(func(r chi.Router) {
			r.Use(s.routeMiddleware("payments"))
			r.Use(s.idempotent)
			r.Post("/payments", s.handleProcessPayment)
			r.Get("/payments/{id}", s.handleGetPayment)
			r.Post("/payments/{id}/capture", s.handleCapturePayment)
			r.Post("/payments/{id}/complete", s.handleCompletePayment)
			r.Post("/payments/{id}/fulfilment", s.handleFulfilment)
			r.Post("/payments/{id}/refund", s.handleRefundPayment)
			r.Post("/payments/{id}/dispute", s.handleCreateDispute)
			r.Post("/payments/{id}/dispute/resolve", s.handleResolveDispute)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.routeMiddleware("subscriptions"))
			r.Use(s.idempotent)
			r.Post("/subscriptions", s.handleCreateSubscription)
			r.Get("/subscriptions/{id}", s.handleGetSubscription)
			r.Post("/subscriptions/{id}/invoice", s.handleSubscriptionInvoice)
			r.Post("/subscriptions/{id}/cancel", s.handleCancelSubscription)
			r.Patch("/subscriptions/{id}", s.handleUpdateSubscription)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.routeMiddleware("loyalty"))
			r.Get("/loyalty/accounts/{ownerID}", s.handleLoyaltySnapshot)
			r.Get("/loyalty/rewards", s.handleListRewards)
			r.Post("/loyalty/points", s.handleAdjustPoints)
			r.Post("/loyalty/redeem", s.handleRedeemReward)
			r.Post("/loyalty/referrals", s.handleProcessReferral)
		})
	})
	return r
}

// routeMiddleware stacks observability and rate limiting for one route group.
func (s *Server) routeMiddleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if s.limiter != nil {
			next = s.limiter.Middleware(route)(next)
		}
		if s.obs != nil {
			next = s.obs.Middleware(route)(next)
		}
		return next
	}
}

func (s *Server) idempotent(next http.Handler) http.Handler {
	if s.store == nil {
		return next
	}
	return middleware.WithIdempotency(s.store, s.logger, next)
}

func (s *Server) decode(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	message := strings.TrimPrefix(err.Error(), packagePrefix(err))
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		message = "internal error"
	}
	s.writeJSON(w, status, errorResponse{Message: message})
}

func (s *Server) audit(r *http.Request, status int) {
	if s.store == nil || r.Method == http.MethodGet {
		return
	}
	actor := "anonymous"
	if v, ok := r.Context().Value(middleware.ContextKeyToken).(string); ok && v != "" {
		actor = "token"
	}
	if err := s.store.AppendAudit(r.Context(), actor, r.Method, r.URL.Path, status); err != nil {
		s.logger.Warn("failed to append audit entry", "error", err)
	}
}

// statusForError maps sentinel errors onto HTTP statuses. Unknown errors are
// treated as internal.
func statusForError(err error) int {
	switch {
	case errors.Is(err, payments.ErrTransactionNotFound),
		errors.Is(err, subscription.ErrSubscriptionNotFound),
		errors.Is(err, loyalty.ErrAccountNotFound),
		errors.Is(err, loyalty.ErrRewardNotFound):
		return http.StatusNotFound
	case errors.Is(err, payments.ErrInvalidAmount),
		errors.Is(err, payments.ErrInvalidPayer),
		errors.Is(err, payments.ErrRefundExceedsGross),
		errors.Is(err, payments.ErrInvalidResolution),
		errors.Is(err, subscription.ErrMissingParameters),
		errors.Is(err, subscription.ErrInvalidInvoice),
		errors.Is(err, loyalty.ErrInvalidOwner),
		errors.Is(err, loyalty.ErrInvalidReferralCode),
		errors.Is(err, loyalty.ErrSelfReferral):
		return http.StatusBadRequest
	case errors.Is(err, payments.ErrNotTransactionPayer):
		return http.StatusForbidden
	case errors.Is(err, payments.ErrInvalidState),
		errors.Is(err, payments.ErrInvalidStateForRefund),
		errors.Is(err, payments.ErrDisputeWindowExpired),
		errors.Is(err, payments.ErrDisputeAlreadyOpen),
		errors.Is(err, payments.ErrDisputeNotFound),
		errors.Is(err, payments.ErrDisputeAlreadyResolved),
		errors.Is(err, subscription.ErrSubscriptionCanceled),
		errors.Is(err, loyalty.ErrInsufficientPoints):
		return http.StatusConflict
	case errors.Is(err, payments.ErrProcessorUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func packagePrefix(err error) string {
	msg := err.Error()
	for _, prefix := range []string{"payments: ", "subscription: ", "loyalty: "} {
		if strings.HasPrefix(msg, prefix) {
			return prefix
		}
	}
	return ""
}
