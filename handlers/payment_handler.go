package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"subscriptionOpsAPI/internal/identity"
	"subscriptionOpsAPI/internal/payment"
	"subscriptionOpsAPI/middleware"
	"subscriptionOpsAPI/services"
)

type PaymentOps interface {
	Create(ctx context.Context, req *payment.CreateRequest, userID string) (*payment.Payment, error)
	Verify(ctx context.Context, id, userID, notes string) (*services.VerificationResult, error)
	Reject(ctx context.Context, id, userID, notes string) (*payment.Payment, error)
	Retry(ctx context.Context, id, userID, owner string) (*payment.Payment, error)
	Get(ctx context.Context, id, owner string) (*payment.Payment, error)
	List(ctx context.Context, f payment.Filter) (*payment.Page, error)
	BySubscription(ctx context.Context, subscriptionID, owner string) ([]*payment.Payment, error)
	PendingByMethod(ctx context.Context, method payment.Method) ([]*payment.Payment, error)
	Stats(ctx context.Context) (*payment.Stats, error)
}

type PaymentHandler struct {
	payments PaymentOps
}

func NewPaymentHandler(payments PaymentOps) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// ownerScope is the uid client callers are restricted to. Other roles are not
// scoped.
func ownerScope(ctx context.Context) string {
	if caller, ok := middleware.GetIdentity(ctx); ok && caller.Role == identity.RoleClient {
		return caller.UID
	}
	return ""
}

func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	caller, ok := middleware.GetIdentity(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req payment.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	p, err := h.payments.Create(ctx, &req, caller.UID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, p)
}

// ListPayments pages through payments. Clients only ever see the payments
// they registered.
func (h *PaymentHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	q := r.URL.Query()
	f := payment.Filter{
		SubscriptionID: q.Get("subscriptionId"),
		Status:         payment.Status(q.Get("status")),
		Method:         payment.Method(q.Get("method")),
	}
	var err error
	if f.Page, err = queryInt(r, "page", 1); err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	if f.Limit, err = queryInt(r, "limit", 20); err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	f.CreatedBy = ownerScope(ctx)

	page, err := h.payments.List(ctx, f)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, page)
}

func (h *PaymentHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	stats, err := h.payments.Stats(ctx)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, stats)
}

func (h *PaymentHandler) GetBySubscription(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	payments, err := h.payments.BySubscription(ctx, mux.Vars(r)["subscriptionId"], ownerScope(ctx))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	if payments == nil {
		payments = []*payment.Payment{}
	}

	respondWithJSON(w, http.StatusOK, payments)
}

func (h *PaymentHandler) GetPendingByMethod(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	payments, err := h.payments.PendingByMethod(ctx, payment.Method(mux.Vars(r)["method"]))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	if payments == nil {
		payments = []*payment.Payment{}
	}

	respondWithJSON(w, http.StatusOK, payments)
}

func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	p, err := h.payments.Get(ctx, mux.Vars(r)["id"], ownerScope(ctx))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, p)
}

func (h *PaymentHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req payment.ReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	caller, _ := middleware.GetIdentity(ctx)
	result, err := h.payments.Verify(ctx, mux.Vars(r)["id"], caller.Actor(), req.Notes)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *PaymentHandler) RejectPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req payment.ReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	caller, _ := middleware.GetIdentity(ctx)
	p, err := h.payments.Reject(ctx, mux.Vars(r)["id"], caller.Actor(), req.Notes)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, p)
}

// RetryPayment reopens a rejected payment. Clients may only retry their own.
func (h *PaymentHandler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	caller, _ := middleware.GetIdentity(ctx)
	p, err := h.payments.Retry(ctx, mux.Vars(r)["id"], caller.Actor(), ownerScope(ctx))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, p)
}
