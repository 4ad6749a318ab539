package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"subscriptionOpsAPI/internal/subscription"
)

type SubscriptionOps interface {
	Create(ctx context.Context, req *subscription.CreateRequest) (*subscription.Subscription, error)
	Get(ctx context.Context, id string) (*subscription.Subscription, error)
	List(ctx context.Context, limit int, startAfter string) (*subscription.Page, error)
	Update(ctx context.Context, id string, req *subscription.UpdateRequest) (*subscription.Subscription, error)
	Delete(ctx context.Context, id string) error
	Renew(ctx context.Context, id string) (*subscription.Subscription, error)
}

type SubscriptionHandler struct {
	subscriptions SubscriptionOps
}

func NewSubscriptionHandler(subscriptions SubscriptionOps) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions}
}

func (h *SubscriptionHandler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req subscription.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sub, err := h.subscriptions.Create(ctx, &req)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, sub)
}

func (h *SubscriptionHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	page, err := h.subscriptions.List(ctx, limit, r.URL.Query().Get("startAfter"))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, page)
}

func (h *SubscriptionHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	sub, err := h.subscriptions.Get(ctx, mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sub)
}

func (h *SubscriptionHandler) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req subscription.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sub, err := h.subscriptions.Update(ctx, mux.Vars(r)["id"], &req)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sub)
}

func (h *SubscriptionHandler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	id := mux.Vars(r)["id"]
	if err := h.subscriptions.Delete(ctx, id); err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (h *SubscriptionHandler) RenewSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	sub, err := h.subscriptions.Renew(ctx, mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sub)
}
