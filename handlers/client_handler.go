package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"subscriptionOpsAPI/internal/client"
	"subscriptionOpsAPI/services"
)

type ClientOps interface {
	Create(ctx context.Context, req *client.CreateRequest) (*client.Client, error)
	Get(ctx context.Context, identifier string) (*client.Client, error)
	List(ctx context.Context, limit int, startAfter string) (*services.ClientPage, error)
	Update(ctx context.Context, identifier string, req *client.UpdateRequest) (*client.Client, error)
	Delete(ctx context.Context, identifier string) (*services.DeletionReport, error)
}

type ClientHandler struct {
	clients ClientOps
}

func NewClientHandler(clients ClientOps) *ClientHandler {
	return &ClientHandler{clients: clients}
}

func (h *ClientHandler) CreateClient(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req client.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	c, err := h.clients.Create(ctx, &req)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, c)
}

func (h *ClientHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	page, err := h.clients.List(ctx, limit, r.URL.Query().Get("startAfter"))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, page)
}

func (h *ClientHandler) GetClient(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	c, err := h.clients.Get(ctx, mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, c)
}

func (h *ClientHandler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req client.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	c, err := h.clients.Update(ctx, mux.Vars(r)["id"], &req)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, c)
}

// DeleteClient removes the client and everything hanging off it. Cleanup
// failures are listed in the report; the deletion itself still succeeded.
func (h *ClientHandler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), cascadeTimeout)
	defer cancel()

	report, err := h.clients.Delete(ctx, mux.Vars(r)["id"])
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, report)
}
