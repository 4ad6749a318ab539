package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"subscriptionOpsAPI/internal/identity"
	"subscriptionOpsAPI/middleware"
)

type UserAdmin interface {
	CreateUser(ctx context.Context, req *identity.CreateUserRequest) (*identity.User, error)
	SetRole(ctx context.Context, uid string, role identity.Role) error
	GetUser(ctx context.Context, uid string) (*identity.User, error)
	ListUsers(ctx context.Context, pageSize int, pageToken string) (*identity.UserPage, error)
	DeleteUser(ctx context.Context, uid string) error
}

type AuthHandler struct {
	users UserAdmin
}

func NewAuthHandler(users UserAdmin) *AuthHandler {
	return &AuthHandler{users: users}
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetIdentity(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	respondWithJSON(w, http.StatusOK, caller)
}

func (h *AuthHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req identity.CreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.users.CreateUser(ctx, &req)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	pageSize, err := queryInt(r, "pageSize", 100)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	page, err := h.users.ListUsers(ctx, pageSize, r.URL.Query().Get("pageToken"))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, page)
}

type setRoleRequest struct {
	Role identity.Role `json:"role"`
}

func (h *AuthHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req setRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	uid := mux.Vars(r)["uid"]
	if err := h.users.SetRole(ctx, uid, req.Role); err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	user, err := h.users.GetUser(ctx, uid)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), cascadeTimeout)
	defer cancel()

	uid := mux.Vars(r)["uid"]
	if caller, ok := middleware.GetIdentity(ctx); ok && caller.UID == uid {
		respondWithError(w, http.StatusBadRequest, "You cannot delete your own account")
		return
	}

	if err := h.users.DeleteUser(ctx, uid); err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"uid": uid})
}
