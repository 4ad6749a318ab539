package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"subscriptionOpsAPI/internal/communication"
	"subscriptionOpsAPI/middleware"
)

const emptyTwiML = "<Response></Response>"

type CommunicationOps interface {
	SendTemplate(ctx context.Context, req communication.SendTemplateRequest) (*communication.Message, error)
	SendText(ctx context.Context, req communication.SendTextRequest) (*communication.Message, error)
	Receive(ctx context.Context, payload communication.InboundPayload) (*communication.Message, error)
	ListConversations(ctx context.Context, limit int, startAfter string) ([]*communication.Conversation, string, error)
	MarkConversationRead(ctx context.Context, phone string) error
	MessagesByClient(ctx context.Context, identifier string, limit int, startAfter string) (*communication.MessagePage, error)
}

type CommunicationHandler struct {
	communications CommunicationOps
}

func NewCommunicationHandler(communications CommunicationOps) *CommunicationHandler {
	return &CommunicationHandler{communications: communications}
}

// Webhook receives inbound WhatsApp messages. The provider always gets an
// empty TwiML answer so it does not retry; failures are only logged.
func (h *CommunicationHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	defer func() {
		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(emptyTwiML))
	}()

	if err := r.ParseForm(); err != nil {
		slog.WarnContext(ctx, "webhook form unreadable", "error", err)
		return
	}
	payload := communication.InboundPayload{
		From:        r.PostForm.Get("From"),
		To:          r.PostForm.Get("To"),
		Body:        r.PostForm.Get("Body"),
		MessageSid:  r.PostForm.Get("MessageSid"),
		ProfileName: r.PostForm.Get("ProfileName"),
	}
	if _, err := h.communications.Receive(ctx, payload); err != nil {
		slog.ErrorContext(ctx, "inbound message not stored",
			"from", payload.From,
			"message_sid", payload.MessageSid,
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
	}
}

type conversationPage struct {
	Items      []*communication.Conversation `json:"items"`
	NextCursor string                        `json:"nextCursor,omitempty"`
}

func (h *CommunicationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	items, next, err := h.communications.ListConversations(ctx, limit, r.URL.Query().Get("startAfter"))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []*communication.Conversation{}
	}

	respondWithJSON(w, http.StatusOK, conversationPage{Items: items, NextCursor: next})
}

func (h *CommunicationHandler) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	phone := mux.Vars(r)["phone"]
	if err := h.communications.MarkConversationRead(ctx, phone); err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"phone": phone})
}

func (h *CommunicationHandler) SendTemplate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req communication.SendTemplateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ClientID == "" || req.TemplateName == "" {
		respondWithError(w, http.StatusBadRequest, "clientId and templateName are required")
		return
	}

	msg, err := h.communications.SendTemplate(ctx, req)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, msg)
}

func (h *CommunicationHandler) SendText(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req communication.SendTextRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ClientID == "" {
		respondWithError(w, http.StatusBadRequest, "clientId is required")
		return
	}

	msg, err := h.communications.SendText(ctx, req)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, msg)
}

func (h *CommunicationHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	page, err := h.communications.MessagesByClient(ctx, mux.Vars(r)["clientId"], limit, r.URL.Query().Get("startAfter"))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, page)
}
