package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"subscriptionOpsAPI/internal/apperrors"
	"subscriptionOpsAPI/internal/client"
	"subscriptionOpsAPI/internal/communication"
	"subscriptionOpsAPI/internal/messaging"
	"subscriptionOpsAPI/internal/metrics"
)

type CommunicationService struct {
	resolver      *ClientResolver
	clients       ClientStore
	subscriptions SubscriptionStore
	messages      MessageStore
	conversations ConversationStore
	gateway       MessageGateway
	logger        *slog.Logger
}

func NewCommunicationService(
	resolver *ClientResolver,
	clients ClientStore,
	subscriptions SubscriptionStore,
	messages MessageStore,
	conversations ConversationStore,
	gateway MessageGateway,
	logger *slog.Logger,
) *CommunicationService {
	return &CommunicationService{
		resolver:      resolver,
		clients:       clients,
		subscriptions: subscriptions,
		messages:      messages,
		conversations: conversations,
		gateway:       gateway,
		logger:        logger,
	}
}

func (s *CommunicationService) recipient(ctx context.Context, identifier string) (*ResolvedClient, error) {
	rc, err := s.resolver.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if rc.Client.Phone == "" {
		return nil, apperrors.Validationf("client has no phone number")
	}
	return rc, nil
}

// SendTemplate sends an approved template to a client. Variables missing from
// req are inferred from the client's latest subscription, and the client's
// own name always fills "name". The message is stored before delivery; when
// the gateway fails the stored record is marked failed and an error wrapping
// apperrors.ErrUnavailable is returned together with it.
func (s *CommunicationService) SendTemplate(ctx context.Context, req communication.SendTemplateRequest) (*communication.Message, error) {
	tpl, ok := communication.LookupTemplate(req.TemplateName)
	if !ok {
		return nil, apperrors.Validationf("unknown template %q", req.TemplateName)
	}

	rc, err := s.recipient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	data := s.inferTemplateData(ctx, tpl.Name, rc)
	for k, v := range req.TemplateData {
		data[k] = v
	}
	if rc.Client.Name != "" {
		data["name"] = rc.Client.Name
	}

	variables, err := tpl.Render(data)
	if err != nil {
		return nil, apperrors.Validationf("%v", err)
	}

	msg := &communication.Message{
		ClientID:  rc.Client.ID,
		Template:  tpl.Name,
		To:        rc.Client.Phone,
		Direction: communication.Outbound,
		Status:    communication.StatusQueued,
	}
	return s.deliver(ctx, msg, rc.Client, "Template: "+tpl.Name, func(ctx context.Context) (string, error) {
		return s.gateway.SendTemplate(ctx, rc.Client.Phone, tpl.ContentSID, variables)
	})
}

func (s *CommunicationService) SendText(ctx context.Context, req communication.SendTextRequest) (*communication.Message, error) {
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, apperrors.Validationf("message body is required")
	}

	rc, err := s.recipient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	msg := &communication.Message{
		ClientID:  rc.Client.ID,
		Body:      body,
		To:        rc.Client.Phone,
		Direction: communication.Outbound,
		Status:    communication.StatusQueued,
	}
	return s.deliver(ctx, msg, rc.Client, body, func(ctx context.Context) (string, error) {
		return s.gateway.SendText(ctx, rc.Client.Phone, body)
	})
}

func (s *CommunicationService) deliver(
	ctx context.Context,
	msg *communication.Message,
	c *client.Client,
	preview string,
	send func(context.Context) (string, error),
) (*communication.Message, error) {
	stored, err := s.messages.Create(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	if err := s.conversations.Record(ctx, communication.ConversationUpdate{
		Phone:     c.Phone,
		ClientID:  c.ID,
		Name:      c.Name,
		Body:      preview,
		Direction: communication.Outbound,
		Prospect:  c.IsProspect(),
	}); err != nil {
		s.logger.Warn("failed to update conversation", "phone", c.Phone, "error", err)
	}

	kind := "text"
	if msg.Template != "" {
		kind = "template"
	}

	sid, sendErr := send(ctx)
	if sendErr != nil {
		metrics.MessagesSent.WithLabelValues(kind, "failed").Inc()
		stored.Status = communication.StatusFailed
		stored.Error = sendErr.Error()
		if err := s.messages.SetDelivery(ctx, stored.ID, communication.StatusFailed, "", sendErr.Error()); err != nil {
			s.logger.Error("failed to mark message failed", "message_id", stored.ID, "error", err)
		}
		return stored, apperrors.Unavailablef("message delivery failed: %v", sendErr)
	}

	metrics.MessagesSent.WithLabelValues(kind, "sent").Inc()
	stored.Status = communication.StatusSent
	stored.ExternalID = sid
	if err := s.messages.SetDelivery(ctx, stored.ID, communication.StatusSent, sid, ""); err != nil {
		s.logger.Error("failed to mark message sent", "message_id", stored.ID, "sid", sid, "error", err)
	}
	return stored, nil
}

func (s *CommunicationService) inferTemplateData(ctx context.Context, template string, rc *ResolvedClient) map[string]string {
	data := map[string]string{}
	sub, err := s.subscriptions.LatestForClient(ctx, rc.Keys()...)
	if err != nil {
		s.logger.Warn("could not infer template data", "client_id", rc.Client.ID, "error", err)
		return data
	}
	if sub == nil {
		return data
	}
	switch template {
	case communication.TemplateCutoffDay:
		data["subscriptionLabel"] = sub.Plan
		data["cutoffDate"] = sub.CutDate
	case communication.TemplateReminder3Days:
		data["dueDate"] = sub.CutDate
	case communication.TemplateSuspended:
		data["subscriptionLabel"] = sub.Plan
	}
	return data
}

// Receive stores an inbound WhatsApp message and bumps the sender's unread
// counter. Senders without a client record are kept as prospects.
func (s *CommunicationService) Receive(ctx context.Context, payload communication.InboundPayload) (*communication.Message, error) {
	from := messaging.Phone(payload.From)
	if from == "" {
		return nil, apperrors.Validationf("invalid sender")
	}

	clientID := communication.UnknownClient
	name := payload.ProfileName
	if name == "" {
		name = "Unknown"
	}
	prospect := true

	c, err := s.clients.FindByPhone(ctx, from)
	switch {
	case err == nil:
		clientID = c.ID
		if c.Name != "" {
			name = c.Name
		}
		prospect = c.IsProspect()
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, fmt.Errorf("failed to look up sender: %w", err)
	}

	stored, err := s.messages.Create(ctx, &communication.Message{
		ClientID:   clientID,
		Body:       payload.Body,
		From:       from,
		To:         messaging.Phone(payload.To),
		Direction:  communication.Inbound,
		Status:     communication.StatusReceived,
		ExternalID: payload.MessageSid,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist inbound message: %w", err)
	}

	preview := payload.Body
	if preview == "" {
		preview = "(Media/No text)"
	}
	update := communication.ConversationUpdate{
		Phone:     from,
		Name:      name,
		Body:      preview,
		Direction: communication.Inbound,
		Unread:    1,
		Prospect:  prospect,
	}
	if clientID != communication.UnknownClient {
		update.ClientID = clientID
	}
	if err := s.conversations.Record(ctx, update); err != nil {
		s.logger.Warn("failed to update conversation for inbound message", "phone", from, "error", err)
	}

	return stored, nil
}

func (s *CommunicationService) ListConversations(ctx context.Context, limit int, startAfter string) ([]*communication.Conversation, string, error) {
	return s.conversations.List(ctx, limit, startAfter)
}

func (s *CommunicationService) MarkConversationRead(ctx context.Context, phone string) error {
	p := client.NormalizePhone(messaging.Phone(phone))
	if !client.ValidPhone(p) {
		return apperrors.Validationf("phone must be in E.164 format")
	}
	return s.conversations.MarkRead(ctx, p)
}

func (s *CommunicationService) MessagesByClient(ctx context.Context, identifier string, limit int, startAfter string) (*communication.MessagePage, error) {
	rc, err := s.resolver.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return s.messages.ListByClient(ctx, rc.Client.ID, limit, startAfter)
}
