package services

import (
	"context"
	"time"

	"subscriptionOpsAPI/internal/automation"
	"subscriptionOpsAPI/internal/client"
	"subscriptionOpsAPI/internal/communication"
	"subscriptionOpsAPI/internal/payment"
	"subscriptionOpsAPI/internal/subscription"
)

// The interfaces below are implemented by internal/repository on top of
// Firestore. Lookups of a missing document return an apperrors.ErrNotFound.

type SubscriptionStore interface {
	Get(ctx context.Context, id string) (*subscription.Subscription, error)
	Create(ctx context.Context, s *subscription.Subscription) (*subscription.Subscription, error)
	Patch(ctx context.Context, id string, req *subscription.UpdateRequest) error
	SetStatus(ctx context.Context, id string, status subscription.Status) error
	Advance(ctx context.Context, id, cutDate string, status subscription.Status) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit int, startAfter string) (*subscription.Page, error)
	FindDue(ctx context.Context, q subscription.DueQuery) ([]*subscription.Subscription, error)
	ListByClient(ctx context.Context, keys ...string) ([]*subscription.Subscription, error)
	LatestForClient(ctx context.Context, keys ...string) (*subscription.Subscription, error)
}

type PaymentStore interface {
	Get(ctx context.Context, id string) (*payment.Payment, error)
	Create(ctx context.Context, p *payment.Payment) (*payment.Payment, error)
	ListBySubscription(ctx context.Context, subscriptionID string, statuses ...payment.Status) ([]*payment.Payment, error)
	// Settle writes a verification and its subscription update atomically.
	Settle(ctx context.Context, st payment.Settlement) error
	SetStatus(ctx context.Context, id string, status payment.Status, notes string) error
	List(ctx context.Context, f payment.Filter) (*payment.Page, error)
	PendingByMethod(ctx context.Context, method payment.Method) ([]*payment.Payment, error)
	All(ctx context.Context) ([]*payment.Payment, error)
}

type ClientStore interface {
	Get(ctx context.Context, id string) (*client.Client, error)
	FindByUID(ctx context.Context, uid string) (*client.Client, error)
	FindByPhone(ctx context.Context, phone string) (*client.Client, error)
	ListByUID(ctx context.Context, uid string) ([]*client.Client, error)
	Create(ctx context.Context, c *client.Client) (*client.Client, error)
	Patch(ctx context.Context, id string, req *client.UpdateRequest) error
	Promote(ctx context.Context, id string, req *client.CreateRequest) error
	Relink(ctx context.Context, id, uid string) error
	DeleteMany(ctx context.Context, ids []string) error
	List(ctx context.Context, limit int, startAfter string) ([]*client.Client, string, error)
	DeleteRelated(ctx context.Context, keys []string) (int, error)
}

type MessageStore interface {
	Create(ctx context.Context, m *communication.Message) (*communication.Message, error)
	SetDelivery(ctx context.Context, id string, status communication.MessageStatus, externalID, errMsg string) error
	ListByClient(ctx context.Context, clientID string, limit int, startAfter string) (*communication.MessagePage, error)
}

type ConversationStore interface {
	Record(ctx context.Context, u communication.ConversationUpdate) error
	List(ctx context.Context, limit int, startAfter string) ([]*communication.Conversation, string, error)
	MarkRead(ctx context.Context, phone string) error
	Delete(ctx context.Context, phone string) error
}

type AutomationStore interface {
	GetConfig(ctx context.Context) (*automation.Config, error)
	SaveConfig(ctx context.Context, c automation.Config) error
	DeleteConfig(ctx context.Context) error
	InsertLog(ctx context.Context, entry automation.RunLog) error
}

// MessageGateway hands messages to the WhatsApp provider and returns the
// provider's message id.
type MessageGateway interface {
	SendTemplate(ctx context.Context, to, contentSID string, variables map[string]string) (string, error)
	SendText(ctx context.Context, to, body string) (string, error)
}

// TemplateSender is the part of CommunicationService the scheduler needs.
type TemplateSender interface {
	SendTemplate(ctx context.Context, req communication.SendTemplateRequest) (*communication.Message, error)
}

type TickLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
