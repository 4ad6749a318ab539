package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"subscriptionOpsAPI/internal/apperrors"
	"subscriptionOpsAPI/internal/communication"
)

// MessageRepository stores messages under communications/messages/entries.
type MessageRepository struct {
	client *firestore.Client
}

func NewMessageRepository(client *firestore.Client) *MessageRepository {
	return &MessageRepository{client: client}
}

func (r *MessageRepository) col() *firestore.CollectionRef {
	return r.client.Collection("communications").Doc("messages").Collection("entries")
}

func decodeMessages(snaps []*firestore.DocumentSnapshot) ([]*communication.Message, error) {
	out := make([]*communication.Message, 0, len(snaps))
	for _, snap := range snaps {
		var m communication.Message
		if err := snap.DataTo(&m); err != nil {
			return nil, fmt.Errorf("failed to decode message %s: %w", snap.Ref.ID, err)
		}
		m.ID = snap.Ref.ID
		out = append(out, &m)
	}
	return out, nil
}

func (r *MessageRepository) Create(ctx context.Context, m *communication.Message) (*communication.Message, error) {
	ref := r.col().NewDoc()
	if _, err := ref.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}
	stored := *m
	stored.ID = ref.ID
	return &stored, nil
}

// SetDelivery records the outcome of handing a message to the gateway.
func (r *MessageRepository) SetDelivery(ctx context.Context, id string, status communication.MessageStatus, externalID, errMsg string) error {
	updates := []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	}
	if externalID != "" {
		updates = append(updates, firestore.Update{Path: "externalId", Value: externalID})
	}
	if errMsg != "" {
		updates = append(updates, firestore.Update{Path: "error", Value: errMsg})
	}
	if _, err := r.col().Doc(id).Update(ctx, updates); err != nil {
		if isNotFound(err) {
			return apperrors.NotFoundf("message %s not found", id)
		}
		return fmt.Errorf("failed to update message: %w", err)
	}
	return nil
}

func (r *MessageRepository) ListByClient(ctx context.Context, clientID string, limit int, startAfter string) (*communication.MessagePage, error) {
	size := pageSize(limit)
	base := r.col().Where("clientId", "==", clientID).OrderBy("createdAt", firestore.Desc)
	q, err := cursorQuery(ctx, r.col(), base, startAfter)
	if err != nil {
		return nil, err
	}
	snaps, err := q.Limit(size).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	items, err := decodeMessages(snaps)
	if err != nil {
		return nil, err
	}
	page := &communication.MessagePage{Messages: items}
	if len(items) == size {
		page.NextCursor = items[len(items)-1].ID
	}
	return page, nil
}

type ConversationRepository struct {
	client *firestore.Client
}

func NewConversationRepository(client *firestore.Client) *ConversationRepository {
	return &ConversationRepository{client: client}
}

func (r *ConversationRepository) col() *firestore.CollectionRef {
	return r.client.Collection(CollectionConversations)
}

// Record upserts the conversation metadata for u.Phone. The unread counter
// is incremented server side so concurrent webhooks do not lose counts.
func (r *ConversationRepository) Record(ctx context.Context, u communication.ConversationUpdate) error {
	data := map[string]interface{}{
		"phone":           u.Phone,
		"lastMessageAt":   firestore.ServerTimestamp,
		"lastMessageBody": u.Body,
		"lastMessageDir":  string(u.Direction),
		"prospect":        u.Prospect,
		"unreadCount":     firestore.Increment(u.Unread),
	}
	if u.ClientID != "" {
		data["clientId"] = u.ClientID
	}
	if u.Name != "" {
		data["name"] = u.Name
	}
	if _, err := r.col().Doc(u.Phone).Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to record conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepository) List(ctx context.Context, limit int, startAfter string) ([]*communication.Conversation, string, error) {
	size := pageSize(limit)
	q, err := cursorQuery(ctx, r.col(), r.col().OrderBy("lastMessageAt", firestore.Desc), startAfter)
	if err != nil {
		return nil, "", err
	}
	snaps, err := q.Limit(size).Documents(ctx).GetAll()
	if err != nil {
		return nil, "", fmt.Errorf("failed to list conversations: %w", err)
	}
	out := make([]*communication.Conversation, 0, len(snaps))
	for _, snap := range snaps {
		var c communication.Conversation
		if err := snap.DataTo(&c); err != nil {
			return nil, "", fmt.Errorf("failed to decode conversation %s: %w", snap.Ref.ID, err)
		}
		out = append(out, &c)
	}
	var next string
	if len(snaps) == size {
		next = snaps[len(snaps)-1].Ref.ID
	}
	return out, next, nil
}

func (r *ConversationRepository) MarkRead(ctx context.Context, phone string) error {
	_, err := r.col().Doc(phone).Update(ctx, []firestore.Update{{Path: "unreadCount", Value: 0}})
	if err != nil {
		if isNotFound(err) {
			return apperrors.NotFoundf("conversation %s not found", phone)
		}
		return fmt.Errorf("failed to mark conversation read: %w", err)
	}
	return nil
}

func (r *ConversationRepository) Delete(ctx context.Context, phone string) error {
	if _, err := r.col().Doc(phone).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}
