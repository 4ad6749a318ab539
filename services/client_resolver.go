package services

import (
	"context"
	"errors"
	"strings"

	"subscriptionOpsAPI/internal/apperrors"
	"subscriptionOpsAPI/internal/client"
)

type IdentifierKind string

const (
	KindDocID       IdentifierKind = "doc_id"
	KindExternalUID IdentifierKind = "external_uid"
	KindPhone       IdentifierKind = "phone"
)

// ResolvedClient says how an identifier was interpreted. CanonicalID is the
// client document id, or the normalized phone when Kind is KindPhone.
type ResolvedClient struct {
	Kind        IdentifierKind
	CanonicalID string
	Client      *client.Client
}

// ClientResolver turns the loosely typed client identifiers used across the
// API into a client record. Precedence is fixed: document id, then identity
// uid, then E.164 phone number.
type ClientResolver struct {
	clients ClientStore
}

func NewClientResolver(clients ClientStore) *ClientResolver {
	return &ClientResolver{clients: clients}
}

func (r *ClientResolver) Resolve(ctx context.Context, identifier string) (*ResolvedClient, error) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return nil, apperrors.Validationf("client identifier is required")
	}

	c, err := r.clients.Get(ctx, id)
	if err == nil {
		return &ResolvedClient{Kind: KindDocID, CanonicalID: c.ID, Client: c}, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	c, err = r.clients.FindByUID(ctx, id)
	if err == nil {
		return &ResolvedClient{Kind: KindExternalUID, CanonicalID: c.ID, Client: c}, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	phone := client.NormalizePhone(id)
	if client.ValidPhone(phone) {
		c, err = r.clients.FindByPhone(ctx, phone)
		if err == nil {
			return &ResolvedClient{Kind: KindPhone, CanonicalID: phone, Client: c}, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
	}

	return nil, apperrors.NotFoundf("client %s not found", id)
}

// Keys lists every value a subscription's clientId may hold for this client.
func (rc *ResolvedClient) Keys() []string {
	keys := []string{rc.Client.ID}
	if rc.Client.UID != "" && rc.Client.UID != rc.Client.ID {
		keys = append(keys, rc.Client.UID)
	}
	return keys
}
