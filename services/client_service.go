package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"subscriptionOpsAPI/internal/apperrors"
	"subscriptionOpsAPI/internal/client"
)

// IdentityRemover deletes the identity account behind a client. A missing
// account is not an error.
type IdentityRemover interface {
	DeleteIdentity(ctx context.Context, uid string) error
}

type ClientPage struct {
	Items      []*client.Client `json:"items"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// DeletionReport describes what a client deletion removed. Cleanup failures
// are listed but never undo the primary deletion.
type DeletionReport struct {
	ClientIDs      []string `json:"clientIds"`
	RelatedDeleted int      `json:"relatedDeleted"`
	CleanupErrors  []string `json:"cleanupErrors,omitempty"`
}

type cleanupStep struct {
	name string
	run  func(ctx context.Context) error
}

type ClientService struct {
	clients       ClientStore
	resolver      *ClientResolver
	conversations ConversationStore
	identities    IdentityRemover
	logger        *slog.Logger
}

func NewClientService(clients ClientStore, resolver *ClientResolver, conversations ConversationStore, identities IdentityRemover, logger *slog.Logger) *ClientService {
	return &ClientService{
		clients:       clients,
		resolver:      resolver,
		conversations: conversations,
		identities:    identities,
		logger:        logger,
	}
}

// Create registers a client. When a record with the same phone already
// exists it is reused: a prospect is promoted in place, a registered client
// is relinked to the new uid.
func (s *ClientService) Create(ctx context.Context, req *client.CreateRequest) (*client.Client, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.Phone != "" {
		existing, err := s.clients.FindByPhone(ctx, req.Phone)
		switch {
		case err == nil && existing.IsProspect():
			if err := s.clients.Promote(ctx, existing.ID, req); err != nil {
				return nil, err
			}
			s.logger.Info("prospect promoted", "client_id", existing.ID, "uid", req.UID)
			return s.clients.Get(ctx, existing.ID)
		case err == nil:
			if err := s.clients.Relink(ctx, existing.ID, req.UID); err != nil {
				return nil, err
			}
			s.logger.Warn("client relinked to new uid", "client_id", existing.ID, "old_uid", existing.UID, "uid", req.UID)
			return s.clients.Get(ctx, existing.ID)
		case !errors.Is(err, apperrors.ErrNotFound):
			return nil, err
		}
	}

	return s.clients.Create(ctx, &client.Client{
		UID:     req.UID,
		Name:    req.Name,
		Phone:   req.Phone,
		Address: req.Address,
		Roles:   []string{client.RoleClient},
	})
}

func (s *ClientService) Get(ctx context.Context, identifier string) (*client.Client, error) {
	rc, err := s.resolver.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return rc.Client, nil
}

func (s *ClientService) List(ctx context.Context, limit int, startAfter string) (*ClientPage, error) {
	items, next, err := s.clients.List(ctx, limit, startAfter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*client.Client{}
	}
	return &ClientPage{Items: items, NextCursor: next}, nil
}

func (s *ClientService) Update(ctx context.Context, identifier string, req *client.UpdateRequest) (*client.Client, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	rc, err := s.resolver.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if err := s.clients.Patch(ctx, rc.Client.ID, req); err != nil {
		return nil, err
	}
	return s.clients.Get(ctx, rc.Client.ID)
}

// Delete removes every client record sharing the resolved identity, then
// runs the compensating cleanups: related subscriptions and payments, the
// conversation thread and the identity account.
func (s *ClientService) Delete(ctx context.Context, identifier string) (*DeletionReport, error) {
	rc, err := s.resolver.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	target := rc.Client

	records := []*client.Client{target}
	if target.UID != "" {
		linked, err := s.clients.ListByUID(ctx, target.UID)
		if err != nil {
			return nil, err
		}
		for _, c := range linked {
			if c.ID != target.ID {
				records = append(records, c)
			}
		}
	}

	report := &DeletionReport{}
	keys := make([]string, 0, len(records)+1)
	for _, c := range records {
		report.ClientIDs = append(report.ClientIDs, c.ID)
		keys = append(keys, c.ID)
	}
	if err := s.clients.DeleteMany(ctx, report.ClientIDs); err != nil {
		return nil, fmt.Errorf("failed to delete client: %w", err)
	}
	if target.UID != "" {
		keys = append(keys, target.UID)
	}

	steps := []cleanupStep{{
		name: "related-records",
		run: func(ctx context.Context) error {
			n, err := s.clients.DeleteRelated(ctx, keys)
			report.RelatedDeleted = n
			return err
		},
	}}
	if target.Phone != "" {
		steps = append(steps, cleanupStep{
			name: "conversation",
			run:  func(ctx context.Context) error { return s.conversations.Delete(ctx, target.Phone) },
		})
	}
	if target.UID != "" && !target.IsProspect() && s.identities != nil {
		steps = append(steps, cleanupStep{
			name: "identity",
			run:  func(ctx context.Context) error { return s.identities.DeleteIdentity(ctx, target.UID) },
		})
	}

	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			s.logger.Warn("client cleanup step failed", "step", step.name, "client_id", target.ID, "error", err)
			report.CleanupErrors = append(report.CleanupErrors, fmt.Sprintf("%s: %v", step.name, err))
		}
	}

	s.logger.Info("client deleted", "client_ids", report.ClientIDs, "related_deleted", report.RelatedDeleted)
	return report, nil
}
