package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"subscriptionOpsAPI/internal/apperrors"
	"subscriptionOpsAPI/internal/dates"
	"subscriptionOpsAPI/internal/money"
	"subscriptionOpsAPI/internal/subscription"
)

type SubscriptionService struct {
	subscriptions SubscriptionStore
	resolver      *ClientResolver
	logger        *slog.Logger
}

func NewSubscriptionService(subscriptions SubscriptionStore, resolver *ClientResolver, logger *slog.Logger) *SubscriptionService {
	return &SubscriptionService{subscriptions: subscriptions, resolver: resolver, logger: logger}
}

func validateDate(field, value string) error {
	if !dates.Valid(value) {
		return apperrors.Validationf("%s must be a valid date (YYYY-MM-DD)", field)
	}
	return nil
}

func validateAmount(value string) error {
	if !money.Valid(value) {
		return apperrors.Validationf("invalid amount format (e.g. $50 or $50.00)")
	}
	return nil
}

// Create stores a new subscription for an existing client. The status is
// always active regardless of input.
func (s *SubscriptionService) Create(ctx context.Context, req *subscription.CreateRequest) (*subscription.Subscription, error) {
	req.ClientID = strings.TrimSpace(req.ClientID)
	req.Plan = strings.TrimSpace(req.Plan)
	req.Amount = strings.TrimSpace(req.Amount)

	if req.ClientID == "" {
		return nil, apperrors.Validationf("clientId is required")
	}
	if req.Plan == "" {
		return nil, apperrors.Validationf("plan is required")
	}
	if err := validateDate("startDate", req.StartDate); err != nil {
		return nil, err
	}
	if err := validateDate("cutDate", req.CutDate); err != nil {
		return nil, err
	}
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}

	rc, err := s.resolver.Resolve(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Validationf("client %s does not exist", req.ClientID)
		}
		return nil, fmt.Errorf("failed to resolve client: %w", err)
	}

	created, err := s.subscriptions.Create(ctx, &subscription.Subscription{
		ClientID:    rc.Client.ID,
		StartDate:   req.StartDate,
		CutDate:     req.CutDate,
		Plan:        req.Plan,
		Amount:      req.Amount,
		KitNumber:   strings.TrimSpace(req.KitNumber),
		PasswordSub: req.PasswordSub,
		Country:     strings.TrimSpace(req.Country),
		Status:      subscription.StatusActive,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("subscription created", "subscription_id", created.ID, "client_id", created.ClientID, "cut_date", created.CutDate)
	return created, nil
}

func (s *SubscriptionService) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	return s.subscriptions.Get(ctx, id)
}

func (s *SubscriptionService) List(ctx context.Context, limit int, startAfter string) (*subscription.Page, error) {
	return s.subscriptions.List(ctx, limit, startAfter)
}

func (s *SubscriptionService) Update(ctx context.Context, id string, req *subscription.UpdateRequest) (*subscription.Subscription, error) {
	if req.Empty() {
		return nil, apperrors.Validationf("at least one field is required")
	}
	if req.StartDate != nil {
		if err := validateDate("startDate", *req.StartDate); err != nil {
			return nil, err
		}
	}
	if req.CutDate != nil {
		if err := validateDate("cutDate", *req.CutDate); err != nil {
			return nil, err
		}
	}
	if req.Amount != nil {
		if err := validateAmount(*req.Amount); err != nil {
			return nil, err
		}
	}
	if req.Plan != nil && strings.TrimSpace(*req.Plan) == "" {
		return nil, apperrors.Validationf("plan cannot be empty")
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, apperrors.Validationf("invalid status %q", *req.Status)
	}

	if err := s.subscriptions.Patch(ctx, id, req); err != nil {
		return nil, err
	}
	return s.subscriptions.Get(ctx, id)
}

func (s *SubscriptionService) Delete(ctx context.Context, id string) error {
	return s.subscriptions.Delete(ctx, id)
}

// Renew starts the next billing cycle by hand: one month is added to the cut
// date and the subscription becomes active.
func (s *SubscriptionService) Renew(ctx context.Context, id string) (*subscription.Subscription, error) {
	sub, err := s.subscriptions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := dates.AddMonths(sub.CutDate, 1)
	if err != nil {
		return nil, fmt.Errorf("subscription %s has an invalid cut date: %w", id, err)
	}
	if err := s.subscriptions.Advance(ctx, id, next, subscription.StatusActive); err != nil {
		return nil, err
	}
	s.logger.Info("subscription renewed", "subscription_id", id, "from", sub.CutDate, "to", next)
	return s.subscriptions.Get(ctx, id)
}
