package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"subscriptionOpsAPI/internal/apperrors"
	"subscriptionOpsAPI/internal/subscription"
)

type SubscriptionRepository struct {
	client *firestore.Client
}

func NewSubscriptionRepository(client *firestore.Client) *SubscriptionRepository {
	return &SubscriptionRepository{client: client}
}

func (r *SubscriptionRepository) col() *firestore.CollectionRef {
	return r.client.Collection(CollectionSubscriptions)
}

func decodeSubscription(snap *firestore.DocumentSnapshot) (*subscription.Subscription, error) {
	var s subscription.Subscription
	if err := snap.DataTo(&s); err != nil {
		return nil, fmt.Errorf("failed to decode subscription %s: %w", snap.Ref.ID, err)
	}
	s.ID = snap.Ref.ID
	return &s, nil
}

func decodeSubscriptions(snaps []*firestore.DocumentSnapshot) ([]*subscription.Subscription, error) {
	out := make([]*subscription.Subscription, 0, len(snaps))
	for _, snap := range snaps {
		s, err := decodeSubscription(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *SubscriptionRepository) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	snap, err := r.col().Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, apperrors.NotFoundf("subscription %s not found", id)
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return decodeSubscription(snap)
}

func (r *SubscriptionRepository) Create(ctx context.Context, s *subscription.Subscription) (*subscription.Subscription, error) {
	ref := r.col().NewDoc()
	if _, err := ref.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	return r.Get(ctx, ref.ID)
}

func (r *SubscriptionRepository) update(ctx context.Context, id string, updates []firestore.Update) error {
	updates = append(updates, firestore.Update{Path: "updatedAt", Value: firestore.ServerTimestamp})
	if _, err := r.col().Doc(id).Update(ctx, updates); err != nil {
		if isNotFound(err) {
			return apperrors.NotFoundf("subscription %s not found", id)
		}
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) Patch(ctx context.Context, id string, req *subscription.UpdateRequest) error {
	var updates []firestore.Update
	set := func(path string, v *string) {
		if v != nil {
			updates = append(updates, firestore.Update{Path: path, Value: *v})
		}
	}
	set("startDate", req.StartDate)
	set("cutDate", req.CutDate)
	set("plan", req.Plan)
	set("amount", req.Amount)
	set("kitNumber", req.KitNumber)
	set("passwordSub", req.PasswordSub)
	set("country", req.Country)
	if req.Status != nil {
		updates = append(updates, firestore.Update{Path: "status", Value: string(*req.Status)})
	}
	return r.update(ctx, id, updates)
}

func (r *SubscriptionRepository) SetStatus(ctx context.Context, id string, status subscription.Status) error {
	return r.update(ctx, id, []firestore.Update{{Path: "status", Value: string(status)}})
}

// Advance moves the billing cycle forward and sets the status in one write.
func (r *SubscriptionRepository) Advance(ctx context.Context, id, cutDate string, status subscription.Status) error {
	return r.update(ctx, id, []firestore.Update{
		{Path: "cutDate", Value: cutDate},
		{Path: "status", Value: string(status)},
	})
}

func (r *SubscriptionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.col().Doc(id).Delete(ctx, firestore.Exists); err != nil {
		if isNotFound(err) {
			return apperrors.NotFoundf("subscription %s not found", id)
		}
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) List(ctx context.Context, limit int, startAfter string) (*subscription.Page, error) {
	size := pageSize(limit)
	q, err := cursorQuery(ctx, r.col(), r.col().OrderBy("createdAt", firestore.Desc), startAfter)
	if err != nil {
		return nil, err
	}
	snaps, err := q.Limit(size).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	items, err := decodeSubscriptions(snaps)
	if err != nil {
		return nil, err
	}
	page := &subscription.Page{Items: items}
	if len(items) == size {
		page.NextCursor = items[len(items)-1].ID
	}
	return page, nil
}

func (r *SubscriptionRepository) FindDue(ctx context.Context, due subscription.DueQuery) ([]*subscription.Subscription, error) {
	q := r.col().Query
	if due.Status != "" {
		q = q.Where("status", "==", string(due.Status))
	}
	if due.OnOrBefore {
		q = q.Where("cutDate", "<=", due.CutDate)
	} else {
		q = q.Where("cutDate", "==", due.CutDate)
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query due subscriptions: %w", err)
	}
	return decodeSubscriptions(snaps)
}

// ListByClient returns the subscriptions whose clientId is any of keys.
func (r *SubscriptionRepository) ListByClient(ctx context.Context, keys ...string) ([]*subscription.Subscription, error) {
	var out []*subscription.Subscription
	for _, chunk := range chunks(keys, maxInValues) {
		snaps, err := r.col().Where("clientId", "in", chunk).Documents(ctx).GetAll()
		if err != nil {
			return nil, fmt.Errorf("failed to list client subscriptions: %w", err)
		}
		subs, err := decodeSubscriptions(snaps)
		if err != nil {
			return nil, err
		}
		out = append(out, subs...)
	}
	return out, nil
}

// LatestForClient returns the most recently updated subscription of the
// first key that has one, or nil.
func (r *SubscriptionRepository) LatestForClient(ctx context.Context, keys ...string) (*subscription.Subscription, error) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		snaps, err := r.col().Where("clientId", "==", key).
			OrderBy("updatedAt", firestore.Desc).Limit(1).Documents(ctx).GetAll()
		if err != nil {
			return nil, fmt.Errorf("failed to find latest subscription: %w", err)
		}
		if len(snaps) > 0 {
			return decodeSubscription(snaps[0])
		}
	}
	return nil, nil
}
