package repository

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"

	"subscriptionOpsAPI/internal/apperrors"
	"subscriptionOpsAPI/internal/payment"
)

type PaymentRepository struct {
	client *firestore.Client
}

func NewPaymentRepository(client *firestore.Client) *PaymentRepository {
	return &PaymentRepository{client: client}
}

func (r *PaymentRepository) col() *firestore.CollectionRef {
	return r.client.Collection(CollectionPayments)
}

func decodePayments(snaps []*firestore.DocumentSnapshot) ([]*payment.Payment, error) {
	out := make([]*payment.Payment, 0, len(snaps))
	for _, snap := range snaps {
		var p payment.Payment
		if err := snap.DataTo(&p); err != nil {
			return nil, fmt.Errorf("failed to decode payment %s: %w", snap.Ref.ID, err)
		}
		p.ID = snap.Ref.ID
		out = append(out, &p)
	}
	return out, nil
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (*payment.Payment, error) {
	snap, err := r.col().Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, apperrors.NotFoundf("payment %s not found", id)
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	out, err := decodePayments([]*firestore.DocumentSnapshot{snap})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) (*payment.Payment, error) {
	ref := r.col().NewDoc()
	if _, err := ref.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	return r.Get(ctx, ref.ID)
}

// ListBySubscription returns the subscription's payments, optionally limited
// to the given statuses.
func (r *PaymentRepository) ListBySubscription(ctx context.Context, subscriptionID string, statuses ...payment.Status) ([]*payment.Payment, error) {
	q := r.col().Where("subscriptionId", "==", subscriptionID)
	if len(statuses) > 0 {
		values := make([]string, len(statuses))
		for i, s := range statuses {
			values[i] = string(s)
		}
		q = q.Where("status", "in", values)
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list subscription payments: %w", err)
	}
	return decodePayments(snaps)
}

func (r *PaymentRepository) update(ctx context.Context, id string, updates []firestore.Update) error {
	if _, err := r.col().Doc(id).Update(ctx, updates); err != nil {
		if isNotFound(err) {
			return apperrors.NotFoundf("payment %s not found", id)
		}
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return nil
}

// Settle marks a payment verified and updates its subscription in one
// transaction. The payment must still be pending when the transaction reads it.
func (r *PaymentRepository) Settle(ctx context.Context, st payment.Settlement) error {
	payRef := r.col().Doc(st.PaymentID)
	subRef := r.client.Collection(CollectionSubscriptions).Doc(st.SubscriptionID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(payRef)
		if err != nil {
			if isNotFound(err) {
				return apperrors.NotFoundf("payment %s not found", st.PaymentID)
			}
			return err
		}
		var current payment.Payment
		if err := snap.DataTo(&current); err != nil {
			return fmt.Errorf("failed to decode payment %s: %w", st.PaymentID, err)
		}
		if err := payment.CheckTransition(current.Status, payment.StatusVerified); err != nil {
			return err
		}
		if _, err := tx.Get(subRef); err != nil {
			if isNotFound(err) {
				return apperrors.NotFoundf("subscription %s not found", st.SubscriptionID)
			}
			return err
		}

		payUpdates := []firestore.Update{
			{Path: "status", Value: string(payment.StatusVerified)},
			{Path: "verifiedAt", Value: st.VerifiedAt},
			{Path: "verifiedBy", Value: st.VerifiedBy},
		}
		if st.Notes != "" {
			payUpdates = append(payUpdates, firestore.Update{Path: "notes", Value: st.Notes})
		}
		subUpdates := []firestore.Update{
			{Path: "status", Value: st.SubscriptionStatus},
			{Path: "updatedAt", Value: firestore.ServerTimestamp},
		}
		if st.CutDate != "" {
			subUpdates = append(subUpdates, firestore.Update{Path: "cutDate", Value: st.CutDate})
		}

		if err := tx.Update(payRef, payUpdates); err != nil {
			return err
		}
		return tx.Update(subRef, subUpdates)
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, apperrors.ErrValidation) {
			return err
		}
		return fmt.Errorf("failed to settle payment %s: %w", st.PaymentID, err)
	}
	return nil
}

func (r *PaymentRepository) SetStatus(ctx context.Context, id string, status payment.Status, notes string) error {
	updates := []firestore.Update{{Path: "status", Value: string(status)}}
	if notes != "" {
		updates = append(updates, firestore.Update{Path: "notes", Value: notes})
	}
	return r.update(ctx, id, updates)
}

func (r *PaymentRepository) List(ctx context.Context, f payment.Filter) (*payment.Page, error) {
	q := r.col().Query
	if f.SubscriptionID != "" {
		q = q.Where("subscriptionId", "==", f.SubscriptionID)
	}
	if f.Status != "" {
		q = q.Where("status", "==", string(f.Status))
	}
	if f.Method != "" {
		q = q.Where("method", "==", string(f.Method))
	}
	if f.CreatedBy != "" {
		q = q.Where("createdBy", "==", f.CreatedBy)
	}

	total, err := count(ctx, q)
	if err != nil {
		return nil, err
	}

	page := max(f.Page, 1)
	limit := pageSize(f.Limit)
	snaps, err := q.OrderBy("createdAt", firestore.Desc).
		Offset((page - 1) * limit).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	items, err := decodePayments(snaps)
	if err != nil {
		return nil, err
	}
	return &payment.Page{
		Payments: items,
		Total:    total,
		Page:     page,
		Limit:    limit,
		HasMore:  page*limit < total,
	}, nil
}

func (r *PaymentRepository) PendingByMethod(ctx context.Context, method payment.Method) ([]*payment.Payment, error) {
	snaps, err := r.col().
		Where("method", "==", string(method)).
		Where("status", "==", string(payment.StatusPending)).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}
	return decodePayments(snaps)
}

func (r *PaymentRepository) All(ctx context.Context) ([]*payment.Payment, error) {
	snaps, err := r.col().Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return decodePayments(snaps)
}
