package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"subscriptionOpsAPI/internal/apperrors"
	"subscriptionOpsAPI/internal/dates"
	"subscriptionOpsAPI/internal/metrics"
	"subscriptionOpsAPI/internal/money"
	"subscriptionOpsAPI/internal/payment"
	"subscriptionOpsAPI/internal/subscription"
)

const maxPaymentPageSize = 100

type PaymentService struct {
	payments      PaymentStore
	subscriptions SubscriptionStore
	loc           *time.Location
	now           func() time.Time
	logger        *slog.Logger
}

func NewPaymentService(payments PaymentStore, subscriptions SubscriptionStore, loc *time.Location, logger *slog.Logger) *PaymentService {
	return &PaymentService{
		payments:      payments,
		subscriptions: subscriptions,
		loc:           loc,
		now:           time.Now,
		logger:        logger,
	}
}

// VerificationResult reports what verifying a payment did to its
// subscription.
type VerificationResult struct {
	Payment       *payment.Payment `json:"payment"`
	FullyPaid     bool             `json:"fullyPaid"`
	VerifiedTotal string           `json:"verifiedTotal"`
	CutDate       string           `json:"cutDate"`
}

func monthlyAmount(sub *subscription.Subscription) (decimal.Decimal, error) {
	m, err := money.Parse(sub.Amount)
	if err != nil {
		return decimal.Zero, apperrors.Validationf("subscription %s has an invalid amount %q", sub.ID, sub.Amount)
	}
	return m, nil
}

// committedTotal sums pending and verified payments of a subscription,
// leaving out excludeID.
func (s *PaymentService) committedTotal(ctx context.Context, subscriptionID, excludeID string) (decimal.Decimal, error) {
	existing, err := s.payments.ListBySubscription(ctx, subscriptionID, payment.StatusPending, payment.StatusVerified)
	if err != nil {
		return decimal.Zero, err
	}
	return sumAmounts(existing, excludeID), nil
}

func sumAmounts(payments []*payment.Payment, excludeID string) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if p.ID == excludeID {
			continue
		}
		total = total.Add(decimal.NewFromFloat(p.Amount))
	}
	return total
}

func checkCap(monthly, existing, amount decimal.Decimal) error {
	if existing.Add(amount).LessThanOrEqual(monthly) {
		return nil
	}
	remaining := decimal.Max(monthly.Sub(existing), decimal.Zero)
	return apperrors.Validationf(
		"payment of %s exceeds the monthly amount: monthly %s, already registered %s, remaining %s",
		money.Format(amount), money.Format(monthly), money.Format(existing), money.Format(remaining),
	)
}

// Create registers a payment as pending. Non-free payments are checked
// against the subscription's monthly amount: pending and verified payments
// together may never exceed it.
func (s *PaymentService) Create(ctx context.Context, req *payment.CreateRequest, userID string) (*payment.Payment, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.subscriptions.Get(ctx, req.SubscriptionID)
	if err != nil {
		return nil, err
	}

	date := dates.Today(s.now(), s.loc)
	if req.Date != "" {
		if date, err = dates.Normalize(req.Date, s.loc); err != nil {
			return nil, apperrors.Validationf("%v", err)
		}
	}

	if !req.IsFree() {
		monthly, err := monthlyAmount(sub)
		if err != nil {
			return nil, err
		}
		if monthly.IsPositive() {
			existing, err := s.committedTotal(ctx, sub.ID, "")
			if err != nil {
				return nil, fmt.Errorf("failed to sum existing payments: %w", err)
			}
			if err := checkCap(monthly, existing, decimal.NewFromFloat(req.Amount)); err != nil {
				return nil, err
			}
		}
	}

	created, err := s.payments.Create(ctx, &payment.Payment{
		SubscriptionID: sub.ID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Date:           date,
		Method:         req.Method,
		Status:         payment.StatusPending,
		Reference:      req.Reference,
		PayerEmail:     req.PayerEmail,
		PayerPhone:     req.PayerPhone,
		PayerIDNumber:  req.PayerIDNumber,
		Bank:           req.Bank,
		ReceiptURL:     req.ReceiptURL,
		Free:           req.IsFree(),
		CreatedBy:      userID,
	})
	if err != nil {
		return nil, err
	}

	metrics.PaymentTransitions.WithLabelValues(string(payment.StatusPending)).Inc()
	s.logger.Info("payment registered", "payment_id", created.ID, "subscription_id", sub.ID, "amount", req.Amount, "method", req.Method)
	return created, nil
}

// Verify approves a pending payment. The monthly cap is re-checked against
// the current state of the store, then the subscription is reactivated. The
// cut date moves forward by one month only once verified payments cover the
// monthly amount; free payments skip the cap check but count as zero.
func (s *PaymentService) Verify(ctx context.Context, id, userID, notes string) (*VerificationResult, error) {
	p, err := s.payments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := payment.CheckTransition(p.Status, payment.StatusVerified); err != nil {
		return nil, err
	}

	sub, err := s.subscriptions.Get(ctx, p.SubscriptionID)
	if err != nil {
		return nil, err
	}
	monthly, err := monthlyAmount(sub)
	if err != nil {
		return nil, err
	}

	amount := decimal.NewFromFloat(p.Amount)
	if !p.IsFree() && monthly.IsPositive() {
		others, err := s.committedTotal(ctx, sub.ID, p.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to sum existing payments: %w", err)
		}
		if err := checkCap(monthly, others, amount); err != nil {
			return nil, err
		}
	}

	verified, err := s.payments.ListBySubscription(ctx, sub.ID, payment.StatusVerified)
	if err != nil {
		return nil, fmt.Errorf("failed to sum verified payments: %w", err)
	}
	total := sumAmounts(verified, p.ID).Add(amount)

	result := &VerificationResult{
		VerifiedTotal: money.Format(total),
		CutDate:       sub.CutDate,
		FullyPaid:     total.GreaterThanOrEqual(monthly),
	}

	settlement := payment.Settlement{
		PaymentID:          p.ID,
		VerifiedBy:         userID,
		Notes:              notes,
		VerifiedAt:         s.now().UTC(),
		SubscriptionID:     sub.ID,
		SubscriptionStatus: string(subscription.StatusActive),
	}
	if result.FullyPaid {
		next, err := dates.AddMonths(sub.CutDate, 1)
		if err != nil {
			return nil, fmt.Errorf("subscription %s has an invalid cut date: %w", sub.ID, err)
		}
		settlement.CutDate = next
		result.CutDate = next
	}

	if err := s.payments.Settle(ctx, settlement); err != nil {
		return nil, err
	}
	metrics.PaymentTransitions.WithLabelValues(string(payment.StatusVerified)).Inc()

	s.logger.Info("payment verified",
		"payment_id", p.ID,
		"subscription_id", sub.ID,
		"verified_total", result.VerifiedTotal,
		"fully_paid", result.FullyPaid,
		"cut_date", result.CutDate,
	)

	if result.Payment, err = s.payments.Get(ctx, p.ID); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PaymentService) Reject(ctx context.Context, id, userID, notes string) (*payment.Payment, error) {
	p, err := s.payments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := payment.CheckTransition(p.Status, payment.StatusRejected); err != nil {
		return nil, err
	}
	if err := s.payments.SetStatus(ctx, id, payment.StatusRejected, notes); err != nil {
		return nil, err
	}
	metrics.PaymentTransitions.WithLabelValues(string(payment.StatusRejected)).Inc()
	s.logger.Info("payment rejected", "payment_id", id, "by", userID)
	return s.payments.Get(ctx, id)
}

// owned loads a payment and, when owner is set, refuses payments registered
// by somebody else.
func (s *PaymentService) owned(ctx context.Context, id, owner string) (*payment.Payment, error) {
	p, err := s.payments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if owner != "" && p.CreatedBy != owner {
		return nil, apperrors.Forbiddenf("payment %s belongs to another user", id)
	}
	return p, nil
}

// Retry moves a rejected payment back to pending so it can be reviewed again.
// A non-empty owner restricts the retry to payments that owner registered.
func (s *PaymentService) Retry(ctx context.Context, id, userID, owner string) (*payment.Payment, error) {
	p, err := s.owned(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if p.Status != payment.StatusRejected {
		return nil, &apperrors.InvalidTransitionError{From: string(p.Status), To: string(payment.StatusPending)}
	}
	if err := s.payments.SetStatus(ctx, id, payment.StatusPending, ""); err != nil {
		return nil, err
	}
	metrics.PaymentTransitions.WithLabelValues(string(payment.StatusPending)).Inc()
	s.logger.Info("payment retried", "payment_id", id, "by", userID)
	return s.payments.Get(ctx, id)
}

func (s *PaymentService) Get(ctx context.Context, id, owner string) (*payment.Payment, error) {
	return s.owned(ctx, id, owner)
}

func (s *PaymentService) List(ctx context.Context, f payment.Filter) (*payment.Page, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperrors.Validationf("invalid status %q", f.Status)
	}
	if f.Method != "" && !f.Method.Valid() {
		return nil, apperrors.Validationf("invalid method %q", f.Method)
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > maxPaymentPageSize {
		return nil, apperrors.Validationf("limit cannot exceed %d", maxPaymentPageSize)
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	return s.payments.List(ctx, f)
}

// BySubscription lists a subscription's payments, keeping only the ones
// registered by owner when owner is set.
func (s *PaymentService) BySubscription(ctx context.Context, subscriptionID, owner string) ([]*payment.Payment, error) {
	all, err := s.payments.ListBySubscription(ctx, subscriptionID)
	if err != nil || owner == "" {
		return all, err
	}
	mine := make([]*payment.Payment, 0, len(all))
	for _, p := range all {
		if p.CreatedBy == owner {
			mine = append(mine, p)
		}
	}
	return mine, nil
}

func (s *PaymentService) PendingByMethod(ctx context.Context, method payment.Method) ([]*payment.Payment, error) {
	if !method.Valid() {
		return nil, apperrors.Validationf("invalid method %q", method)
	}
	return s.payments.PendingByMethod(ctx, method)
}

func (s *PaymentService) Stats(ctx context.Context) (*payment.Stats, error) {
	all, err := s.payments.All(ctx)
	if err != nil {
		return nil, err
	}
	stats := &payment.Stats{Total: len(all)}
	verifiedTotal := decimal.Zero
	for _, p := range all {
		switch p.Status {
		case payment.StatusPending:
			stats.Pending++
		case payment.StatusVerified:
			stats.Verified++
			verifiedTotal = verifiedTotal.Add(decimal.NewFromFloat(p.Amount))
		case payment.StatusRejected:
			stats.Rejected++
		}
	}
	stats.TotalAmount = verifiedTotal.InexactFloat64()
	return stats, nil
}
