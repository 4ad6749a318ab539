package payment

import (
	"regexp"
	"strings"

	"subscriptionOpsAPI/internal/apperrors"
)

const (
	MinAmount = 0
	MaxAmount = 1_000_000
)

var (
	emailPattern     = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern     = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
	referencePattern = regexp.MustCompile(`^[a-zA-Z0-9-_]+$`)
	idNumberPattern  = regexp.MustCompile(`^[0-9]{6,12}$`)
)

// requiredFields lists, per method, the payer details that must be present.
var requiredFields = map[Method][]string{
	MethodFree:      {},
	MethodBinance:   {"reference", "payerEmail"},
	MethodZinli:     {"reference", "payerEmail"},
	MethodPagoMovil: {"payerPhone", "payerIdNumber", "bank"},
}

var transitions = map[Status][]Status{
	StatusPending:  {StatusVerified, StatusRejected},
	StatusRejected: {StatusPending},
}

func (m Method) Valid() bool {
	_, ok := requiredFields[m]
	return ok
}

func (c Currency) Valid() bool {
	return c == CurrencyUSD || c == CurrencyVES || c == CurrencyUSDT
}

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusVerified || s == StatusRejected
}

// CheckTransition returns an *apperrors.InvalidTransitionError unless the
// state machine has an edge from -> to.
func CheckTransition(from, to Status) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return &apperrors.InvalidTransitionError{From: string(from), To: string(to)}
}

// Normalize trims every free-text field, lower-cases the email and fills the
// default currency.
func (r *CreateRequest) Normalize() {
	r.SubscriptionID = strings.TrimSpace(r.SubscriptionID)
	r.Date = strings.TrimSpace(r.Date)
	r.Reference = strings.TrimSpace(r.Reference)
	r.PayerEmail = strings.ToLower(strings.TrimSpace(r.PayerEmail))
	r.PayerPhone = strings.TrimSpace(r.PayerPhone)
	r.PayerIDNumber = strings.TrimSpace(r.PayerIDNumber)
	r.Bank = strings.TrimSpace(r.Bank)
	r.ReceiptURL = strings.TrimSpace(r.ReceiptURL)
	if r.Currency == "" {
		r.Currency = CurrencyUSD
	}
}

// IsFree mirrors Payment.IsFree for a request that has not been stored yet.
func (r *CreateRequest) IsFree() bool {
	return r.Free || r.Method == MethodFree
}

// Validate checks the request shape: enums, amount bounds, the free-payment
// contract, the method's required fields and field formats. It does not look
// at the subscription; the monthly cap is enforced by the caller.
func (r *CreateRequest) Validate() error {
	if r.SubscriptionID == "" {
		return apperrors.Validationf("subscriptionId is required")
	}
	if !r.Method.Valid() {
		return apperrors.Validationf("invalid payment method: %q", r.Method)
	}
	if !r.Currency.Valid() {
		return apperrors.Validationf("invalid currency: %q", r.Currency)
	}
	if r.Amount < MinAmount || r.Amount > MaxAmount {
		return apperrors.Validationf("amount must be between %d and %d", MinAmount, MaxAmount)
	}

	if r.IsFree() {
		if r.Method != MethodFree {
			return apperrors.Validationf("free payments must use method %q", MethodFree)
		}
		if r.Amount != 0 {
			return apperrors.Validationf("free payments must have amount 0")
		}
	} else if r.Amount <= 0 {
		return apperrors.Validationf("amount must be greater than 0")
	}

	fields := r.fieldValues()
	var missing []string
	for _, name := range requiredFields[r.Method] {
		if fields[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return apperrors.Validationf("missing required fields for %s: %s", r.Method, strings.Join(missing, ", "))
	}

	if r.PayerEmail != "" && !emailPattern.MatchString(r.PayerEmail) {
		return apperrors.Validationf("invalid payer email")
	}
	if r.PayerPhone != "" && !phonePattern.MatchString(r.PayerPhone) {
		return apperrors.Validationf("invalid payer phone, expected E.164")
	}
	if r.Reference != "" && !referencePattern.MatchString(r.Reference) {
		return apperrors.Validationf("reference may only contain letters, digits, '-' and '_'")
	}
	if r.PayerIDNumber != "" && !idNumberPattern.MatchString(r.PayerIDNumber) {
		return apperrors.Validationf("payer id number must have 6 to 12 digits")
	}
	return nil
}

func (r *CreateRequest) fieldValues() map[string]string {
	return map[string]string{
		"reference":     r.Reference,
		"payerEmail":    r.PayerEmail,
		"payerPhone":    r.PayerPhone,
		"payerIdNumber": r.PayerIDNumber,
		"bank":          r.Bank,
	}
}
