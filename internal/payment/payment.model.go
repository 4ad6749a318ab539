package payment

import "time"

type Method string

const (
	MethodFree      Method = "free"
	MethodBinance   Method = "binance"
	MethodZinli     Method = "zinli"
	MethodPagoMovil Method = "pago_movil"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

type Currency string

const (
	CurrencyUSD  Currency = "USD"
	CurrencyVES  Currency = "VES"
	CurrencyUSDT Currency = "USDT"
)

type Payment struct {
	ID             string     `json:"id" firestore:"-"`
	SubscriptionID string     `json:"subscriptionId" firestore:"subscriptionId"`
	Amount         float64    `json:"amount" firestore:"amount"`
	Currency       Currency   `json:"currency" firestore:"currency"`
	Date           string     `json:"date" firestore:"date"`
	Method         Method     `json:"method" firestore:"method"`
	Status         Status     `json:"status" firestore:"status"`
	Reference      string     `json:"reference,omitempty" firestore:"reference,omitempty"`
	PayerEmail     string     `json:"payerEmail,omitempty" firestore:"payerEmail,omitempty"`
	PayerPhone     string     `json:"payerPhone,omitempty" firestore:"payerPhone,omitempty"`
	PayerIDNumber  string     `json:"payerIdNumber,omitempty" firestore:"payerIdNumber,omitempty"`
	Bank           string     `json:"bank,omitempty" firestore:"bank,omitempty"`
	ReceiptURL     string     `json:"receiptUrl,omitempty" firestore:"receiptUrl,omitempty"`
	Free           bool       `json:"free,omitempty" firestore:"free,omitempty"`
	CreatedAt      time.Time  `json:"createdAt" firestore:"createdAt,serverTimestamp"`
	CreatedBy      string     `json:"createdBy" firestore:"createdBy"`
	VerifiedAt     *time.Time `json:"verifiedAt,omitempty" firestore:"verifiedAt,omitempty"`
	VerifiedBy     string     `json:"verifiedBy,omitempty" firestore:"verifiedBy,omitempty"`
	Notes          string     `json:"notes,omitempty" firestore:"notes,omitempty"`
}

// IsFree reports a fee exemption, flagged either way.
func (p *Payment) IsFree() bool {
	return p.Free || p.Method == MethodFree
}

// Settlement is what verifying a payment writes: the payment's review fields
// and its subscription's status, plus a new cut date when the month is paid.
type Settlement struct {
	PaymentID          string
	VerifiedBy         string
	Notes              string
	VerifiedAt         time.Time
	SubscriptionID     string
	SubscriptionStatus string
	CutDate            string
}
