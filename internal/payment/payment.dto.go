package payment

type CreateRequest struct {
	SubscriptionID string   `json:"subscriptionId"`
	Amount         float64  `json:"amount"`
	Currency       Currency `json:"currency,omitempty"`
	Date           string   `json:"date,omitempty"`
	Method         Method   `json:"method"`
	Reference      string   `json:"reference,omitempty"`
	PayerEmail     string   `json:"payerEmail,omitempty"`
	PayerPhone     string   `json:"payerPhone,omitempty"`
	PayerIDNumber  string   `json:"payerIdNumber,omitempty"`
	Bank           string   `json:"bank,omitempty"`
	ReceiptURL     string   `json:"receiptUrl,omitempty"`
	Free           bool     `json:"free,omitempty"`
}

type ReviewRequest struct {
	Notes string `json:"notes,omitempty"`
}

type Filter struct {
	SubscriptionID string
	Status         Status
	Method         Method
	CreatedBy      string
	Page           int
	Limit          int
}

type Page struct {
	Payments []*Payment `json:"payments"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	Limit    int        `json:"limit"`
	HasMore  bool       `json:"hasMore"`
}

type Stats struct {
	Total       int     `json:"total"`
	Pending     int     `json:"pending"`
	Verified    int     `json:"verified"`
	Rejected    int     `json:"rejected"`
	TotalAmount float64 `json:"totalAmount"`
}
