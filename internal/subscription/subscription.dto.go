package subscription

type CreateRequest struct {
	ClientID    string `json:"clientId"`
	StartDate   string `json:"startDate"`
	CutDate     string `json:"cutDate"`
	Plan        string `json:"plan"`
	Amount      string `json:"amount"`
	KitNumber   string `json:"kitNumber,omitempty"`
	PasswordSub string `json:"passwordSub,omitempty"`
	Country     string `json:"country,omitempty"`
}

type UpdateRequest struct {
	StartDate   *string `json:"startDate,omitempty"`
	CutDate     *string `json:"cutDate,omitempty"`
	Plan        *string `json:"plan,omitempty"`
	Amount      *string `json:"amount,omitempty"`
	KitNumber   *string `json:"kitNumber,omitempty"`
	PasswordSub *string `json:"passwordSub,omitempty"`
	Country     *string `json:"country,omitempty"`
	Status      *Status `json:"status,omitempty"`
}

func (r *UpdateRequest) Empty() bool {
	return r.StartDate == nil && r.CutDate == nil && r.Plan == nil && r.Amount == nil &&
		r.KitNumber == nil && r.PasswordSub == nil && r.Country == nil && r.Status == nil
}

// DueQuery selects subscriptions for one scheduler pass. An empty Status
// matches every status. With OnOrBefore the cut date is an upper bound
// instead of an exact match.
type DueQuery struct {
	Status     Status
	CutDate    string
	OnOrBefore bool
}

type Page struct {
	Items      []*Subscription `json:"items"`
	NextCursor string          `json:"nextCursor,omitempty"`
}
