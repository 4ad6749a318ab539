package subscription

import "time"

type Status string

const (
	StatusActive        Status = "active"
	StatusAboutToExpire Status = "about_to_expire"
	StatusSuspended     Status = "suspended"
	StatusPaused        Status = "paused"
	StatusCancelled     Status = "cancelled"
)

var statuses = map[Status]bool{
	StatusActive:        true,
	StatusAboutToExpire: true,
	StatusSuspended:     true,
	StatusPaused:        true,
	StatusCancelled:     true,
}

func (s Status) Valid() bool { return statuses[s] }

// Settled reports statuses the overdue pass leaves alone.
func (s Status) Settled() bool {
	return s == StatusSuspended || s == StatusCancelled || s == StatusPaused
}

type Subscription struct {
	ID          string    `json:"id" firestore:"-"`
	ClientID    string    `json:"clientId" firestore:"clientId"`
	StartDate   string    `json:"startDate" firestore:"startDate"`
	CutDate     string    `json:"cutDate" firestore:"cutDate"`
	Plan        string    `json:"plan" firestore:"plan"`
	Amount      string    `json:"amount" firestore:"amount"`
	KitNumber   string    `json:"kitNumber,omitempty" firestore:"kitNumber,omitempty"`
	PasswordSub string    `json:"passwordSub,omitempty" firestore:"passwordSub,omitempty"`
	Status      Status    `json:"status" firestore:"status"`
	Country     string    `json:"country,omitempty" firestore:"country,omitempty"`
	CreatedAt   time.Time `json:"createdAt" firestore:"createdAt,serverTimestamp"`
	UpdatedAt   time.Time `json:"updatedAt" firestore:"updatedAt,serverTimestamp"`
}

// PlanLabel is what customer messages call the plan.
func (s *Subscription) PlanLabel() string {
	if s.Plan == "" {
		return "Plan"
	}
	return s.Plan
}
