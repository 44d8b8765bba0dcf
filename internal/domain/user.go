package domain

import "time"

// UserPlan enumerates billing plans.
type UserPlan string

const (
	UserPlanFree UserPlan = "free"
	UserPlanPro  UserPlan = "pro"
)

// ParsePlan validates a plan name.
func ParsePlan(v string) (UserPlan, error) {
	switch UserPlan(v) {
	case UserPlanFree, UserPlanPro:
		return UserPlan(v), nil
	default:
		return "", ErrUnsupportedPlan
	}
}

// UpgradeOffer is the paid plan shown once free generations run out.
type UpgradeOffer struct {
	Plan     UserPlan `json:"plan"`
	Price    int      `json:"price"`
	Currency string   `json:"currency"`
	Interval string   `json:"interval"`
	Display  string   `json:"display"`
}

// ProOffer is the monthly subscription.
var ProOffer = UpgradeOffer{Plan: UserPlanPro, Price: 199, Currency: "INR", Interval: "month", Display: "₹199/month"}

// User represents an authenticated account within the platform.
type User struct {
	ID                string
	GoogleSub         string
	Email             string
	Name              string
	Picture           string
	Locale            string
	Plan              UserPlan
	FreeUsesRemaining int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsFree reports whether the user is using the free plan.
func (u User) IsFree() bool {
	return u.Plan == UserPlanFree
}

// CanGenerate reports whether a new generation may start.
func (u User) CanGenerate() bool {
	return !u.IsFree() || u.FreeUsesRemaining > 0
}
