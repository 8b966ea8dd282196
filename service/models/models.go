package models

import (
	"math"
	"strings"
	"time"

	"github.com/pitabwire/frame"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	PlanTypeMonthly = "monthly"
	PlanTypeYearly  = "yearly"

	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"

	// MpesaResultCodeSuccess is the only result code that confirms a payment.
	MpesaResultCodeSuccess = 0
	// MpesaResultCodeCancelled is sent when the payer dismisses the prompt.
	MpesaResultCodeCancelled = 1032
)

// SubscriptionPlan is a static catalog entry, read only from the payment flow.
type SubscriptionPlan struct {
	frame.BaseModel
	Name        string          `gorm:"type:varchar(100);not null"`
	Type        string          `gorm:"type:varchar(10);not null"`
	Amount      decimal.Decimal `gorm:"type:numeric;not null"`
	Description string          `gorm:"type:text"`
	Features    string          `gorm:"type:text"`
}

func (SubscriptionPlan) TableName() string {
	return "subscription_plans"
}

func (model *SubscriptionPlan) FeatureList() []string {
	features := make([]string, 0)
	for _, f := range strings.Split(model.Features, ",") {
		if f = strings.TrimSpace(f); f != "" {
			features = append(features, f)
		}
	}
	return features
}

// Business is the slice of the directory listing the payment flow needs.
type Business struct {
	frame.BaseModel
	OwnerID string `gorm:"type:varchar(50);index;not null"`
	Name    string `gorm:"type:varchar(250);not null"`
	Phone   string `gorm:"type:varchar(20)"`
}

func (Business) TableName() string {
	return "businesses"
}

// PaymentAttempt holds one STK push request and its resolution.
type PaymentAttempt struct {
	frame.BaseModel

	BusinessID     string  `gorm:"type:varchar(50);index;not null"`
	PlanID         string  `gorm:"type:varchar(50);not null"`
	SubscriptionID *string `gorm:"type:varchar(50)"`

	PhoneNumber string          `gorm:"type:varchar(20);not null"`
	Amount      decimal.Decimal `gorm:"type:numeric;not null"`

	CheckoutRequestID string `gorm:"type:varchar(100);uniqueIndex;not null"`
	MerchantRequestID string `gorm:"type:varchar(100)"`

	Status             string `gorm:"type:varchar(20);index;not null"`
	ResultCode         *int
	ResultDesc         string `gorm:"type:text"`
	MpesaReceiptNumber string `gorm:"type:varchar(50)"`
	TransactionDate    *time.Time
	Extra              datatypes.JSONMap
	// LastCheckedAt is when the pending sweep last asked the provider about this attempt.
	LastCheckedAt *time.Time `gorm:"index"`
	UpdatedAt     time.Time
}

func (PaymentAttempt) TableName() string {
	return "mpesa_payments"
}

func (model *PaymentAttempt) IsTerminal() bool {
	return model.Status == PaymentStatusCompleted || model.Status == PaymentStatusFailed
}

// Subscription is the access grant of a business; at most one row per business.
type Subscription struct {
	frame.BaseModel
	BusinessID string    `gorm:"type:varchar(50);uniqueIndex;not null"`
	PlanID     string    `gorm:"type:varchar(50);not null"`
	StartDate  time.Time `gorm:"not null"`
	EndDate    time.Time `gorm:"not null;index"`
	IsActive   bool      `gorm:"not null"`
	AutoRenew  bool      `gorm:"not null"`
}

func (Subscription) TableName() string {
	return "business_subscriptions"
}

// IsEntitledAt is the only definition of a live subscription; expiry is never stored.
func (model *Subscription) IsEntitledAt(at time.Time) bool {
	return model.IsActive && model.EndDate.After(at)
}

// DaysRemainingAt rounds partial days up and is zero once the subscription is no longer entitled.
func (model *Subscription) DaysRemainingAt(at time.Time) int {
	if !model.IsEntitledAt(at) {
		return 0
	}
	return int(math.Ceil(model.EndDate.Sub(at).Hours() / 24))
}

// AllModels lists every table the service owns, in migration order.
func AllModels() []any {
	return []any{
		&SubscriptionPlan{},
		&Business{},
		&PaymentAttempt{},
		&Subscription{},
	}
}
