package handlers

import (
	"time"

	"github.com/devwanji/Muranga-marketplace2/service/business"
	"github.com/devwanji/Muranga-marketplace2/service/models"
)

type planDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Amount      int64    `json:"amount"`
	Description string   `json:"description"`
	Features    []string `json:"features"`
}

func toPlanDTO(plan *models.SubscriptionPlan) *planDTO {
	if plan == nil {
		return nil
	}
	return &planDTO{
		ID:          plan.GetID(),
		Name:        plan.Name,
		Type:        plan.Type,
		Amount:      plan.Amount.IntPart(),
		Description: plan.Description,
		Features:    plan.FeatureList(),
	}
}

type subscriptionDTO struct {
	ID            string    `json:"id"`
	BusinessID    string    `json:"businessId"`
	PlanID        string    `json:"planId"`
	Plan          *planDTO  `json:"plan,omitempty"`
	StartDate     time.Time `json:"startDate"`
	EndDate       time.Time `json:"endDate"`
	AutoRenew     bool      `json:"autoRenew"`
	IsActive      bool      `json:"isActive"`
	IsExpired     bool      `json:"isExpired"`
	DaysRemaining int       `json:"daysRemaining"`
}

func toSubscriptionDTO(view *business.SubscriptionView) subscriptionDTO {
	return subscriptionDTO{
		ID:            view.Subscription.GetID(),
		BusinessID:    view.Subscription.BusinessID,
		PlanID:        view.Subscription.PlanID,
		Plan:          toPlanDTO(view.Plan),
		StartDate:     view.Subscription.StartDate,
		EndDate:       view.Subscription.EndDate,
		AutoRenew:     view.Subscription.AutoRenew,
		IsActive:      view.IsActive,
		IsExpired:     view.IsExpired,
		DaysRemaining: view.DaysRemaining,
	}
}

type paymentDTO struct {
	ID                 string     `json:"id"`
	BusinessID         string     `json:"businessId"`
	PlanID             string     `json:"planId"`
	SubscriptionID     *string    `json:"subscriptionId"`
	PhoneNumber        string     `json:"phoneNumber"`
	Amount             int64      `json:"amount"`
	CheckoutRequestID  string     `json:"checkoutRequestId"`
	MerchantRequestID  string     `json:"merchantRequestId"`
	Status             string     `json:"status"`
	ResultCode         *int       `json:"resultCode"`
	ResultDesc         string     `json:"resultDesc"`
	MpesaReceiptNumber string     `json:"mpesaReceiptNumber"`
	TransactionDate    *time.Time `json:"transactionDate"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

func toPaymentDTO(attempt *models.PaymentAttempt) *paymentDTO {
	if attempt == nil {
		return nil
	}
	return &paymentDTO{
		ID:                 attempt.GetID(),
		BusinessID:         attempt.BusinessID,
		PlanID:             attempt.PlanID,
		SubscriptionID:     attempt.SubscriptionID,
		PhoneNumber:        attempt.PhoneNumber,
		Amount:             attempt.Amount.IntPart(),
		CheckoutRequestID:  attempt.CheckoutRequestID,
		MerchantRequestID:  attempt.MerchantRequestID,
		Status:             attempt.Status,
		ResultCode:         attempt.ResultCode,
		ResultDesc:         attempt.ResultDesc,
		MpesaReceiptNumber: attempt.MpesaReceiptNumber,
		TransactionDate:    attempt.TransactionDate,
		CreatedAt:          attempt.CreatedAt,
		UpdatedAt:          attempt.UpdatedAt,
	}
}
