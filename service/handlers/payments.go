package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/devwanji/Muranga-marketplace2/service/business"
)

const maxRequestBody = 1 << 20

// PaymentRequest is the /pay body. Any amount the client sends is ignored, the plan decides the price.
type PaymentRequest struct {
	BusinessID  string `json:"businessId"`
	PlanID      string `json:"planId"`
	PhoneNumber string `json:"phoneNumber"`
}

type PaymentResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message,omitempty"`
	PaymentID         string `json:"paymentId"`
	CheckoutRequestID string `json:"checkoutRequestId"`
	MerchantRequestID string `json:"merchantRequestId"`
}

func (s *Server) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.Payments.ListPlans(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	response := make([]*planDTO, 0, len(plans))
	for _, plan := range plans {
		response = append(response, toPlanDTO(plan))
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) GetSubscription(w http.ResponseWriter, r *http.Request) {
	view, err := s.Payments.GetSubscription(r.Context(), mux.Vars(r)["businessId"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionDTO(view))
}

func (s *Server) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var request PaymentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request data"})
		return
	}

	response, err := s.Payments.Initiate(r.Context(), &business.InitiateRequest{
		BusinessID:  request.BusinessID,
		PlanID:      request.PlanID,
		PhoneNumber: request.PhoneNumber,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	message := response.CustomerMessage
	if message == "" {
		message = "Payment request sent. Check your phone to complete the payment."
	}
	writeJSON(w, http.StatusOK, PaymentResponse{
		Success:           true,
		Message:           message,
		PaymentID:         response.PaymentID,
		CheckoutRequestID: response.CheckoutRequestID,
		MerchantRequestID: response.MerchantRequestID,
	})
}

func (s *Server) PaymentHistory(w http.ResponseWriter, r *http.Request) {
	attempts, err := s.Payments.History(r.Context(), mux.Vars(r)["businessId"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	response := make([]*paymentDTO, 0, len(attempts))
	for _, attempt := range attempts {
		response = append(response, toPaymentDTO(attempt))
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) CheckSubscription(w http.ResponseWriter, r *http.Request) {
	has, err := s.Payments.HasActiveSubscription(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"hasActiveSubscription": has})
}

type EntitlementResponse struct {
	BusinessID string `json:"businessId"`
	Entitled   bool   `json:"entitled"`
}

// Entitlement answers whether a business may use paid features, e.g. when registering listings.
func (s *Server) Entitlement(w http.ResponseWriter, r *http.Request) {
	businessID := mux.Vars(r)["businessId"]
	entitled, err := s.Payments.IsEntitled(r.Context(), businessID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EntitlementResponse{BusinessID: businessID, Entitled: entitled})
}
