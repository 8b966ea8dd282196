package router

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/devwanji/Muranga-marketplace2/service/handlers"
)

// NewRouter mounts the payment api under prefix, e.g. /api/payment.
func NewRouter(server *handlers.Server, prefix string) *mux.Router {
	router := mux.NewRouter().StrictSlash(true)

	// Health check endpoint
	router.HandleFunc("/health", handlers.HealthHandler).Methods(http.MethodGet)

	api := router
	if prefix = strings.TrimRight(prefix, "/"); prefix != "" {
		api = router.PathPrefix(prefix).Subrouter()
	}

	api.HandleFunc("/subscription-plans", server.ListPlans).Methods(http.MethodGet)
	// registered before /subscription/{businessId} so "check" is not taken for an id
	api.HandleFunc("/subscription/check", server.RequireUser(server.CheckSubscription)).Methods(http.MethodGet)
	api.HandleFunc("/subscription/{businessId}", server.GetSubscription).Methods(http.MethodGet)
	api.HandleFunc("/subscription/{businessId}/entitled", server.Entitlement).Methods(http.MethodGet)

	api.HandleFunc("/pay", server.InitiatePayment).Methods(http.MethodPost)
	api.HandleFunc("/history/{businessId}", server.PaymentHistory).Methods(http.MethodGet)

	api.HandleFunc("/status/{checkoutRequestId}", server.PaymentStatus).Methods(http.MethodGet)
	api.HandleFunc("/status/{checkoutRequestId}/await", server.AwaitPaymentStatus).Methods(http.MethodGet)

	// Callback endpoint
	api.HandleFunc("/callback", server.HandleStkCallback).Methods(http.MethodPost)

	return router
}
