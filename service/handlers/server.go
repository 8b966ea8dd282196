package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/devwanji/Muranga-marketplace2/service/business"
	"github.com/devwanji/Muranga-marketplace2/service/coreapi"
	"github.com/devwanji/Muranga-marketplace2/service/models"
	"github.com/devwanji/Muranga-marketplace2/service/poller"
)

// StatusCoordinator is satisfied by *poller.Coordinator.
type StatusCoordinator interface {
	Check(ctx context.Context, checkoutRequestID string) (*poller.Report, error)
	Await(ctx context.Context, checkoutRequestID string) (*poller.Report, error)
}

// CallbackEmitter queues a validated provider callback for reconciliation.
type CallbackEmitter func(ctx context.Context, envelope *models.StkCallbackEnvelope) error

type Server struct {
	Log          *logrus.Entry
	Payments     business.PaymentBusiness
	Coordinator  StatusCoordinator
	EmitCallback CallbackEmitter
	JwtSecret    []byte
}

type errorResponse struct {
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps business and gateway errors onto http statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := http.StatusInternalServerError
	message := "Internal server error"

	var gwErr *coreapi.GatewayError
	if errors.As(err, &gwErr) {
		failed := false
		writeJSON(w, http.StatusBadGateway, errorResponse{Success: &failed, Error: gatewayMessage(gwErr)})
		return
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.InvalidArgument:
			statusCode, message = http.StatusBadRequest, st.Message()
		case codes.NotFound:
			statusCode, message = http.StatusNotFound, st.Message()
		case codes.Unauthenticated:
			statusCode, message = http.StatusUnauthorized, st.Message()
		}
	}

	if statusCode == http.StatusInternalServerError {
		s.Log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	writeJSON(w, statusCode, errorResponse{Error: message})
}

func gatewayMessage(err *coreapi.GatewayError) string {
	if err.Message != "" {
		return err.Message
	}
	return "Payment provider is unavailable"
}

func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
