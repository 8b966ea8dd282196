package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/devwanji/Muranga-marketplace2/service/models"
	"github.com/devwanji/Muranga-marketplace2/service/poller"
)

type StatusResponse struct {
	Success   bool        `json:"success"`
	Status    string      `json:"status"`
	Completed bool        `json:"completed"`
	TimedOut  bool        `json:"timedOut,omitempty"`
	Message   string      `json:"message,omitempty"`
	Payment   *paymentDTO `json:"payment"`
}

func toStatusResponse(report *poller.Report) StatusResponse {
	response := StatusResponse{
		Success:   true,
		Status:    report.Status,
		Completed: report.Status == models.PaymentStatusCompleted,
		TimedOut:  report.TimedOut,
		Payment:   toPaymentDTO(report.Attempt),
	}
	if report.TimedOut {
		response.Message = poller.TimedOutMessage
	}
	return response
}

func (s *Server) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.Coordinator.Check(r.Context(), mux.Vars(r)["checkoutRequestId"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(report))
}

// AwaitPaymentStatus holds the request open until the attempt resolves or the polling window ends.
func (s *Server) AwaitPaymentStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.Coordinator.Await(r.Context(), mux.Vars(r)["checkoutRequestId"])
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(report))
}
