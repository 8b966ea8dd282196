package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/devwanji/Muranga-marketplace2/service/models"
)

type callbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// HandleStkCallback always acknowledges with 200. A non-200 answer only makes the provider
// redeliver; anything that cannot be queued here is picked up later by the pending sweep.
func (s *Server) HandleStkCallback(w http.ResponseWriter, r *http.Request) {
	logger := s.Log.WithField("type", "CallbackHandler")
	defer writeJSON(w, http.StatusOK, callbackAck{ResultCode: 0, ResultDesc: "Success"})

	envelope := &models.StkCallbackEnvelope{}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(envelope); err != nil {
		logger.WithError(err).Warn("could not decode callback body")
		return
	}
	if err := envelope.Validate(); err != nil {
		logger.WithError(err).Warn("callback rejected")
		return
	}

	cb := envelope.Body.StkCallback
	logger = logger.
		WithField("checkout_request_id", cb.CheckoutRequestID).
		WithField("result_code", *cb.ResultCode)

	// the provider may hang up before processing ends
	ctx := context.WithoutCancel(r.Context())
	if err := s.EmitCallback(ctx, envelope); err != nil {
		logger.WithError(err).Error("could not queue callback for reconciliation")
		return
	}
	logger.Info("callback accepted for processing")
}
