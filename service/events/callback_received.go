package events

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/devwanji/Muranga-marketplace2/service/business"
	"github.com/devwanji/Muranga-marketplace2/service/models"
)

const StkCallbackReceivedName = "mpesa.stk.callback.received"

// StkCallbackReceived feeds provider callbacks, queued by the http handler, into reconciliation.
type StkCallbackReceived struct {
	Log    *logrus.Entry
	Engine business.ReconciliationEngine
}

func (event *StkCallbackReceived) Name() string {
	return StkCallbackReceivedName
}

func (event *StkCallbackReceived) PayloadType() any {
	return &models.StkCallbackEnvelope{}
}

func (event *StkCallbackReceived) Validate(_ context.Context, payload any) error {
	envelope, ok := payload.(*models.StkCallbackEnvelope)
	if !ok {
		return errors.New("payload is not of type models.StkCallbackEnvelope")
	}
	return envelope.Validate()
}

func (event *StkCallbackReceived) Execute(ctx context.Context, payload any) error {
	envelope := payload.(*models.StkCallbackEnvelope)
	outcome := OutcomeFromCallback(envelope)

	logger := event.Log.WithField("type", event.Name()).
		WithField("checkout_request_id", outcome.CheckoutRequestID)
	logger.WithField("result_code", outcome.ResultCode).Debug("handling event")

	result, err := event.Engine.Reconcile(ctx, outcome)
	if err != nil {
		if errors.Is(err, business.ErrorPaymentDoesNotExist) {
			// redelivery cannot make an unknown attempt appear
			return nil
		}
		logger.WithError(err).Warn("could not reconcile callback")
		return err
	}

	logger.WithField("status", result.Attempt.Status).
		WithField("already_resolved", result.AlreadyResolved).
		Debug("callback reconciled")
	return nil
}

// OutcomeFromCallback maps the provider envelope onto the engine's input. Validate must have passed.
func OutcomeFromCallback(envelope *models.StkCallbackEnvelope) business.Outcome {
	cb := envelope.Body.StkCallback

	resultCode := -1
	if cb.ResultCode != nil {
		resultCode = *cb.ResultCode
	}

	return business.Outcome{
		CheckoutRequestID: cb.CheckoutRequestID,
		MerchantRequestID: cb.MerchantRequestID,
		ResultCode:        resultCode,
		ResultDesc:        cb.ResultDesc,
		ReceiptNumber:     envelope.ItemString(models.CallbackItemReceiptNumber),
		TransactionDate:   envelope.TransactionDate(),
		PhoneNumber:       envelope.ItemString(models.CallbackItemPhoneNumber),
		Metadata:          envelope.Items(),
		Source:            business.OutcomeSourceCallback,
	}
}
