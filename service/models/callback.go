package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/devwanji/Muranga-marketplace2/service/coreapi"
)

const (
	CallbackItemAmount          = "Amount"
	CallbackItemReceiptNumber   = "MpesaReceiptNumber"
	CallbackItemTransactionDate = "TransactionDate"
	CallbackItemPhoneNumber     = "PhoneNumber"

	callbackDateLayout = "20060102150405"
)

var eastAfricaTime = time.FixedZone("EAT", 3*60*60)

// StkCallbackEnvelope is the body Daraja posts to the callback url.
type StkCallbackEnvelope struct {
	Body StkCallbackBody `json:"Body"`
}

type StkCallbackBody struct {
	StkCallback StkCallback `json:"stkCallback"`
}

type StkCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        *int              `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type CallbackMetadata struct {
	Item []CallbackItem `json:"Item"`
}

type CallbackItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value,omitempty"`
}

func (e *StkCallbackEnvelope) Validate() error {
	cb := e.Body.StkCallback
	if strings.TrimSpace(cb.CheckoutRequestID) == "" {
		return &coreapi.GatewayError{Op: "stkcallback", Message: "callback has no CheckoutRequestID"}
	}
	if cb.ResultCode == nil {
		return &coreapi.GatewayError{Op: "stkcallback", Message: "callback has no ResultCode"}
	}
	// a completed attempt is immutable, so a success without its receipt is refused rather than stored
	if *cb.ResultCode == MpesaResultCodeSuccess {
		if cb.CallbackMetadata == nil || len(cb.CallbackMetadata.Item) == 0 {
			return &coreapi.GatewayError{Op: "stkcallback", Message: "successful callback has no CallbackMetadata"}
		}
		if strings.TrimSpace(e.ItemString(CallbackItemReceiptNumber)) == "" {
			return &coreapi.GatewayError{Op: "stkcallback", Message: "successful callback has no MpesaReceiptNumber"}
		}
	}
	return nil
}

// Items flattens the metadata list into a map, keeping provider value types.
func (e *StkCallbackEnvelope) Items() map[string]any {
	items := make(map[string]any)
	if e.Body.StkCallback.CallbackMetadata == nil {
		return items
	}
	for _, item := range e.Body.StkCallback.CallbackMetadata.Item {
		if item.Value != nil {
			items[item.Name] = item.Value
		}
	}
	return items
}

// ItemString renders a metadata value as text; numbers keep every digit.
func (e *StkCallbackEnvelope) ItemString(name string) string {
	value, ok := e.Items()[name]
	if !ok {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}

// TransactionDate reads the yyyyMMddHHmmss stamp, which the provider writes in Nairobi time.
func (e *StkCallbackEnvelope) TransactionDate() *time.Time {
	raw := e.ItemString(CallbackItemTransactionDate)
	if raw == "" {
		return nil
	}
	parsed, err := time.ParseInLocation(callbackDateLayout, raw, eastAfricaTime)
	if err != nil {
		return nil
	}
	parsed = parsed.UTC()
	return &parsed
}
