package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devwanji/Muranga-marketplace2/service/business"
	"github.com/devwanji/Muranga-marketplace2/service/coreapi"
	"github.com/devwanji/Muranga-marketplace2/service/models"
)

func testServer() *Server {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return &Server{Log: logrus.NewEntry(logger), JwtSecret: []byte("secret")}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "Invalid argument",
			err:         business.ErrorInvalidPhoneNumber,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Invalid phone number. Use format: 07XXXXXXXX or 2547XXXXXXXX",
		},
		{
			name:       "Not found",
			err:        business.ErrorSubscriptionNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:        "Gateway failure",
			err:         fmt.Errorf("push: %w", &coreapi.GatewayError{Op: "stkpush", StatusCode: 503}),
			wantStatus:  http.StatusBadGateway,
			wantMessage: "Payment provider is unavailable",
		},
		{
			name:        "Anything else",
			err:         errors.New("connection reset"),
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Internal server error",
		},
	}

	s := testServer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, body["error"])
			}
		})
	}
}

func TestRequireUser(t *testing.T) {
	sign := func(method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
		token, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return token
	}
	valid := jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "Valid token", header: "Bearer " + sign(jwt.SigningMethodHS256, []byte("secret"), valid), wantStatus: http.StatusOK},
		{name: "Missing header", wantStatus: http.StatusUnauthorized},
		{name: "Not a bearer token", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized},
		{name: "Wrong secret", header: "Bearer " + sign(jwt.SigningMethodHS256, []byte("other"), valid), wantStatus: http.StatusUnauthorized},
		{name: "Wrong algorithm", header: "Bearer " + sign(jwt.SigningMethodHS512, []byte("secret"), valid), wantStatus: http.StatusUnauthorized},
		{
			name: "Expired",
			header: "Bearer " + sign(jwt.SigningMethodHS256, []byte("secret"), jwt.RegisteredClaims{
				Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "No subject",
			header:     "Bearer " + sign(jwt.SigningMethodHS256, []byte("secret"), jwt.RegisteredClaims{ExpiresAt: valid.ExpiresAt}),
			wantStatus: http.StatusUnauthorized,
		},
	}

	s := testServer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := s.RequireUser(func(w http.ResponseWriter, r *http.Request) {
				seen = userIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/subscription/check", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "user-1", seen)
			} else {
				assert.Empty(t, seen)
			}
		})
	}
}

func TestHandleStkCallback_EmitFailureStillAcknowledges(t *testing.T) {
	s := testServer()
	var emitted int
	s.EmitCallback = func(_ context.Context, _ *models.StkCallbackEnvelope) error {
		emitted++
		return errors.New("queue is down")
	}

	body := `{"Body":{"stkCallback":{"MerchantRequestID":"mr-1","CheckoutRequestID":"ws_1","ResultCode":0,"ResultDesc":"ok",
		"CallbackMetadata":{"Item":[{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"}]}}}}`
	rec := httptest.NewRecorder()
	s.HandleStkCallback(rec, httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Success"}`, rec.Body.String())
	assert.Equal(t, 1, emitted)
}

func TestHandleStkCallback_SuccessWithoutReceiptIsNotQueued(t *testing.T) {
	s := testServer()
	var emitted int
	s.EmitCallback = func(_ context.Context, _ *models.StkCallbackEnvelope) error {
		emitted++
		return nil
	}

	body := `{"Body":{"stkCallback":{"MerchantRequestID":"mr-1","CheckoutRequestID":"ws_1","ResultCode":0,"ResultDesc":"ok"}}}`
	rec := httptest.NewRecorder()
	s.HandleStkCallback(rec, httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Success"}`, rec.Body.String())
	assert.Zero(t, emitted)
}
