package coreapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	TransactionTypePayBillOnline = "CustomerPayBillOnline"

	// ErrorCodeTransactionInProgress is what the query endpoint answers while the payer has not acted yet.
	ErrorCodeTransactionInProgress = "500.001.1001"

	timestampLayout = "20060102150405"
	tokenPrefix     = "mpesa:access_token:"
	tokenSafety     = 60 * time.Second
	defaultTokenTTL = 3599 * time.Second
)

var eastAfricaTime = time.FixedZone("EAT", 3*60*60)

var _ Gateway = (*Client)(nil)

// Client talks to the Safaricom Daraja API.
type Client struct {
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	PassKey        string
	HttpClient     *http.Client
	Env            string
	Tokens         TokenCache
	Now            func() time.Time
}

// New creates a Daraja client for the given base url (sandbox, production or a test server).
func New(consumerKey, consumerSecret, shortCode, passKey, env string, tokens TokenCache) *Client {
	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:    10,
		IdleConnTimeout: 30 * time.Second,
	}

	httpClient := &http.Client{
		Transport: tr,
		Timeout:   30 * time.Second,
	}

	if tokens == nil {
		tokens = NewMemoryTokenCache()
	}

	return &Client{
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		ShortCode:      shortCode,
		PassKey:        passKey,
		HttpClient:     httpClient,
		Env:            strings.TrimRight(env, "/"),
		Tokens:         tokens,
		Now:            time.Now,
	}
}

// AccessTokenResponse is the body of the OAuth client credentials grant.
type AccessTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type PushRequest struct {
	Amount           int64
	PhoneNumber      string
	CallbackURL      string
	AccountReference string
	Description      string
}

type PushResult struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// ProviderStatus is the provider's view of a push; Pending means it has no final answer yet.
type ProviderStatus struct {
	Pending           bool
	ResultCode        int
	ResultDesc        string
	MerchantRequestID string
	CheckoutRequestID string
}

type stkPushBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkQueryBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

type errorResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// GenerateAccessToken returns a cached token or fetches a new one with the consumer credentials.
func (c *Client) GenerateAccessToken(ctx context.Context) (string, error) {
	key := tokenPrefix + c.ConsumerKey
	if c.Tokens != nil {
		if token, ok, err := c.Tokens.Get(ctx, key); err == nil && ok {
			return token, nil
		}
	}

	url := fmt.Sprintf("%s/oauth/v1/generate?grant_type=client_credentials", c.Env)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &GatewayError{Op: "oauth", Message: "could not build request", Err: err}
	}
	req.SetBasicAuth(c.ConsumerKey, c.ConsumerSecret)

	var tokenResponse AccessTokenResponse
	if err = c.do(req, "oauth", &tokenResponse); err != nil {
		return "", err
	}
	if tokenResponse.AccessToken == "" {
		return "", &GatewayError{Op: "oauth", Message: "response has no access_token"}
	}

	if c.Tokens != nil {
		// a failed cache write only costs another token request later
		_ = c.Tokens.Set(ctx, key, tokenResponse.AccessToken, tokenTTL(tokenResponse.ExpiresIn))
	}
	return tokenResponse.AccessToken, nil
}

func tokenTTL(expiresIn string) time.Duration {
	ttl := defaultTokenTTL
	if seconds, err := strconv.Atoi(strings.TrimSpace(expiresIn)); err == nil && seconds > 0 {
		ttl = time.Duration(seconds) * time.Second
	}
	if ttl > 2*tokenSafety {
		ttl -= tokenSafety
	}
	return ttl
}

// Password derives the request password and the East Africa timestamp it was computed for.
func (c *Client) Password() (string, string) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	timestamp := now().In(eastAfricaTime).Format(timestampLayout)
	password := base64.StdEncoding.EncodeToString([]byte(c.ShortCode + c.PassKey + timestamp))
	return password, timestamp
}

// InitiatePush sends the STK prompt to the payer's phone. A nil error means the provider
// accepted the request, not that anything was paid.
func (c *Client) InitiatePush(ctx context.Context, request PushRequest) (*PushResult, error) {
	if request.Amount <= 0 {
		return nil, &GatewayError{Op: "stkpush", Message: "amount must be a positive whole number"}
	}

	password, timestamp := c.Password()
	body := stkPushBody{
		BusinessShortCode: c.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   TransactionTypePayBillOnline,
		Amount:            request.Amount,
		PartyA:            NormalizePhoneNumber(request.PhoneNumber),
		PartyB:            c.ShortCode,
		PhoneNumber:       NormalizePhoneNumber(request.PhoneNumber),
		CallBackURL:       request.CallbackURL,
		AccountReference:  request.AccountReference,
		TransactionDesc:   request.Description,
	}

	var result PushResult
	if err := c.postJSON(ctx, "stkpush", "/mpesa/stkpush/v1/processrequest", body, &result); err != nil {
		return nil, err
	}

	if result.ResponseCode != "0" {
		return nil, &GatewayError{Op: "stkpush", Code: result.ResponseCode, Message: result.ResponseDescription}
	}
	if result.CheckoutRequestID == "" {
		return nil, &GatewayError{Op: "stkpush", Message: "response has no CheckoutRequestID"}
	}
	return &result, nil
}

// QueryStatus asks the provider for the outcome of an earlier push.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*ProviderStatus, error) {
	password, timestamp := c.Password()
	body := stkQueryBody{
		BusinessShortCode: c.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}

	var response stkQueryResponse
	err := c.postJSON(ctx, "stkquery", "/mpesa/stkpushquery/v1/query", body, &response)
	if err != nil {
		var gwErr *GatewayError
		if errors.As(err, &gwErr) && gwErr.Code == ErrorCodeTransactionInProgress {
			return &ProviderStatus{Pending: true, CheckoutRequestID: checkoutRequestID, ResultDesc: gwErr.Message}, nil
		}
		return nil, err
	}

	if response.ResponseCode != "" && response.ResponseCode != "0" {
		return nil, &GatewayError{Op: "stkquery", Code: response.ResponseCode, Message: response.ResponseDescription}
	}
	if strings.TrimSpace(response.ResultCode) == "" {
		return nil, &GatewayError{Op: "stkquery", Message: "response has no ResultCode"}
	}

	resultCode, err := strconv.Atoi(strings.TrimSpace(response.ResultCode))
	if err != nil {
		return nil, &GatewayError{Op: "stkquery", Message: "non numeric ResultCode", Err: err}
	}

	return &ProviderStatus{
		ResultCode:        resultCode,
		ResultDesc:        response.ResultDesc,
		MerchantRequestID: response.MerchantRequestID,
		CheckoutRequestID: checkoutRequestIDOr(response.CheckoutRequestID, checkoutRequestID),
	}, nil
}

func checkoutRequestIDOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func (c *Client) postJSON(ctx context.Context, op string, path string, body any, out any) error {
	token, err := c.GenerateAccessToken(ctx)
	if err != nil {
		return err
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return &GatewayError{Op: op, Message: "could not encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Env+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return &GatewayError{Op: op, Message: "could not build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	err = c.do(req, op, out)

	var gwErr *GatewayError
	if errors.As(err, &gwErr) && gwErr.StatusCode == http.StatusUnauthorized && c.Tokens != nil {
		_ = c.Tokens.Delete(ctx, tokenPrefix+c.ConsumerKey)
	}
	return err
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return &GatewayError{Op: op, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: "could not read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		gwErr := &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: resp.Status}
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil {
			gwErr.Code = errResp.ErrorCode
			if errResp.ErrorMessage != "" {
				gwErr.Message = errResp.ErrorMessage
			}
		}
		return gwErr
	}

	if err = json.Unmarshal(respBody, out); err != nil {
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}
