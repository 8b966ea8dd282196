package coreapi

import "context"

//go:generate mockgen -source=interfaces.go -destination=mock_gateway.go -package=coreapi

// Gateway is the slice of the Daraja API the reconciliation flow depends on.
type Gateway interface {
	InitiatePush(ctx context.Context, request PushRequest) (*PushResult, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (*ProviderStatus, error)
}
