package business

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrorInitializationFail = status.Error(codes.Internal, "Internal configuration is invalid")

	ErrorInvalidPaymentRequest = status.Error(codes.InvalidArgument, "businessId, planId and phoneNumber are required")

	ErrorInvalidPhoneNumber = status.Error(codes.InvalidArgument, "Invalid phone number. Use format: 07XXXXXXXX or 2547XXXXXXXX")

	ErrorBusinessNotFound = status.Error(codes.NotFound, "Business not found")

	ErrorPlanNotFound = status.Error(codes.NotFound, "Subscription plan not found")

	ErrorSubscriptionNotFound = status.Error(codes.NotFound, "No subscription found for this business")

	ErrorPaymentDoesNotExist = status.Error(codes.NotFound, "Specified payment does not exist")
)
