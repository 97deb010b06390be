//go:build e2e
// +build e2e

package e2e

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"

	authpb "github.com/vibast-solutions/ms-go-auth/app/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	bookingPaymentsServiceName = "booking-payments-service"
	authMockAddr               = "0.0.0.0:38084"
)

// Each key falls back to a fixed default so the suite runs without any
// environment beyond the service under test.
var apiKeyDefaults = map[string]string{
	"PAYMENTS_CALLER_API_KEY":    "ops-console-key",
	"PAYMENTS_NO_ACCESS_API_KEY": "reporting-key",
	"PAYMENTS_APP_API_KEY":       "booking-payments-app-key",
}

func apiKeyFromEnv(name string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return apiKeyDefaults[name]
}

func paymentsCallerAPIKey() string   { return apiKeyFromEnv("PAYMENTS_CALLER_API_KEY") }
func paymentsNoAccessAPIKey() string { return apiKeyFromEnv("PAYMENTS_NO_ACCESS_API_KEY") }
func paymentsAppAPIKey() string      { return apiKeyFromEnv("PAYMENTS_APP_API_KEY") }

type internalCaller struct {
	serviceName string
	access      []string
}

// authMockServer answers ValidateInternalAccess for the callers the suite uses.
// The service under test authenticates itself with the app key.
type authMockServer struct {
	authpb.UnimplementedAuthServiceServer
	callers map[string]internalCaller
}

func newAuthMockServer() *authMockServer {
	return &authMockServer{
		callers: map[string]internalCaller{
			paymentsCallerAPIKey(): {
				serviceName: "ops-console",
				access:      []string{bookingPaymentsServiceName, "bookings-service"},
			},
			paymentsNoAccessAPIKey(): {
				serviceName: "reporting",
				access:      []string{"bookings-service"},
			},
		},
	}
}

func (s *authMockServer) ValidateInternalAccess(ctx context.Context, req *authpb.ValidateInternalAccessRequest) (*authpb.ValidateInternalAccessResponse, error) {
	if callerAPIKey(ctx) != paymentsAppAPIKey() {
		return nil, status.Error(codes.Unauthenticated, "unauthorized caller")
	}

	caller, ok := s.callers[strings.TrimSpace(req.GetApiKey())]
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "invalid api key")
	}
	return &authpb.ValidateInternalAccessResponse{
		ServiceName:   caller.serviceName,
		AllowedAccess: caller.access,
	}, nil
}

func callerAPIKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get("x-api-key") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func TestMain(m *testing.M) {
	for name, value := range apiKeyDefaults {
		if os.Getenv(name) == "" {
			_ = os.Setenv(name, value)
		}
	}

	listener, err := net.Listen("tcp", authMockAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start auth grpc mock: %v\n", err)
		os.Exit(1)
	}

	grpcServer := grpc.NewServer()
	authpb.RegisterAuthServiceServer(grpcServer, newAuthMockServer())

	go func() {
		_ = grpcServer.Serve(listener)
	}()

	exitCode := m.Run()

	grpcServer.GracefulStop()
	_ = listener.Close()

	os.Exit(exitCode)
}
