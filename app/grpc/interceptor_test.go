package grpc

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestRequestIDFromMetadata(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(requestIDHeader, " ops-abc "))
	if got := requestIDFromMetadata(ctx); got != "ops-abc" {
		t.Fatalf("expected ops-abc, got %q", got)
	}
	if got := requestIDFromMetadata(context.Background()); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}
}

func TestRequestIDInterceptorRequiresHeader(t *testing.T) {
	interceptor := RequestIDInterceptor()

	called := false
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: opsGetPaymentMethod}, func(context.Context, interface{}) (interface{}, error) {
		called = true
		return "ok", nil
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for missing x-request-id, got %v", err)
	}
	if called {
		t.Fatal("handler must not run without a request id")
	}
}

func TestRequestIDInterceptorStoresID(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(requestIDHeader, "ops-fixed"))
	interceptor := RequestIDInterceptor()

	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: opsGetPaymentMethod}, func(ctx context.Context, req interface{}) (interface{}, error) {
		if got := RequestIDFromContext(ctx); got != "ops-fixed" {
			t.Fatalf("expected ops-fixed, got %q", got)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRecoveryInterceptorConvertsPanicToInternal(t *testing.T) {
	interceptor := RecoveryInterceptor()
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: opsReconcileIntentMethod}, func(context.Context, interface{}) (interface{}, error) {
		panic("boom")
	})
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected codes.Internal, got %v", err)
	}
}

func TestLoggingInterceptorPassesErrorsThrough(t *testing.T) {
	interceptor := LoggingInterceptor()
	want := status.Error(codes.NotFound, "payment not found")
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: opsGetPaymentMethod}, func(context.Context, interface{}) (interface{}, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected handler error to pass through, got %v", err)
	}

	resp, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: opsGetPaymentMethod}, func(context.Context, interface{}) (interface{}, error) {
		return "ok", nil
	})
	if err != nil || resp != "ok" {
		t.Fatalf("unexpected result: %v %v", resp, err)
	}
}

func TestSkipHealthChecksBypassesWrappedInterceptor(t *testing.T) {
	interceptor := SkipHealthChecks(RequestIDInterceptor())
	handler := func(context.Context, interface{}) (interface{}, error) { return "ok", nil }

	resp, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, handler)
	if err != nil || resp != "ok" {
		t.Fatalf("expected health check to bypass request id, got %v, %v", resp, err)
	}

	_, err = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: opsGetPaymentMethod}, handler)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected ops method to still require request id, got %v", err)
	}
}
