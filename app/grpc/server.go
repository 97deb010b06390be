package grpc

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/vibast-solutions/ms-go-booking-payments/app/entity"
	"github.com/vibast-solutions/ms-go-booking-payments/app/mapper"
	"github.com/vibast-solutions/ms-go-booking-payments/app/service"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	opsServiceName           = "payments.ops.v1.PaymentsOps"
	opsGetPaymentMethod      = "/" + opsServiceName + "/GetPayment"
	opsReconcileIntentMethod = "/" + opsServiceName + "/ReconcileIntent"
)

// OpsServer is the internal operations surface. Requests carry a payment id
// or gateway intent id; responses are flat payment views.
type OpsServer interface {
	GetPayment(ctx context.Context, ref *wrapperspb.StringValue) (*structpb.Struct, error)
	ReconcileIntent(ctx context.Context, ref *wrapperspb.StringValue) (*structpb.Struct, error)
}

var opsServiceDesc = grpc.ServiceDesc{
	ServiceName: opsServiceName,
	HandlerType: (*OpsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetPayment", Handler: opsGetPaymentHandler},
		{MethodName: "ReconcileIntent", Handler: opsReconcileIntentHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "payments/ops/v1/ops.proto",
}

// Register attaches the ops service and a health service to s.
func Register(s *grpc.Server, srv OpsServer) *health.Server {
	s.RegisterService(&opsServiceDesc, srv)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(opsServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, healthSrv)
	return healthSrv
}

func opsGetPaymentHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OpsServer).GetPayment(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: opsGetPaymentMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(OpsServer).GetPayment(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func opsReconcileIntentHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OpsServer).ReconcileIntent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: opsReconcileIntentMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(OpsServer).ReconcileIntent(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

type paymentFinder interface {
	FindPayment(ctx context.Context, id uint64, intentID string) (*entity.PaymentAttempt, error)
	Reconcile(ctx context.Context, in service.ReconcileInput) (*service.ReconcileResult, error)
}

type Server struct {
	paymentService paymentFinder
}

func NewServer(paymentService *service.PaymentService) *Server {
	return &Server{paymentService: paymentService}
}

func (s *Server) GetPayment(ctx context.Context, ref *wrapperspb.StringValue) (*structpb.Struct, error) {
	id, intentID, err := parseRef(ref)
	if err != nil {
		return nil, err
	}

	item, err := s.paymentService.FindPayment(ctx, id, intentID)
	if err != nil {
		return nil, toStatus(ctx, err, "Get payment failed")
	}

	return paymentStruct(item, "")
}

func (s *Server) ReconcileIntent(ctx context.Context, ref *wrapperspb.StringValue) (*structpb.Struct, error) {
	id, intentID, err := parseRef(ref)
	if err != nil {
		return nil, err
	}
	if intentID == "" {
		item, err := s.paymentService.FindPayment(ctx, id, "")
		if err != nil {
			return nil, toStatus(ctx, err, "Reconcile intent failed")
		}
		intentID = item.IntentID
	}

	res, err := s.paymentService.Reconcile(ctx, service.ReconcileInput{IntentID: intentID, Trigger: service.TriggerManual})
	if err != nil {
		return nil, toStatus(ctx, err, "Reconcile intent failed")
	}

	return paymentStruct(res.Attempt, res.Outcome)
}

func parseRef(ref *wrapperspb.StringValue) (uint64, string, error) {
	raw := strings.TrimSpace(ref.GetValue())
	if raw == "" {
		return 0, "", status.Error(codes.InvalidArgument, "payment id or intent id is required")
	}
	if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
		if id == 0 {
			return 0, "", status.Error(codes.InvalidArgument, "invalid payment id")
		}
		return id, "", nil
	}
	return 0, raw, nil
}

func paymentStruct(item *entity.PaymentAttempt, outcome string) (*structpb.Struct, error) {
	fields := mapper.PaymentToFields(item)
	if outcome != "" {
		fields["outcome"] = outcome
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal server error")
	}
	return out, nil
}

func toStatus(ctx context.Context, err error, logMessage string) error {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrPaymentNotFound):
		return status.Error(codes.NotFound, "payment not found")
	case errors.Is(err, service.ErrGatewayTransient):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, service.ErrGatewayUnavailable), errors.Is(err, service.ErrGatewayInvalidRequest):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		loggerWithContext(ctx).WithError(err).Error(logMessage)
		return status.Error(codes.Internal, "internal server error")
	}
}

// OpsClient calls the ops service from other processes and tests.
type OpsClient struct {
	cc grpc.ClientConnInterface
}

func NewOpsClient(cc grpc.ClientConnInterface) *OpsClient {
	return &OpsClient{cc: cc}
}

func (c *OpsClient) GetPayment(ctx context.Context, ref string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, opsGetPaymentMethod, wrapperspb.String(ref), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OpsClient) ReconcileIntent(ctx context.Context, ref string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, opsReconcileIntentMethod, wrapperspb.String(ref), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
