package cmd

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	authclient "github.com/vibast-solutions/lib-go-auth/client"
	authmiddleware "github.com/vibast-solutions/lib-go-auth/middleware"
	authlibservice "github.com/vibast-solutions/lib-go-auth/service"
	"github.com/vibast-solutions/ms-go-booking-payments/app/auth"
	"github.com/vibast-solutions/ms-go-booking-payments/app/controller"
	paymentgrpc "github.com/vibast-solutions/ms-go-booking-payments/app/grpc"
	"github.com/vibast-solutions/ms-go-booking-payments/app/types"
	"github.com/vibast-solutions/ms-go-booking-payments/config"
	"google.golang.org/grpc"
)

const webhookBodyLimit = "1M"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  "Start the public HTTP API, the gateway webhook endpoint and the internal gRPC ops server.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	deps, cleanup := mustCreateDependencies()
	defer cleanup()
	cfg := deps.cfg

	paymentController := controller.NewPaymentController(deps.paymentService)
	webhookController := controller.NewWebhookController(deps.paymentService)
	grpcOpsServer := paymentgrpc.NewServer(deps.paymentService)

	authGRPCClient, err := authclient.NewGRPCClientFromAddr(context.Background(), cfg.InternalEndpoints.AuthGRPCAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize auth gRPC client")
	}
	defer authGRPCClient.Close()

	internalAuthService := authlibservice.NewInternalAuthService(authGRPCClient)
	echoInternalAuthMiddleware := authmiddleware.NewEchoInternalAuthMiddleware(internalAuthService)
	grpcInternalAuthMiddleware := authmiddleware.NewGRPCInternalAuthMiddleware(internalAuthService)

	e := setupHTTPServer(cfg, paymentController, webhookController, echoInternalAuthMiddleware)
	grpcSrv, lis := setupGRPCServer(cfg, grpcOpsServer, grpcInternalAuthMiddleware)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	go func() {
		logrus.WithField("addr", lis.Addr().String()).Info("Starting gRPC server")
		if err := grpcSrv.Serve(lis); err != nil {
			logrus.WithError(err).Fatal("gRPC server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}
	grpcSrv.GracefulStop()

	drained := make(chan struct{})
	go func() {
		deps.paymentService.WaitFollowUps()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		logrus.Warn("Shutdown deadline reached with follow-ups still running")
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(
	cfg *config.Config,
	paymentController *controller.PaymentController,
	webhookController *controller.WebhookController,
	internalAuthMiddleware *authmiddleware.EchoInternalAuthMiddleware,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
				"request_id": v.RequestID,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.GET("/health", paymentController.Health)

	payments := e.Group("/payments", requireRequestID(), auth.JWTMiddleware(auth.JWTConfig{Secret: cfg.Auth.JWTSecret}))
	payments.POST("/create-intent", paymentController.CreateIntent)
	payments.POST("/confirm", paymentController.ConfirmPayment)
	payments.POST("/:id/refund", paymentController.RefundPayment, auth.RequireRole(cfg.Auth.AdminRole))
	payments.GET("/:id", paymentController.GetPayment)

	// The gateway does not send a request id, so one is generated here.
	webhooks := e.Group("/webhooks",
		echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{
			Generator: func() string { return uuid.NewString() },
		}),
		echomiddleware.BodyLimit(webhookBodyLimit),
	)
	webhooks.POST("/gateway", webhookController.Handle)

	internal := e.Group("/internal", requireRequestID(), internalAuthMiddleware.RequireInternalAccess(cfg.App.ServiceName))
	internal.GET("/payments/:id", paymentController.InternalGetPayment)
	internal.POST("/payments/:id/reconcile", paymentController.InternalReconcile)

	return e
}

func requireRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "x-request-id header is required"})
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

func setupGRPCServer(
	cfg *config.Config,
	opsServer *paymentgrpc.Server,
	internalAuthMiddleware *authmiddleware.GRPCInternalAuthMiddleware,
) (*grpc.Server, net.Listener) {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	grpcSrv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			paymentgrpc.RecoveryInterceptor(),
			paymentgrpc.SkipHealthChecks(paymentgrpc.RequestIDInterceptor()),
			paymentgrpc.LoggingInterceptor(),
			paymentgrpc.SkipHealthChecks(internalAuthMiddleware.UnaryRequireInternalAccess(cfg.App.ServiceName)),
		),
	)
	paymentgrpc.Register(grpcSrv, opsServer)

	return grpcSrv, lis
}
