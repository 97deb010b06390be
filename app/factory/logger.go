package factory

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

func NewModuleLogger(module string) logrus.FieldLogger {
	return logrus.WithField("module", module)
}

// LoggerWithContext tags a module logger with the request id and, when the
// caller is authenticated, the user id.
func LoggerWithContext(logger logrus.FieldLogger, ctx echo.Context) logrus.FieldLogger {
	if ctx == nil {
		return logger
	}

	requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
	if requestID == "" {
		requestID = strings.TrimSpace(ctx.Response().Header().Get(echo.HeaderXRequestID))
	}
	if requestID != "" {
		logger = logger.WithField("request_id", requestID)
	}
	if userID, ok := ctx.Get(UserIDContextKey).(string); ok && userID != "" {
		logger = logger.WithField("user_id", userID)
	}
	return logger
}

// UserIDContextKey is where the auth middleware stores the caller's user id.
const UserIDContextKey = "auth.user_id"
