package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-booking-payments/app/factory"
)

// User is the caller resolved from a bearer token.
type User struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

type contextKey string

const userContextKey contextKey = "authenticated_user"

type JWTConfig struct {
	Secret string
	Logger logrus.FieldLogger
}

// JWTMiddleware resolves the caller from an optional bearer token. Requests
// without an Authorization header continue as guests; a header that is
// present but invalid is rejected.
func JWTMiddleware(config JWTConfig) echo.MiddlewareFunc {
	logger := config.Logger
	if logger == nil {
		logger = factory.NewModuleLogger("auth-middleware")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			authHeader := strings.TrimSpace(c.Request().Header.Get(echo.HeaderAuthorization))
			if authHeader == "" {
				return next(c)
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				logger.WithField("path", path).Warn("Invalid authorization header format")
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "Invalid authorization header format. Expected: Bearer <token>",
					"code":  "INVALID_AUTH_FORMAT",
				})
			}
			if config.Secret == "" {
				logger.WithField("path", path).Warn("Bearer token presented but JWT secret is not configured")
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "Invalid or expired token",
					"code":  "INVALID_TOKEN",
				})
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(config.Secret), nil
			})
			if err != nil {
				logger.WithError(err).WithField("path", path).Warn("JWT validation failed")
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "Invalid or expired token",
					"code":  "INVALID_TOKEN",
				})
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || !token.Valid {
				logger.WithField("path", path).Warn("Invalid JWT claims")
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "Invalid token claims",
					"code":  "INVALID_CLAIMS",
				})
			}

			subject, _ := claims.GetSubject()
			if strings.TrimSpace(subject) == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "Token subject is required",
					"code":  "INVALID_CLAIMS",
				})
			}
			email, _ := claims["email"].(string)
			role, _ := claims["role"].(string)

			user := &User{
				UserID: subject,
				Email:  strings.ToLower(strings.TrimSpace(email)),
				Role:   role,
			}

			c.SetRequest(c.Request().WithContext(WithUser(c.Request().Context(), user)))
			c.Set(factory.UserIDContextKey, user.UserID)

			logger.WithField("user_id", user.UserID).WithField("path", path).Debug("User authenticated successfully")
			return next(c)
		}
	}
}

// WithUser attaches an authenticated caller to ctx.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the authenticated caller, or nil for guests.
func UserFromContext(c echo.Context) *User {
	user, ok := c.Request().Context().Value(userContextKey).(*User)
	if !ok {
		return nil
	}
	return user
}

// RequireRole rejects guests with 401 and authenticated callers lacking role
// with 403.
func RequireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := UserFromContext(c)
			if user == nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "Authentication required",
					"code":  "AUTH_REQUIRED",
				})
			}
			if user.Role != role {
				return c.JSON(http.StatusForbidden, echo.Map{
					"error": "Insufficient permissions",
					"code":  "FORBIDDEN",
				})
			}
			return next(c)
		}
	}
}
