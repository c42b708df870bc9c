package http

import (
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
	"github.com/FilipeAphrody/sentinel-identity/pkg/security"
)

const (
	contextKeyAccountID = "account_id"
	contextKeyEmail     = "email"
)

// JWTMiddleware intercepts the request to validate the JWT token in the Authorization header.
func JWTMiddleware(issuer *security.TokenIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return domain.NewError(domain.KindInvalidToken, "missing authorization header")
			}

			// Expected format: "Bearer <token>"
			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				return domain.NewError(domain.KindInvalidToken, "invalid authorization format")
			}

			identity, err := issuer.ValidateAccessToken(token)
			if err != nil {
				return domain.ErrInvalidToken
			}

			// Handlers read the caller's identity from the echo context.
			c.Set(contextKeyAccountID, identity.AccountID)
			c.Set(contextKeyEmail, identity.Email)

			return next(c)
		}
	}
}

func accountID(c echo.Context) string {
	id, _ := c.Get(contextKeyAccountID).(string)
	return id
}

// RequestLogger writes one structured line per request.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}
			level := slog.LevelInfo
			if v.Status >= 500 {
				level = slog.LevelError
				attrs = append(attrs, slog.Any("error", v.Error))
			}
			logger.LogAttrs(c.Request().Context(), level, "http request", attrs...)
			return nil
		},
	})
}
