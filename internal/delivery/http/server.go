package http

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/FilipeAphrody/sentinel-identity/internal/usecase"
	"github.com/FilipeAphrody/sentinel-identity/pkg/security"
)

const maxBodySize = "64K"

// NewRouter assembles the echo instance with middleware and every route.
func NewRouter(logger *slog.Logger, u *usecase.AuthUsecase, issuer *security.TokenIssuer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Order matters: recover first, request id before the logger.
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(RequestLogger(logger))
	e.Use(middleware.CORS())
	e.Use(middleware.Secure())
	e.Use(middleware.BodyLimit(maxBodySize))

	e.HTTPErrorHandler = NewErrorHandler(logger)
	e.Validator = requestValidator{}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	auth := JWTMiddleware(issuer)
	v1 := e.Group("/v1/auth")
	NewAuthHandler(v1, u, auth)
	NewMFAHandler(v1, u, auth)

	return e
}
