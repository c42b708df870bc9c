package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
	"github.com/FilipeAphrody/sentinel-identity/internal/usecase"
)

const (
	msgVerificationSent = "if the account exists and is not verified, a verification link has been sent"
	msgResetSent        = "if the email is registered, a password reset link has been sent"
)

// AuthHandler represents the HTTP delivery layer for authentication.
type AuthHandler struct {
	usecase *usecase.AuthUsecase
}

// NewAuthHandler registers the authentication routes to the provided echo group.
// Logout sits behind auth.
func NewAuthHandler(e *echo.Group, u *usecase.AuthUsecase, auth echo.MiddlewareFunc) {
	handler := &AuthHandler{usecase: u}

	e.POST("/register", handler.Register)
	e.POST("/verify-email", handler.VerifyEmail)
	e.POST("/verify-email/resend", handler.ResendVerification)
	e.POST("/login", handler.Login)
	e.POST("/forgot-password", handler.ForgotPassword)
	e.POST("/reset-password", handler.ResetPassword)
	e.POST("/refresh-token", handler.RefreshToken)
	e.POST("/logout", handler.Logout, auth)
}

type verifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Token string `json:"token" validate:"required"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// loginRequest defines the expected JSON payload for the login endpoint.
type loginRequest struct {
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required"`
	TwoFactorCode string `json:"two_factor_code" validate:"omitempty,len=6,numeric"`
}

type refreshRequest struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type registerResponse struct {
	AccountID string `json:"account_id"`
	Message   string `json:"message"`
}

// bindAndValidate decodes the JSON body into req and runs its validate tags.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return domain.NewError(domain.KindValidation, "invalid request body")
	}
	return c.Validate(req)
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req usecase.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return domain.NewError(domain.KindValidation, "invalid request body")
	}

	res, err := h.usecase.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}

	// Delivery problems are an operator concern and do not change the response.
	return c.JSON(http.StatusCreated, registerResponse{
		AccountID: res.AccountID,
		Message:   "account created, check your email to verify it",
	})
}

func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req verifyEmailRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.usecase.VerifyEmail(c.Request().Context(), req.Email, req.Token); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "email verified"})
}

func (h *AuthHandler) ResendVerification(c echo.Context) error {
	var req emailRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.usecase.ResendVerification(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: msgVerificationSent})
}

// Login handles the authentication request. Accounts with 2FA enabled that
// sent no code get 202 and must repeat the call with two_factor_code.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.usecase.Login(c.Request().Context(), req.Email, req.Password, req.TwoFactorCode)
	if err != nil {
		return err
	}

	if res.RequiresTwoFactor {
		return c.JSON(http.StatusAccepted, res)
	}
	return c.JSON(http.StatusOK, res)
}

// ForgotPassword always answers 200 so the response does not reveal accounts.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req emailRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.usecase.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: msgResetSent})
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req usecase.ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return domain.NewError(domain.KindValidation, "invalid request body")
	}

	if err := h.usecase.ResetPassword(c.Request().Context(), req); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "password has been reset, please log in again"})
}

func (h *AuthHandler) RefreshToken(c echo.Context) error {
	var req refreshRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	resp, err := h.usecase.RefreshToken(c.Request().Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) Logout(c echo.Context) error {
	if err := h.usecase.Logout(c.Request().Context(), accountID(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "logged out"})
}
