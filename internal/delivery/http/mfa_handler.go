package http

import (
	"encoding/base64"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/FilipeAphrody/sentinel-identity/internal/usecase"
)

// MFAHandler handles MFA enrollment and management.
type MFAHandler struct {
	usecase *usecase.AuthUsecase
}

// NewMFAHandler registers the MFA management routes. Both require a valid
// access token.
func NewMFAHandler(e *echo.Group, u *usecase.AuthUsecase, auth echo.MiddlewareFunc) {
	handler := &MFAHandler{usecase: u}

	g := e.Group("/2fa", auth)
	g.POST("/setup", handler.Setup)
	g.POST("/verify", handler.Verify)
}

// mfaSetupResponse returns the QR code URI to the frontend.
type mfaSetupResponse struct {
	Secret         string `json:"secret"`
	ManualEntryKey string `json:"manual_entry_key"`
	QRCodeURI      string `json:"qr_code_uri"`
	QRCodeImage    string `json:"qr_code_image,omitempty"`
}

// mfaVerifyRequest carries the first code from the authenticator app.
type mfaVerifyRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// Setup generates a new pending TOTP secret for the caller.
func (h *MFAHandler) Setup(c echo.Context) error {
	setup, err := h.usecase.SetupTwoFactor(c.Request().Context(), accountID(c))
	if err != nil {
		return err
	}

	resp := mfaSetupResponse{
		Secret:         setup.Secret,
		ManualEntryKey: setup.ManualEntryKey,
		QRCodeURI:      setup.ProvisioningURI,
	}
	if len(setup.QRCodePNG) > 0 {
		resp.QRCodeImage = "data:image/png;base64," + base64.StdEncoding.EncodeToString(setup.QRCodePNG)
	}
	return c.JSON(http.StatusOK, resp)
}

// Verify checks the code against the pending secret and turns 2FA on.
func (h *MFAHandler) Verify(c echo.Context) error {
	var req mfaVerifyRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.usecase.ConfirmTwoFactor(c.Request().Context(), accountID(c), req.Code); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "two-factor authentication enabled"})
}
