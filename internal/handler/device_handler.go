package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ducminhle/gridnote/internal/middleware"
	"github.com/ducminhle/gridnote/internal/model"
	"github.com/ducminhle/gridnote/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DeviceHandler handles device pairing and device-management endpoints
type DeviceHandler struct {
	pairingService *service.PairingService
	tokenService   *service.TokenService
}

func NewDeviceHandler(pairingService *service.PairingService, tokenService *service.TokenService) *DeviceHandler {
	return &DeviceHandler{
		pairingService: pairingService,
		tokenService:   tokenService,
	}
}

// Register godoc
// @Summary Register a device and obtain a pairing code
// @Tags Devices
// @Accept json
// @Produce json
// @Param body body model.RegisterDeviceRequest true "Register request"
// @Success 201 {object} model.RegisterDeviceResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /devices/register [post]
func (h *DeviceHandler) Register(c *gin.Context) {
	var req model.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	reg, err := h.pairingService.Register(c.Request.Context(), req.DeviceFingerprint)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid fingerprint"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, model.ErrorResponse{Error: "Registration unavailable"})
		return
	}

	c.JSON(http.StatusCreated, model.RegisterDeviceResponse{
		DeviceID:  reg.DeviceID,
		Code:      reg.Code,
		ExpiresAt: reg.ExpiresAt,
	})
}

// Exchange godoc
// @Summary Trade a device id and pairing code for a device token
// @Tags Devices
// @Accept json
// @Produce json
// @Param body body model.ExchangeRequest true "Exchange request"
// @Success 200 {object} model.TokenResponse
// @Failure 425 {object} model.ErrorResponse "Not linked yet, keep polling"
// @Failure 410 {object} model.ErrorResponse "Code expired, re-register"
// @Router /devices/exchange [post]
func (h *DeviceHandler) Exchange(c *gin.Context) {
	var req model.ExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	resp, err := h.pairingService.Exchange(c.Request.Context(), req.DeviceID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotLinked):
			c.JSON(http.StatusTooEarly, model.ErrorResponse{Error: "Device not linked yet"})
		case errors.Is(err, service.ErrCodeExpired):
			c.JSON(http.StatusGone, model.ErrorResponse{Error: "Pairing code expired"})
		default:
			c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Exchange failed"})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Refresh godoc
// @Summary Exchange the current device token for a fresh one
// @Tags Devices
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.TokenResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /devices/refresh [post]
func (h *DeviceHandler) Refresh(c *gin.Context) {
	token := bearerFromHeader(c.GetHeader("Authorization"))
	if token == "" {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Bearer token required"})
		return
	}

	resp, err := h.tokenService.Refresh(token)
	if err != nil {
		if service.IsTokenInvalid(err) {
			c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Invalid token"})
			return
		}
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Refresh failed"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Link godoc
// @Summary Link a pending device to the signed-in account
// @Tags Devices
// @Accept json
// @Produce json
// @Param body body model.LinkDeviceRequest true "Link request"
// @Success 200 {object} model.MessageResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /devices/link [post]
func (h *DeviceHandler) Link(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Authentication required"})
		return
	}

	var req model.LinkDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	err := h.pairingService.Link(c.Request.Context(), principal.UserID, principal.Email, req.Code, req.DeviceName)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid code"})
		case errors.Is(err, service.ErrRegistrationNotFound):
			c.JSON(http.StatusNotFound, model.ErrorResponse{Error: "Unknown or expired code"})
		default:
			c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Link failed"})
		}
		return
	}

	c.JSON(http.StatusOK, model.MessageResponse{Message: "Device linked"})
}

// ListDevices godoc
// @Summary List the caller's linked devices
// @Tags Devices
// @Produce json
// @Security BearerAuth
// @Success 200 {array} model.DeviceResponse
// @Router /devices [get]
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Authentication required"})
		return
	}

	devices, err := h.tokenService.ListDevices(principal.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to list devices"})
		return
	}

	c.JSON(http.StatusOK, devices)
}

// RenameDevice godoc
// @Summary Rename one of the caller's devices
// @Tags Devices
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Device ID"
// @Param body body model.RenameDeviceRequest true "Rename request"
// @Success 200 {object} model.MessageResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /devices/{id} [patch]
func (h *DeviceHandler) RenameDevice(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Authentication required"})
		return
	}

	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid device id"})
		return
	}

	var req model.RenameDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	if err := h.tokenService.RenameDevice(principal.UserID, deviceID, req.Name); err != nil {
		switch {
		case errors.Is(err, service.ErrDeviceNotFound):
			c.JSON(http.StatusNotFound, model.ErrorResponse{Error: "Device not found"})
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid name"})
		default:
			c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Rename failed"})
		}
		return
	}

	c.JSON(http.StatusOK, model.MessageResponse{Message: "Device renamed"})
}

// RevokeDevice godoc
// @Summary Revoke one of the caller's devices
// @Tags Devices
// @Produce json
// @Security BearerAuth
// @Param id path string true "Device ID"
// @Success 204 "Revoked"
// @Router /devices/{id} [delete]
func (h *DeviceHandler) RevokeDevice(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Authentication required"})
		return
	}

	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid device id"})
		return
	}

	// Idempotent: revoking an unknown or foreign device succeeds without
	// revealing whether it existed.
	if err := h.tokenService.Revoke(principal.UserID, deviceID); err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Revoke failed"})
		return
	}

	c.Status(http.StatusNoContent)
}

// Profile godoc
// @Summary Return the authenticated principal (dual-mode check endpoint)
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.Principal
// @Router /auth/profile [get]
func (h *DeviceHandler) Profile(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{Error: "Authentication required"})
		return
	}
	c.JSON(http.StatusOK, principal)
}

// bearerFromHeader extracts the raw token from an Authorization header
func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
