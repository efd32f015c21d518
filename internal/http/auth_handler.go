package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"invite-auth/internal/config"
	"invite-auth/internal/service"
)

// AuthHandler mantiene dependencias para los endpoints de autenticacion.
type AuthHandler struct {
	logger   *zap.Logger
	authServ *service.AuthService
	jwtServ  *service.JWTService
	cfg      *config.Config
}

// NewAuthHandler crea una instancia de AuthHandler con dependencias necesarias.
func NewAuthHandler(logger *zap.Logger, authServ *service.AuthService, jwtServ *service.JWTService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		logger:   logger,
		authServ: authServ,
		jwtServ:  jwtServ,
		cfg:      cfg,
	}
}

// SubmitPhone maneja POST /auth/phone.
func (h *AuthHandler) SubmitPhone(c *gin.Context) {
	var req struct {
		PhoneNumber string `json:"phone_number" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid submit phone request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"phone_number": "this field is required"})
		return
	}

	result, err := h.authServ.SubmitPhone(c.Request.Context(), req.PhoneNumber)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPhone):
			c.JSON(http.StatusBadRequest, gin.H{"phone_number": "invalid phone number"})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		default:
			h.logger.Error("submit phone failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not submit phone"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"response": fmt.Sprintf(h.cfg.MsgOTPSent, result.OTP)})
}

// VerifyOTP maneja PATCH /auth/phone.
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req struct {
		OTP string `json:"otp" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid otp verify request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"otp": "this field is required"})
		return
	}

	_, pair, err := h.authServ.VerifyOTP(c.Request.Context(), req.OTP)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidOTPFormat),
			errors.Is(err, service.ErrOTPNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"response": h.cfg.MsgOTPNotFound})
		case errors.Is(err, service.ErrTokenIssuance):
			h.logger.Error("token issuance exhausted", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue tokens"})
		default:
			h.logger.Error("verify otp failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not verify otp"})
		}
		return
	}

	c.JSON(http.StatusOK, pair)
}

// RefreshToken maneja POST /auth/refresh.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid refresh request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if h.jwtServ == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "jwt not configured"})
		return
	}
	pair, err := h.jwtServ.RefreshPair(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// Logout maneja POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid logout request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if h.jwtServ == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "jwt not configured"})
		return
	}
	_ = h.jwtServ.RevokeRefresh(req.RefreshToken)
	c.Status(http.StatusNoContent)
}
