package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"invite-auth/internal/config"
	"invite-auth/internal/repository"
	"invite-auth/internal/service"
)

// ProfileHandler mantiene dependencias para el area personal.
type ProfileHandler struct {
	logger     *zap.Logger
	accounts   repository.AccountRepository
	inviteServ *service.InviteService
	cfg        *config.Config
}

// NewProfileHandler crea una instancia de ProfileHandler con dependencias necesarias.
func NewProfileHandler(logger *zap.Logger, accounts repository.AccountRepository, inviteServ *service.InviteService, cfg *config.Config) *ProfileHandler {
	return &ProfileHandler{
		logger:     logger,
		accounts:   accounts,
		inviteServ: inviteServ,
		cfg:        cfg,
	}
}

// GetProfile maneja GET /profile.
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	account, err := h.accounts.GetByID(c.Request.Context(), claims.AccountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "account not found"})
			return
		}
		h.logger.Error("load profile failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load profile"})
		return
	}

	followers, err := h.inviteServ.Followers(c.Request.Context(), account.ID)
	if err != nil {
		h.logger.Error("load followers failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load profile"})
		return
	}

	followerPhones := make([]gin.H, 0, len(followers))
	for _, f := range followers {
		followerPhones = append(followerPhones, gin.H{"phone_number": f.PhoneNumber})
	}

	c.JSON(http.StatusOK, gin.H{
		"phone_number": account.PhoneNumber,
		"invite_code":  account.InviteCode,
		"invited_by":   account.InvitedBy,
		"followers":    followerPhones,
	})
}

// RedeemInvite maneja PATCH /profile/invite.
func (h *ProfileHandler) RedeemInvite(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	var req struct {
		InvitedBy string `json:"invited_by" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid redeem invite request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"invited_by": "this field is required"})
		return
	}

	_, err := h.inviteServ.Redeem(c.Request.Context(), claims.AccountID, req.InvitedBy)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInviteFormat):
			c.JSON(http.StatusBadRequest, gin.H{"invited_by": "invite code must be 6 characters"})
		case errors.Is(err, service.ErrInviteCodeNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"response": fmt.Sprintf(h.cfg.MsgInviteNotFound, req.InvitedBy)})
		case errors.Is(err, service.ErrAlreadyInvited):
			c.JSON(http.StatusBadRequest, gin.H{"response": h.cfg.MsgAlreadyInvited})
		case errors.Is(err, service.ErrSelfInvite):
			c.JSON(http.StatusBadRequest, gin.H{"response": h.cfg.MsgSelfInvite})
		case errors.Is(err, service.ErrAccountNotFound):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "account not found"})
		default:
			h.logger.Error("redeem invite failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not redeem invite"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"response": h.cfg.MsgInviterAdded})
}
