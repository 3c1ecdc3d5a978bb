package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/dmstream/internal/middleware"
	"github.com/lalith-99/dmstream/internal/repository"
	"go.uber.org/zap"
)

// UserHandler handles user-related operations.
type UserHandler struct {
	repo           repository.UserRepository
	storageTimeout time.Duration
	logger         *zap.Logger
}

func NewUserHandler(repo repository.UserRepository, storageTimeout time.Duration, logger *zap.Logger) *UserHandler {
	return &UserHandler{repo: repo, storageTimeout: storageTimeout, logger: logger}
}

// GetMe handles GET /v1/users/me
//
// Returns the authenticated user's public summary.
func (h *UserHandler) GetMe(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.storageTimeout)
	defer cancel()

	user, err := h.repo.GetByIdentity(ctx, middleware.GetIdentity(c))
	if err != nil {
		h.logger.Error("failed to get user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "failed to get user"})
		return
	}

	// A valid token for a deleted account.
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"msg": "user not found"})
		return
	}

	c.JSON(http.StatusOK, user.Summary())
}
