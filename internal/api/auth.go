package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/dmstream/internal/auth"
	"github.com/lalith-99/dmstream/internal/models"
	"github.com/lalith-99/dmstream/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// identityAttempts bounds retries when a freshly generated identity collides
// with an existing one.
const identityAttempts = 5

// AuthHandler handles signup and login, the only public JSON endpoints.
type AuthHandler struct {
	users          repository.UserRepository
	jwtSecret      string
	tokenTTL       time.Duration
	storageTimeout time.Duration
	logger         *zap.Logger
}

func NewAuthHandler(
	users repository.UserRepository,
	jwtSecret string,
	tokenTTL time.Duration,
	storageTimeout time.Duration,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		users:          users,
		jwtSecret:      jwtSecret,
		tokenTTL:       tokenTTL,
		storageTimeout: storageTimeout,
		logger:         logger,
	}
}

type signupRequest struct {
	FullName    string `json:"fullName" binding:"required"`
	Username    string `json:"username" binding:"required,min=3,max=32"`
	Email       string `json:"email" binding:"required,email"`
	PhoneNumber string `json:"phoneNumber"`
	Country     string `json:"country"`
	Password    string `json:"password" binding:"required,min=8"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// authResponse is what both signup and login return. The client keeps the
// token and sends it as "Authorization: Bearer <token>".
type authResponse struct {
	Msg   string             `json:"msg"`
	Token string             `json:"token"`
	User  models.UserSummary `json:"user"`
}

// Signup handles POST /v1/auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": err.Error()})
		return
	}

	taken, err := h.taken(c.Request.Context(), req.Email, req.Username)
	if err != nil {
		h.logger.Error("failed to check existing user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "signup failed"})
		return
	}
	if taken {
		c.JSON(http.StatusConflict, gin.H{"msg": "User with that email or username already exists"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("failed to hash password", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "signup failed"})
		return
	}

	nu := models.NewUser{
		Username:     req.Username,
		Email:        req.Email,
		FullName:     req.FullName,
		PhoneNumber:  req.PhoneNumber,
		Country:      req.Country,
		PasswordHash: string(hash),
	}

	var user *models.User
	for attempt := 0; attempt < identityAttempts; attempt++ {
		nu.Identity = auth.NewIdentity()
		user, err = h.create(c.Request.Context(), nu)
		if !errors.Is(err, repository.ErrDuplicate) {
			break
		}
		// Either the identity collided or someone took the email or
		// username since the check above.
		if taken, terr := h.taken(c.Request.Context(), req.Email, req.Username); terr == nil && taken {
			c.JSON(http.StatusConflict, gin.H{"msg": "User with that email or username already exists"})
			return
		}
		h.logger.Warn("identity collision, retrying", zap.String("identity", nu.Identity))
	}
	if err != nil {
		h.logger.Error("failed to create user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "signup failed"})
		return
	}

	token, err := auth.GenerateToken(user.ID, user.Identity, user.Username, h.jwtSecret, h.tokenTTL)
	if err != nil {
		h.logger.Error("failed to generate token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "signup failed"})
		return
	}

	h.logger.Info("user signed up", zap.String("identity", user.Identity))
	c.JSON(http.StatusCreated, authResponse{
		Msg:   "Account created successfully!",
		Token: token,
		User:  user.Summary(),
	})
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.storageTimeout)
	user, err := h.users.GetByUsername(ctx, req.Username)
	cancel()
	if err != nil {
		h.logger.Error("failed to find user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "login failed"})
		return
	}

	// Same answer for unknown user and wrong password.
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"msg": "Invalid Credentials"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"msg": "Invalid Credentials"})
		return
	}

	token, err := auth.GenerateToken(user.ID, user.Identity, user.Username, h.jwtSecret, h.tokenTTL)
	if err != nil {
		h.logger.Error("failed to generate token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "login failed"})
		return
	}

	c.JSON(http.StatusOK, authResponse{
		Msg:   "Logged in successfully!",
		Token: token,
		User:  user.Summary(),
	})
}

func (h *AuthHandler) taken(ctx context.Context, email, username string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, h.storageTimeout)
	defer cancel()
	u, err := h.users.GetByEmailOrUsername(ctx, email, username)
	return u != nil, err
}

func (h *AuthHandler) create(ctx context.Context, nu models.NewUser) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, h.storageTimeout)
	defer cancel()
	return h.users.Create(ctx, nu)
}
