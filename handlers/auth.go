package handlers

import (
	"errors"
	"net/http"
	"strings"

	"shop-svc/apperr"
	"shop-svc/middleware"
	"shop-svc/models"
	"shop-svc/store"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type AuthHandler struct {
	store  *store.Store
	tokens *middleware.TokenIssuer
	logger *zap.Logger
}

func NewAuthHandler(st *store.Store, tokens *middleware.TokenIssuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		store:  st,
		tokens: tokens,
		logger: logger,
	}
}

func (h *AuthHandler) Register(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "Register")
	defer span.End()

	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	role := req.Role
	if role == "" {
		role = models.RoleUser
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		Role:         role,
		PasswordHash: string(hashedPassword),
	}
	if err := h.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			respondError(c, h.logger, apperr.Conflict("User already exists"))
			return
		}
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}

	resp, err := h.issuePair(user)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("User registered",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("user_id", user.ID),
		zap.String("role", string(user.Role)),
	)
	respond(c, http.StatusCreated, "User registered successfully", resp)
}

func (h *AuthHandler) Login(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "Login")
	defer span.End()

	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	user, err := h.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, store.ErrNotFound) {
		respondError(c, h.logger, apperr.Unauthorized("Invalid credentials"))
		return
	}
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		respondError(c, h.logger, apperr.Unauthorized("Invalid credentials"))
		return
	}

	resp, err := h.issuePair(user)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("User logged in", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Int("user_id", user.ID))
	respond(c, http.StatusOK, "Logged in successfully", resp)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "Refresh")
	defer span.End()

	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	claims, err := h.tokens.Parse(req.RefreshToken, middleware.TokenTypeRefresh)
	if err != nil {
		respondError(c, h.logger, apperr.Unauthorized("Invalid or expired refresh token"))
		return
	}
	userID, _ := claims.UserID()

	// Reload so a deleted user or changed role is picked up.
	user, err := h.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(c, h.logger, apperr.Unauthorized("Invalid or expired refresh token"))
		return
	}
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}

	access, err := h.tokens.Issue(user, middleware.TokenTypeAccess)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Token refreshed", models.AuthResponse{AccessToken: access})
}

func (h *AuthHandler) Me(c *gin.Context) {
	h.respondUser(c, middleware.CurrentUserID(c))
}

func (h *AuthHandler) ListUsers(c *gin.Context) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "ListUsers")
	defer span.End()

	users, err := h.store.ListUsers(ctx)
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Users fetched successfully", users)
}

func (h *AuthHandler) GetUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	h.respondUser(c, id)
}

func (h *AuthHandler) respondUser(c *gin.Context, id int) {
	ctx, span := otel.Tracer("shop-service").Start(c.Request.Context(), "GetUser")
	defer span.End()

	user, err := h.store.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(c, h.logger, apperr.NotFound("User %d not found", id))
		return
	}
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "User fetched successfully", user)
}

func (h *AuthHandler) issuePair(user *models.User) (models.AuthResponse, error) {
	access, err := h.tokens.Issue(user, middleware.TokenTypeAccess)
	if err != nil {
		return models.AuthResponse{}, err
	}
	refresh, err := h.tokens.Issue(user, middleware.TokenTypeRefresh)
	if err != nil {
		return models.AuthResponse{}, err
	}
	return models.AuthResponse{AccessToken: access, RefreshToken: refresh, User: user}, nil
}
