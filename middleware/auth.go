package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shop-svc/apperr"
	"shop-svc/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	ctxUserID = "user_id"
	ctxRole   = "role"
	ctxEmail  = "email"
)

type Claims struct {
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
	Type  string      `json:"typ"`
	jwt.RegisteredClaims
}

// UserID returns the numeric subject of the token.
func (c *Claims) UserID() (int, error) {
	return strconv.Atoi(c.Subject)
}

type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func (t *TokenIssuer) Issue(user *models.User, tokenType string) (string, error) {
	ttl := t.accessTTL
	if tokenType == TokenTypeRefresh {
		ttl = t.refreshTTL
	}
	now := t.now()
	claims := Claims{
		Email: user.Email,
		Role:  user.Role,
		Type:  tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse validates signature, expiry and token type.
func (t *TokenIssuer) Parse(tokenString, tokenType string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, err
	}
	if claims.Type != tokenType {
		return nil, fmt.Errorf("expected %s token, got %q", tokenType, claims.Type)
	}
	if _, err := claims.UserID(); err != nil {
		return nil, errors.New("token subject is not a user id")
	}
	return claims, nil
}

func AuthMiddleware(tokens *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			abortUnauthorized(c, "You are not logged in")
			return
		}

		claims, err := tokens.Parse(strings.TrimPrefix(header, "Bearer "), TokenTypeAccess)
		if err != nil {
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		userID, _ := claims.UserID()
		c.Set(ctxUserID, userID)
		c.Set(ctxRole, claims.Role)
		c.Set(ctxEmail, claims.Email)
		c.Next()
	}
}

func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := CurrentRole(c)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   "You do not have permission to perform this action",
			"code":    apperr.KindForbidden,
		})
	}
}

func CurrentUserID(c *gin.Context) int {
	return c.GetInt(ctxUserID)
}

func CurrentRole(c *gin.Context) models.Role {
	role, _ := c.Get(ctxRole)
	r, _ := role.(models.Role)
	return r
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   message,
		"code":    apperr.KindUnauthorized,
	})
}
