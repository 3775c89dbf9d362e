package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/linguaschool/chat-backend/internal/common"
	"github.com/linguaschool/chat-backend/internal/domain"
	"github.com/linguaschool/chat-backend/pkg/jwt"
)

const identityKey = "identity"

// IdentityVerifier turns an opaque bearer token into a verified identity
type IdentityVerifier interface {
	Verify(token string) (*domain.Identity, error)
}

// JWTVerifier adapts jwt.Manager to IdentityVerifier
type JWTVerifier struct {
	manager *jwt.Manager
}

// NewJWTVerifier creates a new JWTVerifier
func NewJWTVerifier(manager *jwt.Manager) *JWTVerifier {
	return &JWTVerifier{manager: manager}
}

func (v *JWTVerifier) Verify(token string) (*domain.Identity, error) {
	claims, err := v.manager.VerifyToken(token)
	if err != nil {
		return nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	return &domain.Identity{UserID: userID, Email: claims.Email, Role: claims.Role}, nil
}

// JWTAuth rejects requests without a valid bearer token
func JWTAuth(verifier IdentityVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			common.Fail(c, fmt.Errorf("%w: missing or malformed authorization header", common.ErrUnauthorized))
			return
		}

		identity, err := verifier.Verify(token)
		if err != nil {
			if errors.Is(err, jwt.ErrExpiredToken) {
				common.Fail(c, fmt.Errorf("%w: token expired", common.ErrUnauthorized))
			} else {
				common.Fail(c, fmt.Errorf("%w: invalid token", common.ErrUnauthorized))
			}
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// OptionalAuth attaches an identity when a valid token is present (header or ?token=) and never aborts.
// Used for the socket upgrade, which is accepted without identity but not authorized.
func OptionalAuth(verifier IdentityVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			token = c.Query("token")
		}
		if token != "" {
			if identity, err := verifier.Verify(token); err == nil {
				c.Set(identityKey, identity)
			}
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// GetIdentity returns the verified caller or nil
func GetIdentity(c *gin.Context) *domain.Identity {
	v, exists := c.Get(identityKey)
	if !exists {
		return nil
	}
	identity, _ := v.(*domain.Identity)
	return identity
}

// GetUserID returns the caller's id, 0 when unauthenticated
func GetUserID(c *gin.Context) uint64 {
	if identity := GetIdentity(c); identity != nil {
		return identity.UserID
	}
	return 0
}
