package middleware

import (
	"net/http"
	"strings"

	"mentorbook/config"
	"mentorbook/internal/auth"
	"mentorbook/internal/domain"

	"github.com/gin-gonic/gin"
)

// Context keys set by AuthRequired.
const (
	keyUserID = "user_id"
	keyEmail  = "email"
	keyRole   = "role"
	keyClaims = "claims"
)

// AuthRequired validates the bearer token and stores the caller in the context.
func AuthRequired(cfg *config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or malformed authorization header"})
			return
		}
		claims, err := auth.ParseAccessToken(cfg, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(keyUserID, claims.UserID)
		c.Set(keyEmail, claims.Email)
		c.Set(keyRole, claims.Role)
		c.Set(keyClaims, claims)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireRole lets the request through only for the listed roles.
func RequireRole(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(keyRole)
		if role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !domain.Contains(allowed, role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// AdminRequired rejects every caller that is not the platform admin.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(keyRole) != domain.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

// GetUserID returns the caller's id, or 0 before AuthRequired has run.
func GetUserID(c *gin.Context) uint {
	v, ok := c.Get(keyUserID)
	if !ok {
		return 0
	}
	id, _ := v.(uint)
	return id
}

func GetActor(c *gin.Context) domain.Actor {
	return domain.Actor{UserID: GetUserID(c), Role: c.GetString(keyRole)}
}
