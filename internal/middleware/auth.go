package middleware

import (
	"errors"
	"net/http"
	"strings"

	pkgAuth "pokertable-service/pkg/auth"

	"github.com/gin-gonic/gin"
)

const ContextPlayerIDKey = "playerID"

func AuthRequired(signer *pkgAuth.Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		claims, err := signer.ParsePlayerToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ContextPlayerIDKey, claims.SubjectID)
		c.Next()
	}
}

// PlayerID returns the authenticated player, 0 when absent.
func PlayerID(c *gin.Context) int64 {
	return c.GetInt64(ContextPlayerIDKey)
}

func ExtractBearerToken(authHeader string) (string, error) {
	if strings.TrimSpace(authHeader) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
