package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/tokenstore/core"
	"github.com/layer-3/tokenstore/service"
)

// AuthMiddleware rejects requests without a valid bearer access token and
// exposes the caller's identity and refresh token ID to later handlers
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		session, err := authService.ValidateAccessToken(c.Request.Context(), token)
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, core.ErrTokenExpired) {
				msg = "Token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		c.Set("userAddress", session.Address)
		c.Set("refreshID", session.RefreshID)
		c.Next()
	}
}
