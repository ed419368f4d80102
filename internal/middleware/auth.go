package middleware

import (
	"net/http"
	"strings"

	"cleanhub/internal/pkg/jwt"
	"cleanhub/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// JWTAuth validates the bearer token and stores user_id and role on the
// context. Websocket clients cannot set headers, so a token query parameter
// is accepted for upgrade requests.
func JWTAuth(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, msg := bearerToken(c)
		if tokenStr == "" {
			response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", msg)
			return
		}

		claims, err := jwtService.ValidateToken(tokenStr)
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, string) {
	h := c.GetHeader("Authorization")
	if h == "" {
		if isWebsocketUpgrade(c.Request) {
			if q := strings.TrimSpace(c.Query("token")); q != "" {
				return q, ""
			}
		}
		return "", "Missing Authorization header"
	}
	if !strings.HasPrefix(h, "Bearer ") {
		return "", "Invalid Authorization header"
	}
	tokenStr := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	if tokenStr == "" {
		return "", "Empty token"
	}
	return tokenStr, ""
}

func isWebsocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
