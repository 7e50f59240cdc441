package middlewares

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	Logger "github.com/magicjudges/announcer/utils/log"
)

const (
	ErrorTokenAuthFail = 40100

	bearerPrefix = "Bearer "
)

// OperatorToken requires "Authorization: Bearer <token>" on every request.
// An empty token leaves the routes open, which is only meant for local
// development.
func OperatorToken(token string) gin.HandlerFunc {
	if token == "" {
		Logger.Log.Warn("operator token is empty, operator endpoints are open")
	}
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": ErrorTokenAuthFail,
				"msg":  "missing bearer token",
			})
			return
		}
		given := strings.TrimPrefix(header, bearerPrefix)
		if subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": ErrorTokenAuthFail,
				"msg":  "invalid bearer token",
			})
			return
		}

		c.Next()
	}
}
