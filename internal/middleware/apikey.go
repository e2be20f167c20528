package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rmitchellscott/epdkit/internal/config"
	"github.com/rmitchellscott/epdkit/internal/logging"
)

// APIKeyEnv names the shared secret protecting mutating endpoints.
// When unset the endpoints are open, which is the expected mode for a
// converter running on localhost.
const APIKeyEnv = "EPDKIT_API_KEY"

// RequireAPIKey checks the X-API-Key header, or an Authorization
// bearer token, against the configured key in constant time.
func RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		want := config.Get(APIKeyEnv, "")
		if want == "" {
			c.Next()
			return
		}

		got := c.GetHeader("X-API-Key")
		if got == "" {
			if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
				got = strings.TrimPrefix(h, "Bearer ")
			}
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			logging.WarnWithComponent(logging.ComponentServer, "Rejected API key", "ip", c.ClientIP())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			c.Abort()
			return
		}
		c.Next()
	}
}
