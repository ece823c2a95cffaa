package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Credential extracts the API key from a request: an Authorization bearer
// token, or the api_key query parameter for clients that cannot set
// headers (browser websockets, download links).
func Credential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("api_key")
}

// APIKey rejects requests that do not carry key.
func APIKey(key string) gin.HandlerFunc {
	secret := []byte(key)
	return func(c *gin.Context) {
		if subtle.ConstantTimeCompare([]byte(Credential(c.Request)), secret) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
