package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/tcees/models"
)

// Reject writes the response for a refused request and aborts it.
type Reject func(c *gin.Context, status int, code, message string)

// RejectJSON is the default Reject: a ScrapeResponse carrying the error.
func RejectJSON(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.ScrapeResponse{
		Success: false,
		Error:   &models.ErrorDetail{Code: code, Message: message},
	})
}

// Auth returns API-key authentication middleware.
//
// Supports three header styles:
//
//	X-API-Key: <key>
//	Authorization: Bearer <key>
//	X-API-Secret: <key>
//
// If apiKeys is empty, the middleware is a no-op (open access). A nil
// reject uses RejectJSON.
func Auth(apiKeys []string, reject Reject) gin.HandlerFunc {
	keySet := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			keySet[k] = struct{}{}
		}
	}
	if len(keySet) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if reject == nil {
		reject = RejectJSON
	}

	return func(c *gin.Context) {
		keys := extractAPIKeys(c)
		if len(keys) == 0 {
			reject(c, http.StatusUnauthorized, models.ErrCodeUnauthorized,
				"missing API key: provide X-API-Key, X-API-Secret or Authorization: Bearer <key>")
			return
		}

		for _, key := range keys {
			if _, valid := keySet[key]; valid {
				c.Set("api_key", key)
				c.Next()
				return
			}
		}
		reject(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, "invalid API key")
	}
}

// extractAPIKeys returns every presented key: X-API-Key, then
// Authorization: Bearer, then X-API-Secret.
func extractAPIKeys(c *gin.Context) []string {
	var keys []string
	if key := c.GetHeader("X-API-Key"); key != "" {
		keys = append(keys, key)
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		if key := strings.TrimPrefix(auth, "Bearer "); key != "" {
			keys = append(keys, key)
		}
	}
	if key := c.GetHeader("X-API-Secret"); key != "" {
		keys = append(keys, key)
	}
	return keys
}
