package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS lets browser front-ends on any origin call the API. Preflight
// requests are answered directly with 200 and an empty object.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatusJSON(http.StatusOK, gin.H{})
			return
		}
		c.Next()
	}
}
