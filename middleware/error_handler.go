package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/goqueue/common"
)

// ErrorHandler renders the last error attached to the context. Handlers
// report failures with c.Error and return without writing a body.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		apiErr := common.AsAPIError(c.Errors.Last().Err)
		response := gin.H{"error": apiErr.Message}
		if apiErr.Fields != nil {
			response["fields"] = apiErr.Fields
		}
		c.JSON(apiErr.Status, response)
	}
}
