package apperr

import (
	"github.com/gin-gonic/gin"
)

// Middleware translates an AppError attached via c.Error(...) into the
// standardized ErrorResponse JSON body, or falls back to a generic
// DB_001 for unrecognized errors.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		appErr, ok := err.(*AppError)
		if !ok {
			appErr = Downstream(err)
		}
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	}
}

// Abort attaches err to the context and stops further handlers.
func Abort(c *gin.Context, err *AppError) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(err.StatusCode, err.ToResponse())
}
