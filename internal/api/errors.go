package api

import (
	"github.com/gin-gonic/gin"

	"github.com/delimatsuo/headhunter-sub011/internal/models"
)

// respondError writes the error envelope with the status mapped from the code.
func respondError(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(models.HTTPStatus(code), models.ErrorEnvelope{
		Code:    code,
		Message: message,
	})
}

// respondBindError turns a request binding failure into a bad_request
// envelope. The validator message goes into details, never a stack trace.
func respondBindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(models.HTTPStatus(models.CodeBadRequest), models.ErrorEnvelope{
		Code:    models.CodeBadRequest,
		Message: "invalid request body",
		Details: err.Error(),
	})
}
