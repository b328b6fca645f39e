package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/commentd/oauth-relay/pkg/errors"
)

// ErrorBody is the JSON error payload understood by relay consumers.
type ErrorBody struct {
	Errno   int    `json:"errno"`
	Message string `json:"message"`
}

// JSON writes a success payload as-is. Identity responses are rendered without
// an envelope so callers can consume the record directly.
func JSON(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// Error writes an {errno, message} payload derived from an AppError.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.Errno
	if status < http.StatusBadRequest || status > 599 {
		status = http.StatusInternalServerError
	}

	c.JSON(status, ErrorBody{
		Errno:   appErr.Errno,
		Message: appErr.Message,
	})
}
