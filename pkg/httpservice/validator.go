package httpservice

import (
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/JedDataScience/RetroAzureBlobMetadataStorage/pkg/errors"
	"github.com/JedDataScience/RetroAzureBlobMetadataStorage/pkg/logging"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ValidateJSON binds and validates a JSON request body.
// On failure it writes a 400 response and returns false.
func ValidateJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		appErr := errors.NewValidationError("Invalid JSON: " + err.Error())
		c.JSON(appErr.HTTPStatus, gin.H{
			"error": appErr.Message,
			"code":  appErr.Code,
		})
		return false
	}

	if err := validate.Struct(req); err != nil {
		appErr := errors.NewValidationError("Validation failed: " + err.Error())
		c.JSON(appErr.HTTPStatus, gin.H{
			"error": appErr.Message,
			"code":  appErr.Code,
		})
		return false
	}

	return true
}

// HandleError converts an error to its HTTP response.
// Non-AppError values become opaque 500s so provider internals never leak.
func HandleError(c *gin.Context, err error) {
	appErr := errors.FromError(err)
	c.JSON(appErr.HTTPStatus, gin.H{
		"error": appErr.Message,
		"code":  appErr.Code,
	})
	c.Abort()
}

// GetLogger retrieves the contextual logger from the request.
func GetLogger(c *gin.Context) logging.Logger {
	return logging.FromContext(c.Request.Context())
}

// LogError logs an error message using the contextual logger.
func LogError(c *gin.Context, msg string, err error, fields ...logging.Field) {
	if err != nil {
		fields = append(fields, logging.NewField("error", err))
	}
	GetLogger(c).Error(msg, fields...)
}

// RespondErrorWithLog logs the error and then sends a standard error response.
func RespondErrorWithLog(c *gin.Context, msg string, err error, fields ...logging.Field) {
	LogError(c, msg, err, fields...)
	HandleError(c, err)
}
