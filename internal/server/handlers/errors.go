package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
)

// statusFor maps an error kind onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrInsufficientStock):
		return http.StatusConflict
	case errs.IsValidation(err):
		return http.StatusBadRequest
	case errs.IsNotFound(err):
		return http.StatusNotFound
	case errs.IsConsistency(err):
		return http.StatusConflict
	case errs.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error body. Unexpected failures hide their detail.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusFor(err)
	body := gin.H{"error": string(errs.CodeOf(err))}

	switch status {
	case http.StatusInternalServerError:
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		body["error"] = "internal"
	case http.StatusServiceUnavailable:
		c.Header("Retry-After", "5")
		body["message"] = "store temporarily unavailable, nothing was written"
	default:
		body["message"] = err.Error()
	}

	var short *errs.InsufficientStockError
	if errors.As(err, &short) {
		body["available"] = short.Available
		body["requested"] = short.Requested
	}

	c.AbortWithStatusJSON(status, body)
}
