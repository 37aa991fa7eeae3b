package utils

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

type APIResponse struct {
	Status  string      `json:"status"`
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func traceID(c *gin.Context) string {
	if v, ok := c.Get("trace_id"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func RespondSuccess(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, APIResponse{
		Status:  "success",
		Code:    http.StatusOK,
		Message: message,
		TraceID: traceID(c),
		Data:    data,
	})
}

func RespondError(c *gin.Context, code int, message string) {
	c.JSON(code, APIResponse{
		Status:  "error",
		Code:    code,
		Message: message,
		TraceID: traceID(c),
	})
}

// HandleServiceError maps service errors onto HTTP statuses. Business rule
// failures stay 400 with their own message; everything else is a generic 500
// so raw database errors never reach the client.
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrDuplicateEmail),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenUsed),
		errors.Is(err, ErrVerificationTokenUsed),
		errors.Is(err, ErrCompletionTokenUsed),
		errors.Is(err, ErrInvalidOrigin):
		RespondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrTokenGenerationExhausted),
		errors.Is(err, ErrDispatchFailure),
		errors.Is(err, ErrDatabaseError):
		log.Printf("Internal error: %v", err)
		RespondError(c, http.StatusInternalServerError, "Internal server error")
	default:
		log.Printf("Unknown error: %v", err)
		RespondError(c, http.StatusInternalServerError, "Internal server error")
	}
}
