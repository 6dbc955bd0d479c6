package restapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/cascade"
)

// httpStatus maps the service error codes onto HTTP statuses.
func httpStatus(code cascade.ErrorCode) int {
	switch code {
	case cascade.Unauthenticated:
		return http.StatusUnauthorized
	case cascade.Forbidden:
		return http.StatusForbidden
	case cascade.NotFound:
		return http.StatusNotFound
	case cascade.Gone:
		return http.StatusGone
	case cascade.MalformedRequest, cascade.HashMismatch, cascade.MalformedNode, cascade.SizeMismatch:
		return http.StatusBadRequest
	case cascade.QuotaExceeded:
		return http.StatusRequestEntityTooLarge
	case cascade.Conflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// abortWithError converts err into the JSON error body and status.
func abortWithError(c *gin.Context, err error) {
	e, ok := err.(cascade.Error)
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	body := gin.H{"error": e.Code.String()}
	if e.Err != nil {
		body["details"] = e.Err.Error()
	}
	if e.UserData != nil {
		body["data"] = e.UserData
	}
	c.AbortWithStatusJSON(httpStatus(e.Code), body)
}
