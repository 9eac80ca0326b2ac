// Package httperr holds the small set of response helpers shared by the API
// handler packages. Every error body has the shape {"error": "<message>"};
// internal error text is logged, never returned.
package httperr

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/serversoft/serversoft/internal/db/repositories"
	"github.com/serversoft/serversoft/internal/middleware"
)

// Abort writes {"error": msg} with status and stops the handler chain.
func Abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// BadRequest responds 400 with msg.
func BadRequest(c *gin.Context, msg string) {
	Abort(c, http.StatusBadRequest, msg)
}

// NotFound responds 404 with "<what> not found".
func NotFound(c *gin.Context, what string) {
	Abort(c, http.StatusNotFound, what+" not found")
}

// Internal logs err with the request ID and responds 500 with msg.
func Internal(c *gin.Context, msg string, err error) {
	slog.Error(msg,
		"error", err,
		"request_id", middleware.RequestID(c),
		"method", c.Request.Method,
		"route", c.FullPath(),
		"user_id", middleware.CurrentUserID(c),
	)
	Abort(c, http.StatusInternalServerError, msg)
}

// Repo maps a repository error onto a response: ErrNotFound becomes 404,
// ErrDuplicate and ErrInUse 409, anything else 500 with msg.
func Repo(c *gin.Context, err error, what, msg string) {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		NotFound(c, what)
	case errors.Is(err, repositories.ErrDuplicate):
		Abort(c, http.StatusConflict, what+" already exists")
	case errors.Is(err, repositories.ErrInUse):
		Abort(c, http.StatusConflict, what+" is still in use")
	default:
		Internal(c, msg, err)
	}
}

// UserID returns the authenticated user's ID. When there is none it responds
// 401 and returns false.
func UserID(c *gin.Context) (string, bool) {
	id := middleware.CurrentUserID(c)
	if id == "" {
		Abort(c, http.StatusUnauthorized, "User not authenticated")
		return "", false
	}
	return id, true
}
