package middleware

import (
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/serversoft/serversoft/internal/auth"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := auth.InitJWTSecret("test-jwt-secret-that-is-32-chars!!"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}
