// file: controllers/helpers_test.go
package controllers

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"go-panel-relay/middleware"
)

// setupTestRouter creates a new Gin engine with session and identity middleware.
func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	store := cookie.NewStore([]byte("test-secret"))
	router.Use(sessions.Sessions("testsession", store), middleware.ClientIdentity)
	return router
}
