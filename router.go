// router.go
package main

import (
	"net/http"
	"os"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-panel-relay/config"
	"go-panel-relay/controllers"
	"go-panel-relay/logger"
	"go-panel-relay/middleware"
	"go-panel-relay/services"
	"go-panel-relay/websocket"
)

// newRouter wires every HTTP route. Unmatched paths fall through to the
// static web client in PublicDir.
func newRouter(cfg *config.Config, relay *websocket.Relay, lease services.LeaseServiceInterface, registry *prometheus.Registry) *gin.Engine {
	router := gin.Default()

	// Initialize session store
	store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		Secure:   cfg.Env == "production",
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions("panelsession", store), middleware.ClientIdentity)

	pages := controllers.NewPageController(cfg.Server.ApplicationURL)
	panelCtl := controllers.NewPanelController(relay, lease, cfg.Panel.Driver)

	router.GET("/health", controllers.Health)
	router.GET("/status", panelCtl.Status)
	router.GET("/qrcode", pages.GetQRCode)
	router.GET("/socket", panelCtl.Socket)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	if info, err := os.Stat(cfg.Server.PublicDir); err == nil && info.IsDir() {
		router.NoRoute(gin.WrapH(http.FileServer(http.Dir(cfg.Server.PublicDir))))
	} else {
		logger.Warn.Printf("[newRouter] Public dir %q not found; web client disabled", cfg.Server.PublicDir)
	}
	return router
}
