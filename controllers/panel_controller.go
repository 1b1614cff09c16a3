// Package controllers file: controllers/panel_controller.go
package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-panel-relay/logger"
	"go-panel-relay/middleware"
	"go-panel-relay/services"
	"go-panel-relay/websocket"
)

// PanelController exposes the relay socket and a status summary.
type PanelController struct {
	Relay  *websocket.Relay
	Lease  services.LeaseServiceInterface
	Driver string
}

// NewPanelController creates an instance of PanelController
func NewPanelController(relay *websocket.Relay, lease services.LeaseServiceInterface, driver string) *PanelController {
	logger.Debug.Println("[NewPanelController] Initializing PanelController")
	return &PanelController{Relay: relay, Lease: lease, Driver: driver}
}

// Socket upgrades to the relay websocket.
func (pc *PanelController) Socket(c *gin.Context) {
	pc.Relay.ServeWs(c.Writer, c.Request, middleware.ClientID(c))
}

// Status reports whether the panel is owned and how many sockets are open.
func (pc *PanelController) Status(c *gin.Context) {
	holder := pc.Lease.Holder()
	c.JSON(http.StatusOK, gin.H{
		"driver":      pc.Driver,
		"busy":        holder != "",
		"connections": pc.Relay.ConnectionCount(),
	})
}
