// Package controllers file: controllers/page_controller.go
package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"go-panel-relay/logger"
	"go-panel-relay/services"
)

const (
	defaultQRSize = 300
	maxQRSize     = 1024
)

// PageController serves the static-adjacent pages: health and the join QR code.
type PageController struct {
	ApplicationURL string
	Encode         services.QRCodeEncoder
}

// NewPageController creates an instance of PageController
func NewPageController(applicationURL string) *PageController {
	return &PageController{ApplicationURL: applicationURL}
}

// Health reports liveness.
func Health(c *gin.Context) {
	logger.Debug.Println("[Health] Health check requested")
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// GetQRCode renders the application URL as a PNG so a phone can join.
// ?size= overrides the default edge length.
func (pc *PageController) GetQRCode(c *gin.Context) {
	size := defaultQRSize
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxQRSize {
			logger.Warn.Printf("[GetQRCode] Rejecting size %q", raw)
			c.String(http.StatusBadRequest, "invalid size")
			return
		}
		size = n
	}

	logger.Info.Printf("[GetQRCode] Generating %dpx QR code for %s", size, pc.ApplicationURL)
	qrBytes, err := services.GenerateQRCode(pc.ApplicationURL, size, pc.Encode)
	if err != nil {
		logger.Error.Printf("[GetQRCode] Error generating QR code: %v", err)
		c.String(http.StatusInternalServerError, "QR generation failed")
		return
	}

	c.Header("Content-Disposition", "inline; filename=\"qrcode.png\"")
	c.Data(http.StatusOK, "image/png", qrBytes)
}
