// Package middleware provides request filters for the application.
// File: middleware/auth.go
package middleware

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"go-panel-relay/logger"
)

const (
	clientIDSessionKey = "clientID"
	clientIDContextKey = "clientID"
)

// -------------- client identity middleware --------------

// ClientIdentity gives every browser a stable id kept in the cookie session.
// No credentials are checked; the id only labels logs and lease ownership.
// Usage:
//
//	router.Use(sessions.Sessions("panelsession", store), ClientIdentity)
func ClientIdentity(c *gin.Context) {
	session := sessions.Default(c)
	id, ok := session.Get(clientIDSessionKey).(string)

	if !ok || id == "" {
		id = uuid.NewString()
		session.Set(clientIDSessionKey, id)
		if err := session.Save(); err != nil {
			logger.Error.Printf("[ClientIdentity] Error saving session: %v", err)
		} else {
			logger.Debug.Printf("[ClientIdentity] Assigned client id %s", id)
		}
	}

	c.Set(clientIDContextKey, id)
	c.Next()
}

// ClientID returns the id set by ClientIdentity, or "" if it did not run.
func ClientID(c *gin.Context) string {
	return c.GetString(clientIDContextKey)
}
