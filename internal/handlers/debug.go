package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-engine/internal/rabbitmq"
	"chat-engine/internal/ws"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRoutes, registry *ws.Registry, publisher rabbitmq.Publisher, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/connections", func(c *gin.Context) {
		rooms := registry.Rooms()
		counts := make(map[int64]int, len(rooms))
		for _, roomID := range rooms {
			counts[roomID] = registry.Count(roomID)
		}
		c.JSON(http.StatusOK, gin.H{"rooms": counts})
	})

	router.GET("/debug/publisher", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"mode":   rabbitmq.PublisherMode(publisher),
			"reason": rabbitmq.PublisherNoopReason(publisher),
		})
	})
}
