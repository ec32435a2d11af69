package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/reunion/internal/middleware"
	"github.com/mossy-p/reunion/internal/store"
)

// Register mounts the health check, the operator login, and the /reunion
// signaling routes on router.
func Register(router *gin.Engine, st store.Store, hub *Hub, jwtSecret string) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/api/auth/login", Login(jwtSecret))

	auth := middleware.JWTAuth(jwtSecret)

	reunion := router.Group("/reunion")
	{
		reunion.POST("/rooms", NewRoom(st))
		reunion.GET("/rooms", ListRooms(st))

		reunion.POST("/:roomId/offer", PostOffer(st, hub))
		reunion.GET("/:roomId/offer", GetOffer(st))
		reunion.POST("/:roomId/answer", PostAnswer(st, hub))
		reunion.GET("/:roomId/answer", GetAnswer(st))
		reunion.POST("/:roomId/candidate", PostCandidate(st, hub))
		reunion.GET("/:roomId/candidates", GetCandidates(st))
		reunion.GET("/:roomId/state", GetState(st))
		reunion.GET("/:roomId/events", WatchRoom(hub))

		reunion.POST("/:roomId/heartbeat", Heartbeat(st))
		reunion.POST("/:roomId/finalizar", Finalize(st, hub))
		reunion.GET("/:roomId/transcript", GetTranscript(st))
		reunion.DELETE("/:roomId", auth, DeleteRoom(st, hub))
	}
}
