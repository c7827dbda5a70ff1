package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if s.health != nil {
		if err := s.health(c.Request.Context()); err != nil {
			s.log.WarnContext(c.Request.Context(), "health probe failed",
				"error", err.Error())
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
	}
	if s.stats != nil {
		resp["pool"] = s.stats()
	}
	c.JSON(http.StatusOK, resp)
}
