package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RunDunningSweep triggers one sweep immediately instead of waiting for the
// scheduler interval. Intended for operators and integration tests.
func (s *Server) RunDunningSweep(c *gin.Context) {
	result, err := s.dunningSvc.Sweep(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
