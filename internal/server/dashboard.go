package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetWeeklySummary(c *gin.Context) {
	store, ok := storeFromContext(c)
	if !ok {
		AbortWithError(c, ErrNotFound)
		return
	}

	resp, err := s.dashboard.WeeklySummary(c.Request.Context(), store.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
