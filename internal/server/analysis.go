package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	analysisdomain "github.com/smallbiznis/storepulse/internal/analysis/domain"
)

// TriggerAnalysis starts a sweep over every store and returns before it finishes.
func (s *Server) TriggerAnalysis(c *gin.Context) {
	if err := s.analysisSvc.TriggerAllStores(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) RunStoreAnalysis(c *gin.Context) {
	outcome, err := s.analysisSvc.RunStore(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": outcome})
}

func isAnalysisValidationError(err error) bool {
	switch err {
	case analysisdomain.ErrInvalidStore:
		return true
	default:
		return false
	}
}
