package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	visitdomain "github.com/smallbiznis/storepulse/internal/visit/domain"
)

func (s *Server) GetVisitGraph(c *gin.Context) {
	s.visitGraph(c, "")
}

func (s *Server) GetCustomerVisitGraph(c *gin.Context) {
	customerID, ok := customerIDParam(c)
	if !ok {
		return
	}
	s.visitGraph(c, customerID)
}

func (s *Server) visitGraph(c *gin.Context, customerID string) {
	store, ok := storeFromContext(c)
	if !ok {
		AbortWithError(c, ErrNotFound)
		return
	}

	mode := strings.ToLower(strings.TrimSpace(c.Query("mode")))
	switch mode {
	case "", visitdomain.GraphModeMonth, visitdomain.GraphModeWeek:
	default:
		AbortWithError(c, newValidationError("mode", "invalid_graph_mode", "mode must be month or week"))
		return
	}

	resp, err := s.visitSvc.VisitGraph(c.Request.Context(), store.ID.String(), customerID, mode)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func isVisitValidationError(err error) bool {
	switch err {
	case visitdomain.ErrInvalidStore,
		visitdomain.ErrInvalidCustomer,
		visitdomain.ErrInvalidMode:
		return true
	default:
		return false
	}
}
