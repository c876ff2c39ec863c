package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	customerdomain "github.com/smallbiznis/storepulse/internal/customer/domain"
)

func (s *Server) ListStoreCustomers(c *gin.Context) {
	store, ok := storeFromContext(c)
	if !ok {
		AbortWithError(c, ErrNotFound)
		return
	}

	resp, err := s.customerSvc.ListByStore(c.Request.Context(), store.ID.String(), c.Query("segment"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCustomerDetail(c *gin.Context) {
	store, ok := storeFromContext(c)
	if !ok {
		AbortWithError(c, ErrNotFound)
		return
	}
	customerID, ok := customerIDParam(c)
	if !ok {
		return
	}

	resp, err := s.customerSvc.GetDetail(c.Request.Context(), store.ID.String(), customerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetDeclinedLoyalSummary(c *gin.Context) {
	store, ok := storeFromContext(c)
	if !ok {
		AbortWithError(c, ErrNotFound)
		return
	}

	resp, err := s.customerSvc.DeclinedLoyalSummary(c.Request.Context(), store.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// customerIDParam reads :customerId and aborts with a validation error when
// it is not a positive id.
func customerIDParam(c *gin.Context) (string, bool) {
	raw := strings.TrimSpace(c.Param("customerId"))
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		AbortWithError(c, newValidationError("customer_id", "invalid_customer_id", "customer id must be a positive integer"))
		return "", false
	}
	return raw, true
}

func isCustomerValidationError(err error) bool {
	switch err {
	case customerdomain.ErrInvalidStore,
		customerdomain.ErrInvalidCustomer,
		customerdomain.ErrInvalidSegment:
		return true
	default:
		return false
	}
}
