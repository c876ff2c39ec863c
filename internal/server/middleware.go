package server

import (
	"github.com/gin-gonic/gin"
	storedomain "github.com/smallbiznis/storepulse/internal/store/domain"
)

const contextStoreKey = "store"

// RequireStore resolves the :id path parameter to an existing store.
func (s *Server) RequireStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		store, err := s.storeSvc.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextStoreKey, store)
		c.Next()
	}
}

func storeFromContext(c *gin.Context) (storedomain.Store, bool) {
	v, ok := c.Get(contextStoreKey)
	if !ok {
		return storedomain.Store{}, false
	}
	store, ok := v.(storedomain.Store)
	return store, ok
}
