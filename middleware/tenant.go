package middleware

import (
	"github.com/gin-gonic/gin"

	"storepulse/api/utils"
)

const storeIDKey = "store_id"

// TenantResolver picks the store a request is about: the :storeId path
// parameter, then the X-Store-ID header, then the storeId query parameter.
// Missing or placeholder ids map to defaultStore; nothing is rejected.
func TenantResolver(defaultStore string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("storeId")
		if id == "" {
			id = c.GetHeader("X-Store-ID")
		}
		if id == "" {
			id = c.Query("storeId")
		}
		c.Set(storeIDKey, utils.StoreIDOrDefault(id, defaultStore))
		c.Next()
	}
}

// StoreID returns the id set by TenantResolver, or "" outside it.
func StoreID(c *gin.Context) string {
	return c.GetString(storeIDKey)
}
