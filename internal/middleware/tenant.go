package middleware

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
)

const (
	// TenantHeader carries the tenant every feed request acts for.
	TenantHeader = "X-Tenant-ID"
	tenantKey    = "tenantID"
)

var tenantPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// TenantMiddleware requires a well-formed X-Tenant-ID header and stores it
// on the context.
func TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := c.GetHeader(TenantHeader)
		if !tenantPattern.MatchString(tenant) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "missing or invalid " + TenantHeader + " header",
			})
			return
		}
		c.Set(tenantKey, tenant)
		c.Next()
	}
}

// TenantID returns the tenant set by TenantMiddleware.
func TenantID(c *gin.Context) string {
	return c.GetString(tenantKey)
}
