package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/storeadmin/internal/cache"
	obscontext "github.com/smallbiznis/storeadmin/internal/observability/context"
	"github.com/smallbiznis/storeadmin/pkg/tenantctx"
)

const (
	// HeaderActor carries the admin email asserted by the authenticating proxy in front of this service.
	HeaderActor = "X-Actor-Email"
)

// ActorRequired reads the acting admin from HeaderActor into the request context.
func (s *Server) ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActor)))
		if actor == "" || !strings.Contains(actor, "@") {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := tenantctx.WithActor(c.Request.Context(), actor)
		ctx = obscontext.WithActor(ctx, "admin", actor)
		ctx = obscontext.WithClientIP(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// StoreContext scopes the request to the :storeId path parameter.
func (s *Server) StoreContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		storeID := strings.TrimSpace(c.Param("storeId"))
		if storeID == "" {
			AbortWithError(c, newValidationError("store_id", "required", "store id is required"))
			return
		}

		ctx := tenantctx.WithStoreID(c.Request.Context(), storeID)
		ctx = obscontext.WithStoreID(ctx, storeID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// StorefrontStore picks the tenant from the Host header through the domain mapping.
func (s *Server) StorefrontStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		host := cache.NormalizeHost(c.Request.Host)
		if host == "" {
			AbortWithError(c, ErrNotFound)
			return
		}

		storeID, err := s.tenantSvc.ResolveDomain(c.Request.Context(), host)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := tenantctx.WithStoreID(c.Request.Context(), storeID)
		ctx = obscontext.WithStoreID(ctx, storeID)
		ctx = obscontext.WithClientIP(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func storeIDFrom(c *gin.Context) string {
	if storeID, ok := tenantctx.StoreID(c.Request.Context()); ok {
		return storeID
	}
	return strings.TrimSpace(c.Param("storeId"))
}
