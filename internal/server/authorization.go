package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	tenantdomain "github.com/smallbiznis/storeadmin/internal/tenant/domain"
	"github.com/smallbiznis/storeadmin/pkg/tenantctx"
)

const tenantKey = "tenant"

// authorizeStore checks the actor against the store in the path, then loads the tenant so that nothing is
// written under a store that does not exist. The lookup runs after the check so callers without access cannot
// learn which stores exist.
func (s *Server) authorizeStore(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		storeID := storeIDFrom(c)
		if err := s.authorize(c, storeID, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		tenant, err := s.tenantSvc.Get(c.Request.Context(), storeID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Set(tenantKey, tenant)
		c.Next()
	}
}

func tenantFrom(c *gin.Context) (*tenantdomain.Tenant, bool) {
	v, ok := c.Get(tenantKey)
	if !ok {
		return nil, false
	}
	tenant, ok := v.(*tenantdomain.Tenant)
	return tenant, ok && tenant != nil
}

// authorizeGlobal checks a capability that is not tied to one store, such as creating tenants.
func (s *Server) authorizeGlobal(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorize(c, "", object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorize(c *gin.Context, storeID, object, action string) error {
	actor := tenantctx.Actor(c.Request.Context())
	if actor == "" {
		return ErrUnauthorized
	}
	if s.authzSvc == nil {
		return ErrForbidden
	}
	return s.authzSvc.Authorize(c.Request.Context(), actor, storeID, object, action)
}

type meResponse struct {
	Email      string   `json:"email"`
	SuperAdmin bool     `json:"super_admin"`
	Stores     []string `json:"stores"`
}

// Me lists what the actor may administer.
func (s *Server) Me(c *gin.Context) {
	actor := tenantctx.Actor(c.Request.Context())

	super, err := s.authzSvc.IsSuperAdmin(actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	stores, err := s.authzSvc.StoresFor(actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if stores == nil {
		stores = []string{}
	}

	c.JSON(http.StatusOK, meResponse{Email: actor, SuperAdmin: super, Stores: stores})
}
