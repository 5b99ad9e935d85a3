package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	tenantdomain "github.com/smallbiznis/storeadmin/internal/tenant/domain"
)

func (s *Server) ListTenants(c *gin.Context) {
	tenants, err := s.tenantSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tenants})
}

func (s *Server) CreateTenant(c *gin.Context) {
	var req tenantdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenant, report, err := s.tenantSvc.Create(c.Request.Context(), req)
	if err != nil {
		if tenant != nil {
			// the tenant exists but the clone stopped part way
			_ = c.Error(err)
			status, payload := mapError(err)
			c.AbortWithStatusJSON(status, gin.H{"error": payload, "data": tenant, "clone": report})
			return
		}
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": tenant, "clone": report})
}

func (s *Server) GetTenant(c *gin.Context) {
	if tenant, ok := tenantFrom(c); ok {
		c.JSON(http.StatusOK, gin.H{"data": tenant})
		return
	}
	tenant, err := s.tenantSvc.Get(c.Request.Context(), storeIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tenant})
}

// DeleteTenant drops the tenant record and its domain mapping only; the store's records stay in place.
func (s *Server) DeleteTenant(c *gin.Context) {
	if err := s.tenantSvc.Delete(c.Request.Context(), storeIDFrom(c)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type tenantAdminRequest struct {
	Email string `json:"email"`
}

func (s *Server) AddTenantAdmin(c *gin.Context) {
	var req tenantAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		AbortWithError(c, newValidationError("email", "required", "email is required"))
		return
	}

	tenant, err := s.tenantSvc.AddAdmin(c.Request.Context(), storeIDFrom(c), req.Email)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tenant})
}

func (s *Server) RemoveTenantAdmin(c *gin.Context) {
	tenant, err := s.tenantSvc.RemoveAdmin(c.Request.Context(), storeIDFrom(c), c.Param("email"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tenant})
}

type tenantDomainRequest struct {
	Domain string `json:"domain"`
}

func (s *Server) SetTenantDomain(c *gin.Context) {
	var req tenantDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Domain) == "" {
		AbortWithError(c, newValidationError("domain", "required", "domain is required"))
		return
	}

	tenant, err := s.tenantSvc.SetDomain(c.Request.Context(), storeIDFrom(c), req.Domain)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tenant})
}

func (s *Server) RemoveTenantDomain(c *gin.Context) {
	tenant, err := s.tenantSvc.RemoveDomain(c.Request.Context(), storeIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tenant})
}

type migrateRequest struct {
	Collections []string `json:"collections"`
}

// MigrateLegacy copies legacy root collections into the store. An empty list copies every known collection.
func (s *Server) MigrateLegacy(c *gin.Context) {
	var req migrateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	report, err := s.tenantSvc.MigrateLegacy(c.Request.Context(), storeIDFrom(c), req.Collections)
	if err != nil {
		if report != nil {
			_ = c.Error(err)
			status, payload := mapError(err)
			c.AbortWithStatusJSON(status, gin.H{"error": payload, "report": report})
			return
		}
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": report})
}
