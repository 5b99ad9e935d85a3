package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/storeadmin/internal/records"
	serviceorderdomain "github.com/smallbiznis/storeadmin/internal/serviceorder/domain"
)

func (s *Server) CreateServiceOrder(c *gin.Context) {
	var order records.ServiceOrder
	if err := c.ShouldBindJSON(&order); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	created, err := s.serviceOrders.Create(c.Request.Context(), storeIDFrom(c), serviceorderdomain.CreateRequest{Order: order})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": created})
}

func (s *Server) GetServiceOrder(c *gin.Context) {
	order, err := s.serviceOrders.Get(c.Request.Context(), storeIDFrom(c), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}

type serviceOrderStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) UpdateServiceOrderStatus(c *gin.Context) {
	var req serviceOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Status) == "" {
		AbortWithError(c, newValidationError("status", "required", "status is required"))
		return
	}

	order, err := s.serviceOrders.UpdateStatus(c.Request.Context(), storeIDFrom(c), c.Param("id"), records.ServiceOrderStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}

func (s *Server) ServiceOrderReceipt(c *gin.Context) {
	doc, order, err := s.serviceOrders.Receipt(c.Request.Context(), storeIDFrom(c), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	writePDF(c, fmt.Sprintf("service-order-%d.pdf", order.Number), doc)
}

func writePDF(c *gin.Context, filename string, doc io.Reader) {
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	c.DataFromReader(http.StatusOK, -1, "application/pdf", doc, nil)
}
