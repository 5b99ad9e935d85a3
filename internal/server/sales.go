package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/storeadmin/internal/records"
	salesdomain "github.com/smallbiznis/storeadmin/internal/sales/domain"
)

// CreateSale records the sale, takes the items out of stock and counts the coupon use in one commit.
func (s *Server) CreateSale(c *gin.Context) {
	var sale records.Sale
	if err := c.ShouldBindJSON(&sale); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	created, err := s.sales.Create(c.Request.Context(), storeIDFrom(c), salesdomain.CreateRequest{Sale: sale})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": created})
}

func (s *Server) GetSale(c *gin.Context) {
	sale, err := s.sales.Get(c.Request.Context(), storeIDFrom(c), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sale})
}

func (s *Server) VoidSale(c *gin.Context) {
	if err := s.sales.Void(c.Request.Context(), storeIDFrom(c), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) SaleReceipt(c *gin.Context) {
	doc, sale, err := s.sales.Receipt(c.Request.Context(), storeIDFrom(c), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	writePDF(c, "sale-"+sale.ID+".pdf", doc)
}
