package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/storeadmin/internal/chatbot"
	"github.com/smallbiznis/storeadmin/internal/records"
	"github.com/smallbiznis/storeadmin/pkg/docstore"
	"github.com/smallbiznis/storeadmin/pkg/repository"
)

// Storefront handlers serve the public site of the store resolved from the Host header. They only expose active
// records and never the admin-only fields of the chatbot.

var activeOnly = repository.ListOptions{
	Filters: []docstore.Filter{{Field: "active", Op: docstore.OpEqual, Value: true}},
	OrderBy: "position",
}

type storefrontInfo struct {
	StoreID   string        `json:"store_id"`
	StoreName string        `json:"store_name,omitempty"`
	WhatsApp  string        `json:"whatsapp,omitempty"`
	Email     string        `json:"email,omitempty"`
	Address   string        `json:"address,omitempty"`
	Hours     string        `json:"hours,omitempty"`
	Theme     records.Theme `json:"theme"`
}

func (s *Server) StorefrontInfo(c *gin.Context) {
	storeID := storeIDFrom(c)
	settings, err := s.registry.StoreSettings(c.Request.Context(), storeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	info := storefrontInfo{StoreID: storeID}
	if settings != nil {
		info.StoreName = settings.StoreName
		info.WhatsApp = settings.WhatsApp
		info.Email = settings.Email
		info.Address = settings.Address
		info.Hours = settings.Hours
		info.Theme = settings.Theme
	}
	c.JSON(http.StatusOK, gin.H{"data": info})
}

func (s *Server) StorefrontProducts(c *gin.Context) {
	opts := activeOnly
	if categoryID := c.Query("category_id"); categoryID != "" {
		opts.Filters = append(append([]docstore.Filter(nil), activeOnly.Filters...),
			docstore.Filter{Field: "category_id", Op: docstore.OpEqual, Value: categoryID})
	}

	products, err := s.registry.Products().List(c.Request.Context(), storeIDFrom(c), opts)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": products})
}

func (s *Server) StorefrontProduct(c *gin.Context) {
	product, err := s.registry.Products().Get(c.Request.Context(), storeIDFrom(c), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !product.Active {
		AbortWithError(c, ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": product})
}

func (s *Server) StorefrontCategories(c *gin.Context) {
	categories, err := s.registry.Categories().List(c.Request.Context(), storeIDFrom(c), activeOnly)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": categories})
}

func (s *Server) StorefrontFAQ(c *gin.Context) {
	entries, err := s.registry.FAQ().List(c.Request.Context(), storeIDFrom(c), activeOnly)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

type storefrontChatbot struct {
	Name     string `json:"name"`
	Greeting string `json:"greeting,omitempty"`
}

func (s *Server) StorefrontChatbot(c *gin.Context) {
	cfg, err := s.registry.Chatbot().Get(c.Request.Context(), storeIDFrom(c), records.ChatbotConfigID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			err = chatbot.ErrNotConfigured
		}
		AbortWithError(c, err)
		return
	}
	if !cfg.Enabled {
		AbortWithError(c, chatbot.ErrNotConfigured)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": storefrontChatbot{Name: cfg.Name, Greeting: cfg.Greeting}})
}
