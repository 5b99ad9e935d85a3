package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/storeadmin/internal/records"
)

func (s *Server) GetChatbot(c *gin.Context) {
	cfg, err := s.chatbot.Get(c.Request.Context(), storeIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cfg})
}

type saveChatbotRequest struct {
	records.ChatbotConfig
	Note string `json:"note"`
}

func (s *Server) SaveChatbot(c *gin.Context) {
	var req saveChatbotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cfg, err := s.chatbot.Save(c.Request.Context(), storeIDFrom(c), req.ChatbotConfig, req.Note)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cfg})
}

func (s *Server) ListChatbotVersions(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	versions, err := s.chatbot.ListVersions(c.Request.Context(), storeIDFrom(c), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": versions})
}

func (s *Server) RestoreChatbotVersion(c *gin.Context) {
	version, err := strconv.ParseInt(c.Param("version"), 10, 64)
	if err != nil {
		AbortWithError(c, newValidationError("version", "invalid_version", "invalid version"))
		return
	}

	cfg, err := s.chatbot.Restore(c.Request.Context(), storeIDFrom(c), version)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cfg})
}
