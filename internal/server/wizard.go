package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/storeadmin/internal/wizard"
)

type startWizardRequest struct {
	Kind  string       `json:"kind"`
	Input wizard.Input `json:"input"`
}

func (s *Server) StartWizard(c *gin.Context) {
	var req startWizardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	kind, err := wizard.ParseKind(req.Kind)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	sess, err := s.wizard.Start(c.Request.Context(), storeIDFrom(c), kind, req.Input)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": sess})
}

func (s *Server) GetWizard(c *gin.Context) {
	sess, err := s.wizard.Get(c.Request.Context(), storeIDFrom(c), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sess})
}

func (s *Server) SetWizardInput(c *gin.Context) {
	var in wizard.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sess, err := s.wizard.SetInput(c.Request.Context(), storeIDFrom(c), c.Param("id"), in)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sess})
}

// AnalyzeWizard blocks until the model answers. On failure the session is back in input with the error set.
func (s *Server) AnalyzeWizard(c *gin.Context) {
	sess, err := s.wizard.Analyze(c.Request.Context(), storeIDFrom(c), c.Param("id"))
	if err != nil {
		abortWithSession(c, err, sess)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sess})
}

type updateDraftRequest struct {
	Value    json.RawMessage `json:"value"`
	Selected *bool           `json:"selected"`
}

func (s *Server) UpdateWizardDraft(c *gin.Context) {
	var req updateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(req.Value) == 0 && req.Selected == nil {
		AbortWithError(c, newValidationError("value", "required", "value or selected is required"))
		return
	}

	sess, err := s.wizard.UpdateDraft(c.Request.Context(), storeIDFrom(c), c.Param("id"), c.Param("key"), req.Value, req.Selected)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sess})
}

// ApplyWizard writes the selected drafts. On failure the session is back in review with what committed so far.
func (s *Server) ApplyWizard(c *gin.Context) {
	sess, err := s.wizard.Apply(c.Request.Context(), storeIDFrom(c), c.Param("id"))
	if err != nil {
		abortWithSession(c, err, sess)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sess})
}

func (s *Server) CancelWizard(c *gin.Context) {
	sess, err := s.wizard.Cancel(c.Request.Context(), storeIDFrom(c), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sess})
}

// abortWithSession reports err together with the session state it left behind, so clients can render the
// recorded error and keep the drafts.
func abortWithSession(c *gin.Context, err error, sess *wizard.Session) {
	if sess == nil {
		AbortWithError(c, err)
		return
	}
	_ = c.Error(err)
	status, payload := mapError(err)
	c.AbortWithStatusJSON(status, gin.H{"error": payload, "data": sess})
}
