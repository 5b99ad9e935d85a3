package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/storeadmin/internal/blob"
)

// Upload stores the multipart "file" field and returns its public URL.
func (s *Server) Upload(c *gin.Context) {
	if s.uploader == nil || !s.uploader.Enabled() {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, blob.MaxUploadSize+(1<<20))
	header, err := c.FormFile("file")
	if err != nil {
		AbortWithError(c, newValidationError("file", "required", "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	defer file.Close()

	url, err := s.uploader.Upload(c.Request.Context(), blob.Upload{
		StoreID:     storeIDFrom(c),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url})
}
