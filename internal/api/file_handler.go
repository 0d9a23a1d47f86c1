package api

import (
	"net/http"

	"github.com/document-export-api/internal/delivery"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// FileHandler serves files behind transient download links
type FileHandler struct {
	links *delivery.LinkRegistry
	log   zerolog.Logger
}

// NewFileHandler creates a new FileHandler. links may be nil.
func NewFileHandler(links *delivery.LinkRegistry, log zerolog.Logger) *FileHandler {
	return &FileHandler{
		links: links,
		log:   log.With().Str("handler", "file").Logger(),
	}
}

// GetFile handles GET /v1/files/:token
func (h *FileHandler) GetFile(c *gin.Context) {
	if h.links == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	link, ok := h.links.Get(c.Param("token"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "download link expired or not found"})
		return
	}

	if link.MimeType != "" {
		c.Header("Content-Type", link.MimeType)
	}
	h.log.Debug().Str("filename", link.Filename).Int64("size", link.Size).Msg("Serving file")
	c.FileAttachment(link.Path, link.Filename)
}
