package api

import (
	_ "embed"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"dropzone/internal/models"
	"dropzone/internal/storage"
)

//go:embed web/index.html
var indexHTML []byte

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

// handleListing answers with JSON when the client asks for it and with
// one tab separated line per file otherwise.
func (s *Server) handleListing(c *gin.Context) {
	files, err := storage.Snapshot(s.provider)
	if err != nil {
		s.logger.Warn(c.Request.Context(), "failed to list storage directory", "error", err)
	}

	switch c.NegotiateFormat(gin.MIMEPlain, gin.MIMEJSON) {
	case gin.MIMEJSON:
		c.JSON(http.StatusOK, files)
	default:
		c.String(http.StatusOK, formatListing(files))
	}
}

func (s *Server) handleDownload(c *gin.Context) {
	name := c.Param("name")
	if storage.IsHidden(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	file, err := s.provider.Open(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), file)
}

func formatListing(files []models.StoredFile) string {
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "%s\t%d\t%s\n", f.Name, f.Size, f.ModTime.UTC().Format(time.RFC3339))
	}
	return b.String()
}

func humanizeSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
