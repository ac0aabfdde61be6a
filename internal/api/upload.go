package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"dropzone/internal/upload"
)

func (s *Server) handleUpload(c *gin.Context) {
	report, err := s.decoder.Decode(c.Request.Context(), c.Request)
	if err != nil {
		body := gin.H{"error": err.Error()}
		if len(report.Files) > 0 {
			body["files"] = report.Files
		}
		if len(report.Failed) > 0 {
			body["failed"] = report.Failed
		}
		c.JSON(upload.StatusFor(err), body)
		return
	}

	if !strings.HasPrefix(strings.ToLower(c.ContentType()), "multipart/") {
		c.JSON(http.StatusOK, gin.H{
			"message": "File uploaded",
			"file":    report.Files[0],
		})
		return
	}

	message := "File uploaded"
	if n := len(report.Files); n > 1 {
		message = fmt.Sprintf("%d files uploaded", n)
	}
	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"files":   report.Files,
	})
}
