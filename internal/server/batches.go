package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	trackerdomain "github.com/jobsift/jobsift/internal/tracker/domain"
)

// SubmitBatch accepts one scrape batch and processes it synchronously.
// A re-submitted completed run returns its stored summary with 200 instead
// of re-processing.
func (s *Server) SubmitBatch(c *gin.Context) {
	var req trackerdomain.ProcessBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_json", "request body must be a valid batch"))
		return
	}
	if strings.TrimSpace(req.SourcePlatform) == "" {
		AbortWithError(c, newValidationError("source_platform", "required", "source_platform is required"))
		return
	}

	summary, err := s.trackerSvc.ProcessBatch(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if summary.Created > 0 {
		status = http.StatusCreated
	}
	c.JSON(status, summary)
}
