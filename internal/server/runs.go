package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	trackerdomain "github.com/jobsift/jobsift/internal/tracker/domain"
)

func (s *Server) GetScrapeRun(c *gin.Context) {
	runID := strings.TrimSpace(c.Param("run_id"))
	if runID == "" {
		AbortWithError(c, newValidationError("run_id", "required", "run_id is required"))
		return
	}

	run, err := s.runRepo.GetByRunID(c.Request.Context(), runID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if run == nil {
		AbortWithError(c, trackerdomain.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, run)
}
