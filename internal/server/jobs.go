package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	trackerdomain "github.com/jobsift/jobsift/internal/tracker/domain"
)

func (s *Server) ListTrackedJobs(c *gin.Context) {
	req := trackerdomain.ListTrackedJobsRequest{
		Company: strings.TrimSpace(c.Query("company")),
	}

	companyID, err := parseOptionalSnowflakeID(c.Query("company_id"))
	if err != nil {
		AbortWithError(c, newValidationError("company_id", "invalid", "company_id must be a valid id"))
		return
	}
	req.CompanyID = companyID

	locationID, err := parseOptionalSnowflakeID(c.Query("location_id"))
	if err != nil {
		AbortWithError(c, newValidationError("location_id", "invalid", "location_id must be a valid id"))
		return
	}
	req.LocationID = locationID

	isEvergreen, err := parseOptionalBool(c.Query("is_evergreen"))
	if err != nil {
		AbortWithError(c, newValidationError("is_evergreen", "invalid", "is_evergreen must be true or false"))
		return
	}
	req.IsEvergreen = isEvergreen

	minReposts, err := parseOptionalInt(c.Query("min_repost_count"))
	if err != nil || (minReposts != nil && *minReposts < 0) {
		AbortWithError(c, newValidationError("min_repost_count", "invalid", "min_repost_count must be a non-negative integer"))
		return
	}
	req.MinRepostCount = minReposts

	seenAfter, err := parseOptionalTime(c.Query("seen_after"), false)
	if err != nil {
		AbortWithError(c, newValidationError("seen_after", "invalid", "seen_after must be an RFC3339 timestamp or date"))
		return
	}
	req.SeenAfter = seenAfter

	seenBefore, err := parseOptionalTime(c.Query("seen_before"), true)
	if err != nil {
		AbortWithError(c, newValidationError("seen_before", "invalid", "seen_before must be an RFC3339 timestamp or date"))
		return
	}
	req.SeenBefore = seenBefore

	req.PageToken = c.Query("page_token")
	if size, err := parseOptionalInt(c.Query("page_size")); err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid", "page_size must be an integer"))
		return
	} else if size != nil {
		req.PageSize = *size
	}

	resp, err := s.trackerSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetTrackedJob(c *gin.Context) {
	fp := strings.TrimSpace(c.Param("fingerprint"))
	if len(fp) != 64 {
		AbortWithError(c, newValidationError("fingerprint", "invalid", "fingerprint must be a 64-character hash"))
		return
	}

	job, err := s.trackerSvc.GetByFingerprint(c.Request.Context(), fp)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}
