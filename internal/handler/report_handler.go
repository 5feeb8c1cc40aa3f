package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stylizr/upload-gateway/internal/dto"
	"github.com/stylizr/upload-gateway/internal/service"
	appErrors "github.com/stylizr/upload-gateway/pkg/errors"
	"github.com/stylizr/upload-gateway/pkg/response"
)

// ReportHandler serves security-event exports for operators.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler constructs the report handler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Download renders the trailing-window event report.
// @Summary Export security events
// @Tags reports
// @Produce text/csv
// @Param hours query int false "trailing window in hours" default(24)
// @Param format query string false "csv or pdf" default(csv)
// @Router /admin/reports/security [get]
func (h *ReportHandler) Download(c *gin.Context) {
	if h.reports == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var req dto.ReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	if req.Hours <= 0 {
		req.Hours = 24
	}

	payload, contentType, err := h.reports.SecurityReport(time.Duration(req.Hours)*time.Hour, req.Format)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}

	ext := "csv"
	if contentType == "application/pdf" {
		ext = "pdf"
	}
	filename := fmt.Sprintf("security-events-%s.%s", time.Now().UTC().Format("20060102-1504"), ext)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}

// Summary returns aggregate counts for the trailing window.
// @Summary Summarise security events
// @Tags reports
// @Produce json
// @Router /admin/reports/security/summary [get]
func (h *ReportHandler) Summary(c *gin.Context) {
	if h.reports == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var req dto.ReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	if req.Hours <= 0 {
		req.Hours = 24
	}
	response.JSON(c, http.StatusOK, h.reports.Summary(time.Duration(req.Hours)*time.Hour))
}
