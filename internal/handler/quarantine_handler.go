package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stylizr/upload-gateway/internal/dto"
	"github.com/stylizr/upload-gateway/internal/quarantine"
	"github.com/stylizr/upload-gateway/internal/seclog"
	appErrors "github.com/stylizr/upload-gateway/pkg/errors"
	"github.com/stylizr/upload-gateway/pkg/response"
)

type eventRecorder interface {
	Log(event seclog.Event) seclog.Event
}

// QuarantineHandler exposes the admin quarantine review endpoints.
type QuarantineHandler struct {
	store  *quarantine.Store
	events eventRecorder
	logger *zap.Logger
}

// NewQuarantineHandler constructs the quarantine handler.
func NewQuarantineHandler(store *quarantine.Store, events eventRecorder, logger *zap.Logger) *QuarantineHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuarantineHandler{store: store, events: events, logger: logger}
}

// List returns every quarantined file.
// @Summary List quarantined files
// @Tags quarantine
// @Produce json
// @Success 200 {object} response.Envelope{data=[]dto.QuarantineItem}
// @Router /admin/quarantine [get]
func (h *QuarantineHandler) List(c *gin.Context) {
	if h.store == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	records, err := h.store.List()
	if err != nil {
		response.Error(c, err)
		return
	}
	items := make([]dto.QuarantineItem, 0, len(records))
	for _, record := range records {
		items = append(items, dto.QuarantineItem{
			QuarantineID:     record.QuarantineID,
			OriginalFilename: record.OriginalFilename,
			FileHash:         record.FileHash,
			SizeBytes:        record.FileSize,
			Reason:           record.Reason,
			QuarantinedAt:    record.Timestamp,
			ExpiresAt:        record.Timestamp.Add(h.store.Retention()),
		})
	}
	response.JSON(c, http.StatusOK, items)
}

// Release permanently removes one quarantined file.
// @Summary Delete a quarantined file
// @Tags quarantine
// @Param id path string true "quarantine id"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /admin/quarantine/{id} [delete]
func (h *QuarantineHandler) Release(c *gin.Context) {
	if h.store == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	id := c.Param("id")
	if err := h.store.Release(id); err != nil {
		if errors.Is(err, quarantine.ErrNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, err)
		return
	}
	if h.events != nil {
		h.events.Log(seclog.Event{
			Type:         seclog.EventQuarantineAction,
			Severity:     seclog.SeverityMedium,
			IPAddress:    c.ClientIP(),
			QuarantineID: id,
			Result:       seclog.ResultSuccess,
			Detail:       "quarantined file deleted by administrator",
		})
	}
	response.NoContent(c)
}
