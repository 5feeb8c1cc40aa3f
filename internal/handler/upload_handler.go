package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stylizr/upload-gateway/internal/dto"
	"github.com/stylizr/upload-gateway/internal/middleware"
	"github.com/stylizr/upload-gateway/internal/repository"
	"github.com/stylizr/upload-gateway/internal/service"
	appErrors "github.com/stylizr/upload-gateway/pkg/errors"
	"github.com/stylizr/upload-gateway/pkg/response"
)

// UploadHandler exposes the upload intake and lookup endpoints.
type UploadHandler struct {
	uploads *service.UploadService
	tempDir string
	maxSize int64
	logger  *zap.Logger
}

// NewUploadHandler constructs the upload handler. maxSize caps the
// request body before any validation runs.
func NewUploadHandler(uploads *service.UploadService, tempDir string, maxSize int64, logger *zap.Logger) *UploadHandler {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if maxSize <= 0 {
		maxSize = 60 * 1024 * 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadHandler{uploads: uploads, tempDir: tempDir, maxSize: maxSize, logger: logger}
}

// Create accepts a multipart upload.
// @Summary Upload a photo
// @Tags uploads
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "image file"
// @Success 201 {object} response.Envelope{data=dto.UploadResponse}
// @Failure 413 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /uploads [post]
func (h *UploadHandler) Create(c *gin.Context) {
	if h.uploads == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Error(c, appErrors.ErrPayloadTooLarge)
			return
		}
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "multipart field \"file\" is required"))
		return
	}
	if fileHeader.Size > h.maxSize {
		response.Error(c, appErrors.ErrPayloadTooLarge)
		return
	}

	spoolPath, err := h.spool(fileHeader)
	if err != nil {
		h.logger.Error("spooling upload failed", zap.Error(err))
		response.Error(c, appErrors.ErrInternal)
		return
	}
	defer func() {
		if rmErr := os.Remove(spoolPath); rmErr != nil && !os.IsNotExist(rmErr) {
			h.logger.Warn("removing spool file failed", zap.String("path", spoolPath), zap.Error(rmErr))
		}
	}()

	result, err := h.uploads.Upload(c.Request.Context(), service.UploadInput{
		Path:             spoolPath,
		OriginalFilename: fileHeader.Filename,
		OwnerID:          middleware.UserID(c),
		IP:               c.ClientIP(),
		DeclaredSize:     fileHeader.Size,
		DeclaredMimeType: fileHeader.Header.Get("Content-Type"),
	})
	if err != nil {
		h.respondUploadError(c, err)
		return
	}
	response.Created(c, result)
}

// Get returns one stored upload record.
// @Summary Fetch upload metadata
// @Tags uploads
// @Produce json
// @Param id path string true "upload id"
// @Success 200 {object} response.Envelope{data=dto.UploadResponse}
// @Failure 404 {object} response.Envelope
// @Router /uploads/{id} [get]
func (h *UploadHandler) Get(c *gin.Context) {
	if h.uploads == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	result, err := h.uploads.GetUpload(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// List returns the caller's recent uploads.
// @Summary List own uploads
// @Tags uploads
// @Produce json
// @Success 200 {object} response.Envelope{data=[]dto.UploadResponse}
// @Router /uploads [get]
func (h *UploadHandler) List(c *gin.Context) {
	if h.uploads == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	ownerID := middleware.UserID(c)
	if ownerID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	results, err := h.uploads.ListUploads(c.Request.Context(), ownerID, 50)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results)
}

func (h *UploadHandler) respondUploadError(c *gin.Context, err error) {
	var limited *service.RateLimitedError
	if errors.As(err, &limited) {
		d := limited.Decision
		retryAfter := int(d.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		response.RateLimited(c, retryAfter, d.Limit, d.Remaining, d.ResetAt.Unix(),
			fmt.Sprintf("upload limit reached (%s tier)", d.Tier))
		return
	}

	var rejected *service.RejectedError
	if errors.As(err, &rejected) {
		verdict := rejected.Verdict
		appErr := appErrors.Clone(appErrors.ErrUploadRejected, strings.Join(verdict.Errors, "; "))
		rejection := dto.UploadRejection{Errors: verdict.Errors, Warnings: verdict.Warnings}
		if verdict.Risk != nil {
			rejection.RiskTier = string(verdict.Risk.Level)
		}
		c.Header("Cache-Control", "no-store")
		c.JSON(appErr.Status, response.Envelope{
			Error: appErr,
			Meta:  map[string]interface{}{"rejection": rejection},
		})
		return
	}

	response.Error(c, err)
}

// spool copies the multipart part to a private temp file so validation
// reads from disk, never from the request stream.
func (h *UploadHandler) spool(fileHeader *multipart.FileHeader) (string, error) {
	src, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("open multipart file: %w", err)
	}
	defer src.Close() //nolint:errcheck

	path := filepath.Join(h.tempDir, "spool-"+uuid.New().String())
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create spool file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()          //nolint:errcheck
		_ = os.Remove(path)  //nolint:errcheck
		return "", fmt.Errorf("write spool file: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close spool file: %w", err)
	}
	return path, nil
}
