package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"twintalk/internal/core/domain"
	"twintalk/internal/core/ports"
	apperrors "twintalk/pkg/errors"

	"github.com/gin-gonic/gin"
)

// ChunkIngester appends an uploaded chunk and announces the stop when it was
// the last one.
type ChunkIngester interface {
	IngestChunk(ctx context.Context, id domain.RecordingID, data []byte, isLast bool) (*domain.RecordingSession, error)
}

type RecordingHandler struct {
	recordings   ports.RecordingService
	ingester     ChunkIngester
	maxChunkSize int64
}

func NewRecordingHandler(recordings ports.RecordingService, ingester ChunkIngester, maxChunkSize int64) *RecordingHandler {
	if maxChunkSize <= 0 {
		maxChunkSize = 4 << 20
	}
	return &RecordingHandler{
		recordings:   recordings,
		ingester:     ingester,
		maxChunkSize: maxChunkSize,
	}
}

func (h *RecordingHandler) SetupRoutes(api *gin.RouterGroup) {
	api.GET("/recordings/:id", h.GetRecording)
	api.GET("/recordings/:id/artifact", h.DownloadArtifact)
	api.POST("/recordings/:id/chunks", h.UploadChunk)
}

func (h *RecordingHandler) GetRecording(c *gin.Context) {
	id := domain.RecordingID(c.Param("id"))

	session, err := h.recordings.Get(c.Request.Context(), id)
	if err != nil {
		c.Error(domain.ToAppError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"recording": session,
	})
}

func (h *RecordingHandler) DownloadArtifact(c *gin.Context) {
	id := domain.RecordingID(c.Param("id"))

	data, session, err := h.recordings.Artifact(c.Request.Context(), id)
	if err != nil {
		c.Error(domain.ToAppError(err))
		return
	}

	contentType := session.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", session.ArtifactName))
	c.Data(http.StatusOK, contentType, data)
}

// UploadChunk takes the raw request body as one chunk. ?last=true finalizes.
func (h *RecordingHandler) UploadChunk(c *gin.Context) {
	id := domain.RecordingID(c.Param("id"))

	isLast := false
	if raw := c.Query("last"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.Error(apperrors.NewInvalidInputError("last must be a boolean"))
			return
		}
		isLast = v
	}

	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxChunkSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.Error(apperrors.NewInvalidInputError("chunk too large").WithContext("limit", tooLarge.Limit))
			return
		}
		c.Error(apperrors.NewInvalidInputError("could not read chunk"))
		return
	}
	if len(data) == 0 && !isLast {
		c.Error(apperrors.NewInvalidInputError("empty chunk"))
		return
	}

	session, err := h.ingester.IngestChunk(c.Request.Context(), id, data, isLast)
	if err != nil {
		c.Error(domain.ToAppError(err))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"recording": session,
	})
}
