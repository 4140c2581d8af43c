package http

import (
	"errors"
	"io"
	"net/http"

	"twintalk/internal/core/domain"
	"twintalk/internal/core/ports"
	"twintalk/internal/infrastructure/middleware"
	apperrors "twintalk/pkg/errors"

	"github.com/gin-gonic/gin"
)

type MeetingHandler struct {
	meetings ports.MeetingService
}

func NewMeetingHandler(meetings ports.MeetingService) *MeetingHandler {
	return &MeetingHandler{
		meetings: meetings,
	}
}

func (h *MeetingHandler) SetupRoutes(api *gin.RouterGroup) {
	api.POST("/meetings", h.CreateMeeting)
	api.GET("/meetings/:code", h.ValidateMeeting)
}

type CreateMeetingRequest struct {
	Title       string `json:"title" binding:"max=200"`
	CreatorName string `json:"creatorName" binding:"max=64"`
}

// CreateMeeting accepts an empty body; the creator falls back to the
// authenticated display name.
func (h *MeetingHandler) CreateMeeting(c *gin.Context) {
	var req CreateMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	if req.CreatorName == "" {
		req.CreatorName = c.GetString(middleware.ContextDisplayName)
	}

	info, err := h.meetings.CreateMeeting(c.Request.Context(), req.Title, req.CreatorName)
	if err != nil {
		c.Error(domain.ToAppError(err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"meeting": info,
	})
}

func (h *MeetingHandler) ValidateMeeting(c *gin.Context) {
	code := domain.MeetingCode(c.Param("code"))

	info, err := h.meetings.ValidateMeeting(c.Request.Context(), code)
	if err != nil {
		c.Error(domain.ToAppError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":   true,
		"meeting": info,
	})
}
