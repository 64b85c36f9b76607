package control

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"imagegateway/internal/apierr"
	"imagegateway/internal/middleware"
	"imagegateway/internal/store"
)

type HistoryHandler struct {
	store *store.Store
}

func NewHistoryHandler(s *store.Store) *HistoryHandler {
	return &HistoryHandler{store: s}
}

func (h *HistoryHandler) List(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	offset := 0
	if raw := c.Query("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}

	records, err := h.store.ListHistory(middleware.UserID(c), limit, offset)
	if err != nil {
		apierr.Abort(c, apierr.KindInternal, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": records})
}

type createHistoryRequest struct {
	Prompt    string          `json:"prompt" binding:"required"`
	ImageURL  string          `json:"image_url" binding:"required"`
	Options   json.RawMessage `json:"options"`
	RefImages json.RawMessage `json:"ref_images"`
}

func (h *HistoryHandler) Create(c *gin.Context) {
	var req createHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Abort(c, apierr.KindBadRequest, err.Error())
		return
	}
	if req.Options == nil {
		req.Options = json.RawMessage("{}")
	}
	if req.RefImages == nil {
		req.RefImages = json.RawMessage("[]")
	}

	if err := h.store.CreateHistory(middleware.UserID(c), req.Prompt, req.ImageURL, req.Options, req.RefImages); err != nil {
		apierr.Abort(c, apierr.KindInternal, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *HistoryHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		apierr.Abort(c, apierr.KindBadRequest, "invalid history id")
		return
	}

	if err := h.store.DeleteHistory(id, middleware.UserID(c)); err == store.ErrNotFound {
		apierr.Abort(c, apierr.KindNotFound, "history record not found")
		return
	} else if err != nil {
		apierr.Abort(c, apierr.KindInternal, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
