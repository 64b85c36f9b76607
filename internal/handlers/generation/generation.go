// Package generation implements the generation-plane HTTP surface:
// task intake, task polling, health, and upstream preflight diagnostics.
package generation

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"imagegateway/internal/apierr"
	"imagegateway/internal/executor"
	"imagegateway/internal/kv"
	"imagegateway/internal/metrics"
	"imagegateway/internal/middleware"
	"imagegateway/internal/models"
	"imagegateway/internal/objectstore"
	"imagegateway/internal/store"
	"imagegateway/internal/vertex"
)

type Handler struct {
	tasks        *kv.TaskStore
	objectStore  *objectstore.Client
	vertexClient *vertex.Client
	executor     *executor.Executor
	store        *store.Store
}

func New(tasks *kv.TaskStore, objectStore *objectstore.Client, vertexClient *vertex.Client, ex *executor.Executor, s *store.Store) *Handler {
	return &Handler{tasks: tasks, objectStore: objectStore, vertexClient: vertexClient, executor: ex, store: s}
}

type generateRequest struct {
	Prompt      string          `json:"prompt"`
	AspectRatio string          `json:"aspectRatio"`
	ImageSize   string          `json:"imageSize"`
	Images      json.RawMessage `json:"images"`
}

// Generate preflights both upstreams, validates the body, debits one quota
// credit, mints a task, and detaches the four-stage executor before
// returning. The request goroutine never awaits the background job.
func (h *Handler) Generate(c *gin.Context) {
	if err := h.objectStore.Preflight(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "B2_PRECHECK_FAILED", "message": err.Error()})
		return
	}
	if err := h.vertexClient.Preflight(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "VERTEX_PRECHECK_FAILED", "message": err.Error()})
		return
	}

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Abort(c, apierr.KindBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		apierr.Abort(c, apierr.KindBadRequest, "prompt is required")
		return
	}
	if req.AspectRatio == "" {
		req.AspectRatio = "1:1"
	}
	if req.ImageSize == "" {
		req.ImageSize = "4K"
	}
	req.ImageSize = strings.ToUpper(req.ImageSize)

	userID := middleware.UserID(c)
	ok, _, err := h.store.ConsumeQuota(userID, 1)
	if err != nil {
		apierr.Abort(c, apierr.KindInternal, err.Error())
		return
	}
	if !ok {
		apierr.Abort(c, apierr.KindBadRequest, "配额不足")
		return
	}

	taskID := uuid.NewString()
	now := time.Now()
	task := &models.Task{
		TaskID:   taskID,
		Status:   models.TaskPending,
		Progress: models.Progress25,
		Prompt:   req.Prompt,
		Options: models.GenerationOptions{
			AspectRatio: req.AspectRatio,
			ImageSize:   req.ImageSize,
		},
		RefImages: req.Images,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.tasks.Put(c.Request.Context(), task); err != nil {
		apierr.Abort(c, apierr.KindInternal, err.Error())
		return
	}

	metrics.TasksCreatedTotal.Inc()
	go h.executor.Run(taskID, req.Prompt, task.Options, req.Images)

	c.JSON(http.StatusAccepted, gin.H{
		"taskId":   taskID,
		"status":   task.Status,
		"progress": task.Progress,
	})
}

func (h *Handler) GetTask(c *gin.Context) {
	task, err := h.tasks.Get(c.Request.Context(), c.Param("id"))
	if err == kv.ErrNotFound {
		apierr.Abort(c, apierr.KindNotFound, "task not found")
		return
	}
	if err != nil {
		apierr.Abort(c, apierr.KindInternal, err.Error())
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *Handler) B2Check(c *gin.Context) {
	if err := h.objectStore.Preflight(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) VertexCheck(c *gin.Context) {
	if err := h.vertexClient.Preflight(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
