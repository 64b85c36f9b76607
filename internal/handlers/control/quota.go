package control

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"imagegateway/internal/apierr"
	"imagegateway/internal/metrics"
	"imagegateway/internal/middleware"
	"imagegateway/internal/store"
)

type QuotaHandler struct {
	store *store.Store
}

func NewQuotaHandler(s *store.Store) *QuotaHandler {
	return &QuotaHandler{store: s}
}

func (h *QuotaHandler) Read(c *gin.Context) {
	user, err := h.store.GetUserByID(middleware.UserID(c))
	if err != nil {
		apierr.Abort(c, apierr.KindNotFound, "user not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"quota":     user.Quota,
		"used":      user.Used,
		"remaining": user.Quota - user.Used,
	})
}

type consumeRequest struct {
	Count *int64 `json:"count"`
}

// Consume debits count credits atomically; count defaults to 1 when
// omitted. count=0 is accepted as a no-op.
func (h *QuotaHandler) Consume(c *gin.Context) {
	var req consumeRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		apierr.Abort(c, apierr.KindBadRequest, err.Error())
		return
	}

	count := int64(1)
	if req.Count != nil {
		count = *req.Count
	}
	if count < 0 {
		apierr.Abort(c, apierr.KindBadRequest, "count must be non-negative")
		return
	}

	userID := middleware.UserID(c)
	if count == 0 {
		user, err := h.store.GetUserByID(userID)
		if err != nil {
			apierr.Abort(c, apierr.KindNotFound, "user not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "remaining": user.Quota - user.Used})
		return
	}

	ok, remaining, err := h.store.ConsumeQuota(userID, count)
	if err != nil {
		apierr.Abort(c, apierr.KindInternal, err.Error())
		return
	}
	if !ok {
		apierr.Abort(c, apierr.KindBadRequest, "配额不足")
		return
	}

	_ = h.store.LogUsage(userID, "consume_quota")
	metrics.QuotaConsumedTotal.Add(float64(count))
	c.JSON(http.StatusOK, gin.H{"success": true, "remaining": remaining})
}
