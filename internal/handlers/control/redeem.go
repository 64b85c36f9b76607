package control

import (
	"crypto/rand"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"imagegateway/internal/apierr"
	"imagegateway/internal/metrics"
	"imagegateway/internal/middleware"
	"imagegateway/internal/models"
	"imagegateway/internal/store"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

type RedeemHandler struct {
	store *store.Store
}

func NewRedeemHandler(s *store.Store) *RedeemHandler {
	return &RedeemHandler{store: s}
}

type redeemRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *RedeemHandler) Redeem(c *gin.Context) {
	var req redeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Abort(c, apierr.KindBadRequest, err.Error())
		return
	}

	userID := middleware.UserID(c)
	user, err := h.store.GetUserByID(userID)
	if err != nil {
		apierr.Abort(c, apierr.KindNotFound, "user not found")
		return
	}

	ok, quota, err := h.store.RedeemCode(req.Code, user.Username, userID)
	if err != nil {
		metrics.RedemptionsTotal.WithLabelValues("error").Inc()
		apierr.Abort(c, apierr.KindInternal, err.Error())
		return
	}
	if !ok {
		metrics.RedemptionsTotal.WithLabelValues("rejected").Inc()
		apierr.Abort(c, apierr.KindBadRequest, "兑换码无效或已使用")
		return
	}

	metrics.RedemptionsTotal.WithLabelValues("success").Inc()
	_ = h.store.LogUsage(userID, "redeem_code")
	c.JSON(http.StatusOK, gin.H{"success": true, "quota": quota})
}

type CodesHandler struct {
	store *store.Store
}

func NewCodesHandler(s *store.Store) *CodesHandler {
	return &CodesHandler{store: s}
}

func (h *CodesHandler) List(c *gin.Context) {
	codes, err := h.store.ListRedeemCodes()
	if err != nil {
		apierr.Abort(c, apierr.KindInternal, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"codes": codes})
}

type generateCodesRequest struct {
	Count int64 `json:"count" binding:"required"`
	Quota int64 `json:"quota" binding:"required"`
}

func (h *CodesHandler) Generate(c *gin.Context) {
	var req generateCodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Abort(c, apierr.KindBadRequest, err.Error())
		return
	}
	if req.Count <= 0 || req.Quota <= 0 {
		apierr.Abort(c, apierr.KindBadRequest, "count and quota must be positive")
		return
	}

	var created []models.RedeemCode
	for i := int64(0); i < req.Count; i++ {
		var rc *models.RedeemCode
		for attempt := 0; attempt < 5; attempt++ {
			code, err := generateCode()
			if err != nil {
				apierr.Abort(c, apierr.KindInternal, err.Error())
				return
			}
			rc, err = h.store.CreateRedeemCode(code, req.Quota)
			if err == store.ErrDuplicate {
				continue
			}
			if err != nil {
				apierr.Abort(c, apierr.KindInternal, err.Error())
				return
			}
			break
		}
		if rc == nil {
			apierr.Abort(c, apierr.KindInternal, "failed to generate unique code")
			return
		}
		created = append(created, *rc)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "codes": created})
}

// generateCode produces a 16-char code from codeAlphabet, grouped with a
// dash every 4 characters.
func generateCode() (string, error) {
	raw := make([]byte, 16)
	buf := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	for i, b := range raw {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}

	var sb strings.Builder
	for i, b := range buf {
		if i > 0 && i%4 == 0 {
			sb.WriteByte('-')
		}
		sb.WriteByte(b)
	}
	return sb.String(), nil
}
