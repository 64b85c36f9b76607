package control

import (
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"imagegateway/internal/apierr"
	"imagegateway/internal/objectstore"
)

const refImagePrefix = "cankaotu/"

type UploadHandler struct {
	objectStore   *objectstore.Client
	imgReturnBase string
}

func NewUploadHandler(objectStore *objectstore.Client, imgReturnBase string) *UploadHandler {
	return &UploadHandler{objectStore: objectStore, imgReturnBase: imgReturnBase}
}

type uploadImageRequest struct {
	Image    string `json:"image" binding:"required"`
	MimeType string `json:"mimeType"`
}

// UploadImage stores a client-supplied reference image and returns its
// stable public URL, mirroring the upload side of the generation
// executor's result-image path.
func (h *UploadHandler) UploadImage(c *gin.Context) {
	var req uploadImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Abort(c, apierr.KindBadRequest, err.Error())
		return
	}

	data, err := objectstore.DecodeImagePayload(req.Image)
	if err != nil {
		apierr.Abort(c, apierr.KindBadRequest, err.Error())
		return
	}

	mime := req.MimeType
	if mime == "" {
		mime = "image/png"
	}

	sum := sha1.Sum(data)
	sha1Hex := hex.EncodeToString(sum[:])
	ext := objectstore.ExtForMime(mime)
	key := objectstore.BuildKey(refImagePrefix, time.Now(), uuid.NewString(), ext)

	if err := h.objectStore.Upload(key, mime, data, sha1Hex); err != nil {
		apierr.Abort(c, apierr.KindInternal, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"url":      trimSlash(h.imgReturnBase) + "/i/" + key,
		"fileName": key,
		"size":     len(data),
	})
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
