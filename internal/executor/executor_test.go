package executor

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"imagegateway/internal/models"
)

func newTestExecutor(maxImages int) *Executor {
	return New(nil, nil, nil, "gemini/", "https://img.example.com", maxImages, nil, true, 0, nil)
}

func TestNormalizeAll_EmptyInputYieldsNoImages(t *testing.T) {
	e := newTestExecutor(2)
	images, err := e.normalizeAll(nil)
	assert.NoError(t, err)
	assert.Nil(t, images)
}

func TestNormalizeAll_TruncatesToTwo(t *testing.T) {
	e := newTestExecutor(2)
	one := json.RawMessage(`"data:image/png;base64,aGVsbG8="`)
	raw, _ := json.Marshal([]json.RawMessage{one, one, one, one})

	images, err := e.normalizeAll(raw)
	assert.NoError(t, err)
	assert.Len(t, images, 2)
}

func TestNormalizeAll_RejectsNonArray(t *testing.T) {
	e := newTestExecutor(2)
	_, err := e.normalizeAll(json.RawMessage(`{"not":"an array"}`))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "REF_IMAGE_INVALID")
}

func TestBuildPayload_LabelsBothReferenceImages(t *testing.T) {
	e := newTestExecutor(2)
	images := []*normalizedImage{
		{MimeType: "image/png", Base64: "aaa"},
		{MimeType: "image/jpeg", Base64: "bbb"},
	}
	parts, genConfig := e.buildPayload("draw a cat", models.GenerationOptions{AspectRatio: "1:1", ImageSize: "4k"}, images)

	// primer + (label, data) per image
	assert.Len(t, parts, 1+2*len(images))
	assert.Equal(t, "4K", genConfig["imageSize"])
	assert.Equal(t, "1:1", genConfig["aspectRatio"])
}

func TestBuildPayload_NoImages(t *testing.T) {
	e := newTestExecutor(2)
	parts, _ := e.buildPayload("draw a cat", models.GenerationOptions{}, nil)
	assert.Len(t, parts, 1)
}

func TestTruncateErr_LeavesShortMessagesAlone(t *testing.T) {
	err := truncateErr(errors.New("short message"))
	assert.Equal(t, "short message", err.Error())
}

func TestTruncateErr_CapsAt500Chars(t *testing.T) {
	long := strings.Repeat("x", 1000)
	err := truncateErr(errors.New(long))
	assert.Len(t, err.Error(), 500)
}
