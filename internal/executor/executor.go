// Package executor runs the four-stage background generation pipeline:
// reference-image normalization, upstream payload assembly, the model
// call with project rotation, and result upload. Detached from the
// request goroutine with a bare `go func()` fire-and-forget dispatch.
package executor

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"imagegateway/internal/kv"
	"imagegateway/internal/metrics"
	"imagegateway/internal/models"
	"imagegateway/internal/objectstore"
	"imagegateway/internal/vertex"
)

const systemPrimer = "Generate a single output image in PNG format. Match the requested aspect ratio and resolution precisely. When two reference images are supplied, treat the first as the primary subject and the second as the stylistic or compositional reference; do not conflate their roles."

type Executor struct {
	tasks         *kv.TaskStore
	objectStore   *objectstore.Client
	vertexClient  *vertex.Client
	keyPrefix     string
	imgReturnBase string
	maxImages     int
	fetcher       *refImageFetcher
	logger        *slog.Logger
}

func New(
	tasks *kv.TaskStore,
	objectStore *objectstore.Client,
	vertexClient *vertex.Client,
	keyPrefix, imgReturnBase string,
	maxImages int,
	allowedHosts []string,
	allowHTTP bool,
	maxRefBytes int64,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		tasks:         tasks,
		objectStore:   objectStore,
		vertexClient:  vertexClient,
		keyPrefix:     keyPrefix,
		imgReturnBase: imgReturnBase,
		maxImages:     maxImages,
		fetcher:       newRefImageFetcher(allowedHosts, allowHTTP, maxRefBytes),
		logger:        logger,
	}
}

// Run executes all four stages for one task. Called from a detached
// goroutine; the caller must not depend on anything in its scope.
func (e *Executor) Run(taskID string, prompt string, opts models.GenerationOptions, refImagesRaw json.RawMessage) {
	ctx := context.Background()

	task, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		e.logger.Error("executor: task vanished before stage 1", "task_id", taskID, "error", err)
		return
	}

	task.Status = models.TaskProcessing
	if err := e.tasks.Update(ctx, task); err != nil {
		e.logger.Error("executor: failed to mark processing", "task_id", taskID, "error", err)
	}

	images, err := e.normalizeAll(refImagesRaw)
	if err != nil {
		e.fail(ctx, task, models.Progress25, err)
		return
	}

	parts, genConfig := e.buildPayload(prompt, opts, images)
	task.Progress = models.Progress50
	if err := e.tasks.Update(ctx, task); err != nil {
		e.logger.Error("executor: failed to update progress to 50", "task_id", taskID, "error", err)
	}

	inlineImages, err := e.vertexClient.Generate(prompt, parts, genConfig)
	if err != nil {
		if errors.Is(err, vertex.ErrNonJSON) {
			e.fail(ctx, task, models.Progress75, fmt.Errorf("VERTEX_NON_JSON: %w", truncateErr(err)))
		} else {
			e.fail(ctx, task, models.Progress75, fmt.Errorf("VERTEX_CALL_FAILED: %w", truncateErr(err)))
		}
		return
	}
	task.Progress = models.Progress75
	if err := e.tasks.Update(ctx, task); err != nil {
		e.logger.Error("executor: failed to update progress to 75", "task_id", taskID, "error", err)
	}

	if len(inlineImages) == 0 {
		e.fail(ctx, task, models.Progress75, fmt.Errorf("NO_IMAGE_IN_RESPONSE"))
		return
	}
	if e.maxImages > 0 && len(inlineImages) > e.maxImages {
		inlineImages = inlineImages[:e.maxImages]
	}

	urls, err := e.uploadResults(inlineImages)
	if err != nil {
		e.fail(ctx, task, models.Progress75, fmt.Errorf("UPLOAD_FAILED: %w", err))
		return
	}

	result := &models.TaskResult{URL: urls[0]}
	if len(urls) > 1 {
		result.URLs = urls
	}
	task.Status = models.TaskCompleted
	task.Progress = models.Progress100
	task.Result = result
	if err := e.tasks.Update(ctx, task); err != nil {
		e.logger.Error("executor: failed to mark completed", "task_id", taskID, "error", err)
	}
	metrics.TasksCompletedTotal.WithLabelValues(string(models.TaskCompleted)).Inc()
}

func (e *Executor) fail(ctx context.Context, task *models.Task, progress int, cause error) {
	msg := cause.Error()
	task.Status = models.TaskFailed
	task.Progress = progress
	task.Error = &msg
	if err := e.tasks.Update(ctx, task); err != nil {
		e.logger.Error("executor: failed to persist failure", "task_id", task.TaskID, "error", err)
	}
	metrics.TasksCompletedTotal.WithLabelValues(string(models.TaskFailed)).Inc()
}

func (e *Executor) normalizeAll(refImagesRaw json.RawMessage) ([]*normalizedImage, error) {
	if len(refImagesRaw) == 0 {
		return nil, nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(refImagesRaw, &entries); err != nil {
		return nil, fmt.Errorf("REF_IMAGE_INVALID: images is not an array")
	}
	if len(entries) > 2 {
		entries = entries[:2]
	}
	images := make([]*normalizedImage, 0, len(entries))
	for _, entry := range entries {
		img, err := e.fetcher.normalize(entry)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

func (e *Executor) buildPayload(prompt string, opts models.GenerationOptions, images []*normalizedImage) ([]vertex.InlinePart, map[string]any) {
	parts := []vertex.InlinePart{{Text: systemPrimer}}
	labels := []string{"Reference Image #1 (图一) below:", "Reference Image #2 (图二) below:"}
	for i, img := range images {
		parts = append(parts, vertex.InlinePart{Text: labels[i]})
		parts = append(parts, vertex.InlinePart{InlineData: &vertex.InlineData{MimeType: img.MimeType, Data: img.Base64}})
	}

	genConfig := map[string]any{
		"responseModalities": []string{"TEXT", "IMAGE"},
		"candidateCount":      1,
		"aspectRatio":         opts.AspectRatio,
		"imageSize":           strings.ToUpper(opts.ImageSize),
	}
	return parts, genConfig
}

func (e *Executor) uploadResults(images []vertex.InlineData) ([]string, error) {
	var urls []string
	for _, img := range images {
		data, err := objectstore.DecodeImagePayload(img.Data)
		if err != nil {
			e.logger.Warn("executor: skipping undecodable result image", "error", err)
			continue
		}
		sum := sha1.Sum(data)
		sha1Hex := hex.EncodeToString(sum[:])

		ext := objectstore.ExtForMime(img.MimeType)
		key := objectstore.BuildKey(e.keyPrefix, time.Now(), uuid.NewString(), ext)

		if err := e.objectStore.Upload(key, img.MimeType, data, sha1Hex); err != nil {
			e.logger.Warn("executor: result upload failed", "key", key, "error", err)
			continue
		}
		urls = append(urls, strings.TrimSuffix(e.imgReturnBase, "/")+"/i/"+key)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("all result uploads failed")
	}
	return urls, nil
}

func truncateErr(err error) error {
	msg := err.Error()
	if len(msg) > 500 {
		msg = msg[:500]
	}
	return fmt.Errorf("%s", msg)
}
