// Package kv is the task-progress store: a thin Redis wrapper keyed as
// task:<id> with a fixed 24h TTL per task.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"imagegateway/internal/models"
)

const taskTTL = 24 * time.Hour

var ErrNotFound = errors.New("task not found")

type TaskStore struct {
	client *redis.Client
}

func New(redisURL string) (*TaskStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &TaskStore{client: client}, nil
}

func (t *TaskStore) Close() error {
	return t.client.Close()
}

func taskKey(id string) string {
	return "task:" + id
}

func (t *TaskStore) Put(ctx context.Context, task *models.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	if err := t.client.Set(ctx, taskKey(task.TaskID), payload, taskTTL).Err(); err != nil {
		return fmt.Errorf("failed to write task: %w", err)
	}
	return nil
}

func (t *TaskStore) Get(ctx context.Context, taskID string) (*models.Task, error) {
	raw, err := t.client.Get(ctx, taskKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read task: %w", err)
	}
	var task models.Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// Update re-stores a task after mutation, refreshing its TTL.
func (t *TaskStore) Update(ctx context.Context, task *models.Task) error {
	task.UpdatedAt = time.Now()
	return t.Put(ctx, task)
}

func (t *TaskStore) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}
