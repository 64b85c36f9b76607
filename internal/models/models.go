// Package models holds the wire and storage types shared across planes.
package models

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is a control-plane account. Invariant: 0 <= Used <= Quota.
type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	PasswordDigest string    `json:"-"`
	Role           Role      `json:"role"`
	Quota          int64     `json:"quota"`
	Used           int64     `json:"used"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RedeemCode is a one-time credential that grants quota to whoever redeems it.
type RedeemCode struct {
	ID        int64      `json:"id"`
	Code      string     `json:"code"`
	Quota     int64      `json:"quota"`
	Used      bool       `json:"used"`
	UsedBy    *string    `json:"used_by,omitempty"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// HistoryRecord is an append-only log of a user's completed generations.
type HistoryRecord struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Prompt    string          `json:"prompt"`
	ImageURL  string          `json:"image_url"`
	Options   json.RawMessage `json:"options"`
	RefImages json.RawMessage `json:"ref_images"`
	CreatedAt time.Time       `json:"created_at"`
}

// GenerationOptions is the structured form of HistoryRecord.Options / Task.Options.
type GenerationOptions struct {
	AspectRatio string `json:"aspectRatio"`
	ImageSize   string `json:"imageSize"`
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Progress levels are the sole visible states; nothing finer is exposed.
const (
	Progress25  = 25
	Progress50  = 50
	Progress75  = 75
	Progress100 = 100
)

type TaskResult struct {
	URL  string   `json:"url"`
	URLs []string `json:"urls,omitempty"`
}

// Task is a generation job tracked in the KV store with a 24h TTL.
type Task struct {
	TaskID    string            `json:"taskId"`
	Status    TaskStatus        `json:"status"`
	Progress  int               `json:"progress"`
	Prompt    string            `json:"prompt"`
	Options   GenerationOptions `json:"options"`
	RefImages json.RawMessage   `json:"refImages"`
	Result    *TaskResult       `json:"result"`
	Error     *string           `json:"error"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// IsTerminal reports whether the task has reached a status that never changes again.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed
}
