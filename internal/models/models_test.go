package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"imagegateway/internal/models"
)

func TestTask_IsTerminal(t *testing.T) {
	cases := []struct {
		status models.TaskStatus
		want   bool
	}{
		{models.TaskPending, false},
		{models.TaskProcessing, false},
		{models.TaskCompleted, true},
		{models.TaskFailed, true},
	}
	for _, tc := range cases {
		task := &models.Task{Status: tc.status}
		assert.Equal(t, tc.want, task.IsTerminal(), "status %s", tc.status)
	}
}
