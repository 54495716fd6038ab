package rabbitmq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildQueueArgs(t *testing.T) {
	tests := []struct {
		name     string
		options  QueueOptions
		expected map[string]interface{}
	}{
		{
			name:     "empty options",
			options:  QueueOptions{},
			expected: map[string]interface{}{},
		},
		{
			name: "quorum queue type",
			options: QueueOptions{
				QueueType: "quorum",
			},
			expected: map[string]interface{}{
				"x-queue-type": "quorum",
			},
		},
		{
			name: "max length rejects overflow",
			options: QueueOptions{
				MaxLength: 1000,
			},
			expected: map[string]interface{}{
				"x-max-length": 1000,
				"x-overflow":   "reject-publish",
			},
		},
		{
			name: "classic queue with TTL",
			options: QueueOptions{
				MessageTTL: 60 * time.Second,
			},
			expected: map[string]interface{}{
				"x-message-ttl": int64(60000),
			},
		},
		{
			name: "quorum queue with everything",
			options: QueueOptions{
				QueueType:  "quorum",
				MaxLength:  10,
				MessageTTL: time.Second,
			},
			expected: map[string]interface{}{
				"x-queue-type":  "quorum",
				"x-max-length":  10,
				"x-overflow":    "reject-publish",
				"x-message-ttl": int64(1000),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := buildQueueArgs(tt.options)

			// Check that all expected keys exist and match
			for k, v := range tt.expected {
				assert.Equal(t, v, args[k], "Value mismatch for key %s", k)
			}

			// Check that no extra keys exist
			assert.Equal(t, len(tt.expected), len(args), "Unexpected number of arguments")
		})
	}
}
