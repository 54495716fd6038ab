package redis

import (
	"time"

	redisUtils "github.com/BranchIntl/gobroker/internal/redis"
)

// Options for Redis statistics
type Options struct {
	redisUtils.Options

	// Namespace is the key prefix in Redis
	Namespace string

	// PendingTTL expires pending:<id> keys for requests that never complete
	PendingTTL time.Duration
}

// DefaultOptions returns default Redis statistics options
func DefaultOptions() Options {
	return Options{
		Options:    redisUtils.DefaultOptions(),
		Namespace:  "gobroker:",
		PendingTTL: 24 * time.Hour,
	}
}
