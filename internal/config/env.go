package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays SYNCQ_* environment variables onto cfg. Unparseable
// numbers and booleans are ignored.
func FromEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("SYNCQ_DATA_DIR", &cfg.DataDir)
	str("SYNCQ_HTTP_ADDR", &cfg.HTTPAddr)
	str("SYNCQ_FSYNC", &cfg.Fsync)
	if v := os.Getenv("SYNCQ_COALESCE_WINDOW_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.CoalesceWindowMs = n
		}
	}
	str("SYNCQ_FAILURE_POLICY", &cfg.FailurePolicy)
	str("SYNCQ_QUEUE_NAME_REGEX", &cfg.QueueNameRegex)
	num("SYNCQ_SUBSCRIBER_BUFFER", &cfg.SubscriberBuffer)
	if v := os.Getenv("SYNCQ_REQUEUE_INTERRUPTED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RequeueInterrupted = b
		}
	}

	str("SYNCQ_REMOTE_BASE_URL", &cfg.Remote.BaseURL)
	str("SYNCQ_REMOTE_ARG_HEADER", &cfg.Remote.ArgHeader)
	str("SYNCQ_REMOTE_PATH_TEMPLATE", &cfg.Remote.PathTemplate)
	num("SYNCQ_REMOTE_TIMEOUT_MS", &cfg.Remote.TimeoutMs)
	if v := os.Getenv("SYNCQ_REMOTE_QUEUES"); v != "" {
		cfg.Remote.Queues = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Remote.Queues = append(cfg.Remote.Queues, p)
			}
		}
	}

	str("SYNCQ_LOG_LEVEL", &cfg.Log.Level)
	str("SYNCQ_LOG_FORMAT", &cfg.Log.Format)
	str("SYNCQ_LOG_FILE", &cfg.Log.File)
}
