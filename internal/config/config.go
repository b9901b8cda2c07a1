package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	logpkg "github.com/rzbill/syncq/pkg/log"
)

// Failure policies applied by the engine when a processor reports failure.
const (
	FailurePolicyHalt    = "halt"
	FailurePolicyIsolate = "isolate"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	DataDir  string `json:"dataDir" yaml:"dataDir"`
	HTTPAddr string `json:"httpAddr" yaml:"httpAddr"`
	Fsync    string `json:"fsync" yaml:"fsync" validate:"omitempty,oneof=always interval never"`

	CoalesceWindowMs int64  `json:"coalesceWindowMs" yaml:"coalesceWindowMs" validate:"gte=0"`
	FailurePolicy    string `json:"failurePolicy" yaml:"failurePolicy" validate:"oneof=halt isolate"`
	QueueNameRegex   string `json:"queueNameRegex" yaml:"queueNameRegex"`
	// RequeueInterrupted resets entries left processing by a crashed
	// process back to pending when the runtime starts serving.
	RequeueInterrupted bool `json:"requeueInterrupted" yaml:"requeueInterrupted"`

	// SubscriberBuffer is the per-subscriber event channel capacity.
	SubscriberBuffer int `json:"subscriberBuffer" yaml:"subscriberBuffer" validate:"gte=1"`

	Remote Remote        `json:"remote" yaml:"remote"`
	Log    logpkg.Config `json:"log" yaml:"log"`
}

// Remote configures the upload processor.
type Remote struct {
	BaseURL      string   `json:"baseURL" yaml:"baseURL" validate:"omitempty,url"`
	ArgHeader    string   `json:"argHeader" yaml:"argHeader"`
	PathTemplate string   `json:"pathTemplate" yaml:"pathTemplate"`
	Queues       []string `json:"queues" yaml:"queues"`
	TimeoutMs    int      `json:"timeoutMs" yaml:"timeoutMs" validate:"gte=0"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr:         "127.0.0.1:8787",
		Fsync:            "always",
		CoalesceWindowMs: 300,
		FailurePolicy:    FailurePolicyHalt,
		QueueNameRegex:   `^[a-z0-9][a-z0-9._-]{0,63}$`,
		SubscriberBuffer: 64,
		Remote: Remote{
			BaseURL:      "https://content.dropboxapi.com/2/files/upload",
			ArgHeader:    "Dropbox-API-Arg",
			PathTemplate: "/{queue}-{key}.json",
			TimeoutMs:    30000,
		},
		Log: logpkg.Config{Level: "info", Format: "text"},
	}
}

// Load reads a JSON or YAML file (chosen by extension) over Default. An empty
// path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and that QueueNameRegex compiles.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.QueueNamePattern(); err != nil {
		return err
	}
	return nil
}

// QueueNamePattern compiles QueueNameRegex; an empty regex accepts any name.
func (c Config) QueueNamePattern() (*regexp.Regexp, error) {
	if c.QueueNameRegex == "" {
		return nil, nil
	}
	re, err := regexp.Compile(c.QueueNameRegex)
	if err != nil {
		return nil, fmt.Errorf("config: queueNameRegex: %w", err)
	}
	return re, nil
}
