// Package config loads syncq server configuration.
//
// Resolution order is Default, then an optional JSON or YAML file (Load),
// then SYNCQ_* environment variables (FromEnv), then command-line flags
// applied by the server command. Validate runs last.
//
//	cfg, err := config.Load("/etc/syncq.yaml")
//	if err != nil { ... }
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil { ... }
package config
