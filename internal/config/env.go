// Package config loads process settings from the environment.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile    string `envconfig:"LOG_FILE" default:""`
	Workspace  string `envconfig:"WORKSPACE" default:".aiorg"`
	OrgFile    string `envconfig:"ORG_FILE" default:""`
	ListenAddr string `envconfig:"LISTEN_ADDR" default:"127.0.0.1:7466"`
}

type StorageEnv struct {
	// Type is one of sqlite, local, s3, memory.
	Type    string `envconfig:"STORE" default:"sqlite"`
	DBPath  string `envconfig:"DB_PATH" default:""`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:""`
	// S3 settings (used when Type == "s3")
	S3Bucket   string `envconfig:"S3_BUCKET"`
	S3Prefix   string `envconfig:"S3_PREFIX" default:"aiorg/"`
	S3Region   string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Endpoint string `envconfig:"S3_ENDPOINT"`
}

type ExecutorEnv struct {
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"2s"`
	MaxBackoff   time.Duration `envconfig:"MAX_BACKOFF" default:"30s"`
	StoreRetries int           `envconfig:"STORE_RETRIES" default:"5"`
}

type Env struct {
	BaseEnv
	StorageEnv
	ExecutorEnv
}

const namespace = "AIORG"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

// ResolvedDBPath defaults the SQLite file into the workspace.
func (e *Env) ResolvedDBPath() string {
	if e.DBPath != "" {
		return e.DBPath
	}
	return filepath.Join(e.Workspace, "aiorg.db")
}

// ResolvedBaseDir defaults the local blob root into the workspace.
func (e *Env) ResolvedBaseDir() string {
	if e.BaseDir != "" {
		return e.BaseDir
	}
	return filepath.Join(e.Workspace, "data")
}

// ProjectsDir is where work functions write project output.
func (e *Env) ProjectsDir() string {
	return filepath.Join(e.Workspace, "projects")
}

// ReportsDir is where monitor reports are written.
func (e *Env) ReportsDir() string {
	return filepath.Join(e.Workspace, "reports")
}

// Validate checks cross-field requirements.
func (e *Env) Validate() error {
	switch e.Type {
	case "sqlite", "local", "memory":
	case "s3":
		if e.S3Bucket == "" {
			return fmt.Errorf("AIORG_S3_BUCKET is required when AIORG_STORE=s3")
		}
	default:
		return fmt.Errorf("unknown store type %q (want sqlite, local, s3 or memory)", e.Type)
	}
	if e.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if e.MaxBackoff < e.PollInterval {
		return fmt.Errorf("max backoff %s is below poll interval %s", e.MaxBackoff, e.PollInterval)
	}
	if e.StoreRetries < 1 {
		return fmt.Errorf("store retries must be at least 1")
	}
	return nil
}
