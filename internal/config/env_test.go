package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvDefaults(t *testing.T) {
	env, err := LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, "info", env.LogLevel)
	assert.Equal(t, "sqlite", env.Type)
	assert.Equal(t, 2*time.Second, env.PollInterval)
	assert.Equal(t, 30*time.Second, env.MaxBackoff)
	assert.Equal(t, 5, env.StoreRetries)
	assert.Equal(t, filepath.Join(".aiorg", "aiorg.db"), env.ResolvedDBPath())
	assert.Equal(t, filepath.Join(".aiorg", "data"), env.ResolvedBaseDir())
	assert.NoError(t, env.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AIORG_STORE", "s3")
	t.Setenv("AIORG_S3_BUCKET", "org-bucket")
	t.Setenv("AIORG_POLL_INTERVAL", "500ms")
	t.Setenv("AIORG_WORKSPACE", "/srv/aiorg")

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "s3", env.Type)
	assert.Equal(t, "org-bucket", env.S3Bucket)
	assert.Equal(t, 500*time.Millisecond, env.PollInterval)
	assert.Equal(t, "/srv/aiorg/projects", filepath.ToSlash(env.ProjectsDir()))
	assert.NoError(t, env.Validate())
}

func TestValidate(t *testing.T) {
	t.Setenv("AIORG_STORE", "s3")
	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Error(t, env.Validate(), "s3 without bucket")

	env.Type = "etcd"
	assert.Error(t, env.Validate())

	env.Type = "memory"
	env.MaxBackoff = time.Millisecond
	assert.Error(t, env.Validate())
}
