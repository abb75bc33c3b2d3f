package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fentz26/aiorg/internal/config"
	"github.com/fentz26/aiorg/internal/notify"
	"github.com/fentz26/aiorg/internal/storage"
	"github.com/fentz26/aiorg/internal/store"
	"github.com/fentz26/aiorg/internal/store/blobstore"
	"github.com/fentz26/aiorg/internal/store/memstore"
	"github.com/fentz26/aiorg/internal/store/sqlite"
)

// openBackend opens the store selected by env.
func openBackend(ctx context.Context, env *config.Env) (store.Backend, error) {
	switch env.Type {
	case "sqlite":
		st, err := sqlite.New(env.ResolvedDBPath())
		if err != nil {
			return nil, err
		}
		return st, nil
	case "local":
		st, err := storage.NewLocalStorage(env.ResolvedBaseDir())
		if err != nil {
			return nil, err
		}
		return blobstore.New(st), nil
	case "s3":
		st, err := storage.NewS3Storage(ctx, storage.S3Options{
			Bucket:   env.S3Bucket,
			Prefix:   env.S3Prefix,
			Region:   env.S3Region,
			Endpoint: env.S3Endpoint,
		})
		if err != nil {
			return nil, err
		}
		return blobstore.New(st), nil
	case "memory":
		return memstore.New(), nil
	}
	return nil, fmt.Errorf("unknown store type %q", env.Type)
}

// watchBackend returns a change watcher for file-backed stores, or nil when
// executors must rely on polling alone.
func watchBackend(env *config.Env) (*notify.Watcher, error) {
	switch env.Type {
	case "sqlite":
		return notify.Watch(filepath.Dir(env.ResolvedDBPath()))
	case "local":
		return notify.Watch(env.ResolvedBaseDir())
	}
	return nil, nil
}
