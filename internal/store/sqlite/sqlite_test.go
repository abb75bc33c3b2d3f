package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/aiorg/internal/models"
	"github.com/fentz26/aiorg/internal/store"
	"github.com/fentz26/aiorg/internal/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "New")
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	s, err := New(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created")
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Backend {
		return newTestStore(t)
	})
}

// Two handles on one file stand in for two agent processes.
func TestSharedFileAcrossHandles(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "shared.db")

	a, err := New(dbPath)
	require.NoError(t, err)
	defer a.Close()
	b, err := New(dbPath)
	require.NoError(t, err)
	defer b.Close()

	task := storetest.NewTask("shared", "p", "ai-qa", models.PriorityHigh, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, a.CreateTask(ctx, task))

	viaA, err := a.GetTask(ctx, "shared")
	require.NoError(t, err)
	viaB, err := b.GetTask(ctx, "shared")
	require.NoError(t, err)

	require.NoError(t, viaA.Claim(viaA.CreatedAt))
	require.NoError(t, viaB.Claim(viaB.CreatedAt))

	require.NoError(t, a.UpdateTask(ctx, viaA, viaA.Version))
	assert.ErrorIs(t, b.UpdateTask(ctx, viaB, viaB.Version), store.ErrConflict)
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.migrate())
	require.NoError(t, s.migrate())
}
