package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/replayio/devtools-sub005/internal/inspector/value"
)

func TestWatcherReloadsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "live.yaml")
	require.NoError(t, SaveFile(path, sample()))

	snap, err := LoadFile(path)
	require.NoError(t, err)
	store := NewStore(snap)

	w, err := Watch(context.Background(), path, store, nil)
	require.NoError(t, err)

	next := sample()
	next.Roots["added"] = value.String("later")
	require.NoError(t, SaveFile(path, next))

	assert.Eventually(t, func() bool {
		_, err := store.Evaluate(context.Background(), "added")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, w.Close())
}

func TestWatcherKeepsSnapshotOnBadFile(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "live.json")
	require.NoError(t, SaveFile(path, sample()))
	store := NewStore(sample())

	w, err := Watch(context.Background(), path, store, nil)
	require.NoError(t, err)
	defer w.Close()

	w.reload()
	_, err = store.Evaluate(context.Background(), "data")
	require.NoError(t, err)

	// a corrupt file is logged and ignored
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	w.reload()
	_, err = store.Evaluate(context.Background(), "data")
	assert.NoError(t, err)
}
