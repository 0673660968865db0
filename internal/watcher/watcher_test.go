package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherNotifiesOnWrite(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(f, []byte("1"), 0o644))

	w, err := New(dir)
	require.NoError(t, err)
	defer w.Stop()

	got := make(chan string, 1)
	w.OnChange(func(path string) {
		select {
		case got <- path:
		default:
		}
	})
	require.NoError(t, w.Start())
	// Start's sweep has already reported the pre-existing file; drop that
	// so the path received below comes from the write.
	select {
	case <-got:
	default:
	}

	require.NoError(t, os.WriteFile(f, []byte("2"), 0o644))

	select {
	case path := <-got:
		require.Equal(t, f, path)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not notify on write")
	}
}

func TestStartSweepsPreExistingFilesAndDirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "existing-dir")
	require.NoError(t, os.Mkdir(sub, 0o755))
	f := filepath.Join(dir, "existing-file.txt")
	require.NoError(t, os.WriteFile(f, []byte("1"), 0o644))
	nested := filepath.Join(sub, "nested.txt")
	require.NoError(t, os.WriteFile(nested, []byte("1"), 0o644))

	w, err := New(dir)
	require.NoError(t, err)
	defer w.Stop()

	var mu sync.Mutex
	seen := make(map[string]bool)
	w.OnChange(func(path string) {
		mu.Lock()
		seen[path] = true
		mu.Unlock()
	})
	require.NoError(t, w.Start())

	mu.Lock()
	defer mu.Unlock()
	require.True(t, seen[sub], "sweep must notify for a pre-existing directory")
	require.True(t, seen[f], "sweep must notify for a pre-existing file")
	require.True(t, seen[nested], "sweep must notify for a pre-existing nested file")
}

func TestWatcherWatchesNewSubdirectories(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	require.NoError(t, err)
	defer w.Stop()

	sub := filepath.Join(dir, "child")
	nested := filepath.Join(sub, "b.txt")

	// Only the nested file counts: the new directory's own create event
	// would arrive even if the directory were never watched.
	got := make(chan string, 1)
	w.OnChange(func(path string) {
		if path != nested {
			return
		}
		select {
		case got <- path:
		default:
		}
	})
	require.NoError(t, w.Start())

	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(100 * time.Millisecond) // let the watcher pick up the new dir

	require.NoError(t, os.WriteFile(nested, []byte("x"), 0o644))

	select {
	case path := <-got:
		require.Equal(t, nested, path)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not notify on nested write")
	}
}
