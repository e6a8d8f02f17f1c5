package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemFSReadWrite(t *testing.T) {
	ctx := context.Background()
	fs := NewMemFS(map[string]string{"notes/a.txt": "alpha"})

	got, err := fs.ReadBytes(ctx, "notes/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "alpha", got)

	require.NoError(t, fs.WriteBytes(ctx, "notes/b.txt", "beta"))
	body, ok := fs.File("notes/b.txt")
	assert.True(t, ok)
	assert.Equal(t, "beta", body)

	_, err = fs.ReadBytes(ctx, "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = fs.ReadBytes(ctx, "notes")
	assert.ErrorIs(t, err, ErrIsDirectory)
}

func TestMemFSFailureInjection(t *testing.T) {
	ctx := context.Background()
	fs := NewMemFS(map[string]string{"a.txt": "x"})
	fs.FailReads = 2

	_, err := fs.ReadBytes(ctx, "a.txt")
	assert.ErrorIs(t, err, ErrTransient)
	_, err = fs.ReadBytes(ctx, "a.txt")
	assert.ErrorIs(t, err, ErrTransient)
	got, err := fs.ReadBytes(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", got)
	assert.Equal(t, 3, fs.Reads())
}

func TestResolvePath(t *testing.T) {
	fs := NewMemFS(nil)

	tests := []struct {
		name    string
		rel     string
		want    Ref
		wantErr error
	}{
		{name: "simple", rel: "src/main.go", want: "src/main.go"},
		{name: "cleaned", rel: "src/../README.md", want: "README.md"},
		{name: "escape", rel: "../etc/passwd", wantErr: ErrOutsideWorkspace},
		{name: "absolute", rel: "/etc/passwd", wantErr: ErrOutsideWorkspace},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fs.ResolvePath("", tt.rel)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderTree(t *testing.T) {
	fs := NewMemFS(map[string]string{
		"README.md":        "",
		"src/main.go":      "",
		"src/util/util.go": "",
		"go.mod":           "",
	})

	tree, err := fs.ListTree(context.Background(), "")
	require.NoError(t, err)

	want := "src/\n" +
		"  util/\n" +
		"    util.go\n" +
		"  main.go\n" +
		"README.md\n" +
		"go.mod"
	assert.Equal(t, want, RenderTree(tree))
	assert.Equal(t, "", RenderTree(nil))
}

func TestOSFileSystem(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkg", "a.go"), []byte("package pkg"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref"), 0644))

	fs, err := NewOSFileSystem(dir)
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := fs.ResolvePath(fs.Root(), "pkg/a.go")
	require.NoError(t, err)
	got, err := fs.ReadBytes(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "package pkg", got)

	out, err := fs.ResolvePath(fs.Root(), "new/b.txt")
	require.NoError(t, err)
	require.NoError(t, fs.WriteBytes(ctx, out, "b"))
	data, err := os.ReadFile(filepath.Join(dir, "new", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))

	_, err = fs.ResolvePath(fs.Root(), "../outside")
	assert.ErrorIs(t, err, ErrOutsideWorkspace)

	missing, err := fs.ResolvePath(fs.Root(), "nope.txt")
	require.NoError(t, err)
	_, err = fs.ReadBytes(ctx, missing)
	assert.ErrorIs(t, err, ErrNotFound)

	tree, err := fs.ListTree(ctx, fs.Root())
	require.NoError(t, err)
	assert.Equal(t, "new/\n  b.txt\npkg/\n  a.go", RenderTree(tree))
}

func TestOSFileSystemRefusesSymlinksOutOfRoot(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("secret"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inside.txt"), []byte("inside"), 0644))
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(dir, "leak.txt")))
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "leakdir")))
	require.NoError(t, os.Symlink(filepath.Join(outside, "missing.txt"), filepath.Join(dir, "dangling.txt")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "inside.txt"), filepath.Join(dir, "alias.txt")))

	fs, err := NewOSFileSystem(dir)
	require.NoError(t, err)
	ctx := context.Background()

	for _, rel := range []string{"leak.txt", "leakdir/secret.txt", "leakdir/new.txt", "dangling.txt"} {
		_, err := fs.ResolvePath(fs.Root(), rel)
		assert.ErrorIs(t, err, ErrOutsideWorkspace, rel)
	}
	_, err = fs.ReadBytes(ctx, Ref(filepath.Join(dir, "leak.txt")))
	assert.ErrorIs(t, err, ErrOutsideWorkspace)
	assert.ErrorIs(t, fs.WriteBytes(ctx, Ref(filepath.Join(dir, "dangling.txt")), "x"), ErrOutsideWorkspace)
	_, err = os.Stat(filepath.Join(outside, "missing.txt"))
	assert.True(t, os.IsNotExist(err))

	alias, err := fs.ResolvePath(fs.Root(), "alias.txt")
	require.NoError(t, err)
	got, err := fs.ReadBytes(ctx, alias)
	require.NoError(t, err)
	assert.Equal(t, "inside", got)
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(ErrNotFound))
	assert.True(t, IsPermanent(context.Canceled))
	assert.False(t, IsPermanent(ErrTransient))
	assert.False(t, IsPermanent(errors.New("disk hiccup")))
}

func TestContentCacheReadThrough(t *testing.T) {
	ctx := context.Background()
	fs := NewMemFS(map[string]string{"a.txt": "cached"})
	cache := NewContentCache(2)

	for i := 0; i < 3; i++ {
		got, err := cache.CachedRead(ctx, "a.txt", fs.ReadBytes)
		require.NoError(t, err)
		assert.Equal(t, "cached", got)
	}
	assert.Equal(t, 1, fs.Reads())

	cache.Invalidate("a.txt")
	_, err := cache.CachedRead(ctx, "a.txt", fs.ReadBytes)
	require.NoError(t, err)
	assert.Equal(t, 2, fs.Reads())
}

func TestContentCacheEviction(t *testing.T) {
	cache := NewContentCache(2)
	cache.Put("a", "1")
	cache.Put("b", "2")
	cache.Put("c", "3")

	assert.Equal(t, 2, cache.Len())
	_, ok := cache.Get("a")
	assert.False(t, ok)

	cache.Purge()
	assert.Equal(t, 0, cache.Len())

	var nilCache *ContentCache
	_, ok = nilCache.Get("a")
	assert.False(t, ok)
}

func TestWatcherInvalidatesOnWrite(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "watched.txt")
	require.NoError(t, os.WriteFile(file, []byte("v1"), 0644))

	changed := make(chan Ref, 16)
	w, err := NewWatcher(dir, func(ref Ref) { changed <- ref })
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(file, []byte("v2"), 0644))

	select {
	case ref := <-changed:
		assert.Equal(t, Ref(filepath.Clean(file)), ref)
	case <-time.After(5 * time.Second):
		t.Fatal("no change event received")
	}

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
