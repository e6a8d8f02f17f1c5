package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"agentedit/config"
)

// ignoredDirs are skipped when listing a workspace tree.
var ignoredDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	".idea":        true,
	".vscode":      true,
	".cache":       true,
	"vendor":       true,
	"dist":         true,
}

// OSFileSystem serves a directory on the local disk. Refs it produces are
// absolute, cleaned paths inside root.
type OSFileSystem struct {
	root string
}

// NewOSFileSystem creates a file system rooted at dir.
func NewOSFileSystem(dir string) (*OSFileSystem, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s: %w", abs, errNotDirectory)
	}
	return &OSFileSystem{root: abs}, nil
}

var errNotDirectory = errors.New("not a directory")

// Root returns the Ref of the workspace root directory.
func (o *OSFileSystem) Root() Ref {
	return Ref(o.root)
}

func (o *OSFileSystem) ReadBytes(ctx context.Context, ref Ref) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := o.contained(string(ref))
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", translateErr(path, err)
	}
	return string(data), nil
}

func (o *OSFileSystem) WriteBytes(ctx context.Context, ref Ref, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := o.contained(string(ref))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return translateErr(path, err)
	}
	return nil
}

func (o *OSFileSystem) ListTree(ctx context.Context, ref Ref) (*Node, error) {
	base, err := o.contained(string(ref))
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(base)
	if err != nil {
		return nil, translateErr(base, err)
	}
	if !info.IsDir() {
		return &Node{Name: info.Name(), Kind: KindFile, Path: info.Name()}, nil
	}

	root := &Node{Name: filepath.Base(base), Kind: KindDirectory, Path: "."}
	if err := o.walk(ctx, base, base, root); err != nil {
		return nil, err
	}
	return root, nil
}

func (o *OSFileSystem) walk(ctx context.Context, base, dir string, parent *Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		// Unreadable subdirectories are listed empty
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Workspace] Skipping unreadable directory %s: %v", dir, err)
		}
		return nil
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() && ignoredDirs[entry.Name()] {
			continue
		}
		full := filepath.Join(dir, entry.Name())
		rel, err := filepath.Rel(base, full)
		if err != nil {
			continue
		}
		node := &Node{Name: entry.Name(), Kind: KindFile, Path: filepath.ToSlash(rel)}
		if entry.IsDir() {
			node.Kind = KindDirectory
			if err := o.walk(ctx, base, full, node); err != nil {
				return err
			}
		}
		parent.Children = append(parent.Children, node)
	}
	return nil
}

func (o *OSFileSystem) ResolvePath(root Ref, relativePath string) (Ref, error) {
	base := string(root)
	if base == "" {
		base = o.root
	}
	rel := filepath.FromSlash(strings.TrimSpace(relativePath))
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%s: %w", relativePath, ErrOutsideWorkspace)
	}
	path, err := o.contained(filepath.Join(base, rel))
	if err != nil {
		return "", err
	}
	return Ref(path), nil
}

// contained cleans path and verifies it stays within the workspace root,
// both as written and after following symlinks.
func (o *OSFileSystem) contained(path string) (string, error) {
	clean := filepath.Clean(path)
	if !o.within(clean) {
		return "", fmt.Errorf("%s: %w", path, ErrOutsideWorkspace)
	}
	resolved, err := resolveExisting(clean)
	if err != nil {
		return "", translateErr(clean, err)
	}
	if !o.within(resolved) {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Workspace] Refusing %s: resolves to %s", clean, resolved)
		}
		return "", fmt.Errorf("%s: %w", path, ErrOutsideWorkspace)
	}
	return clean, nil
}

func (o *OSFileSystem) within(path string) bool {
	rel, err := filepath.Rel(o.root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolveExisting follows symlinks through the longest existing prefix of
// path and re-appends the missing tail. A dangling symlink resolves to
// errDanglingLink since writing through it could land anywhere.
func resolveExisting(path string) (string, error) {
	existing, tail := path, ""
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			return filepath.Join(resolved, tail), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		if _, lerr := os.Lstat(existing); lerr == nil {
			return "", errDanglingLink
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return path, nil
		}
		tail = filepath.Join(filepath.Base(existing), tail)
		existing = parent
	}
}

var errDanglingLink = fmt.Errorf("dangling symlink: %w", ErrOutsideWorkspace)

func translateErr(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	case isDirErr(path):
		return fmt.Errorf("%s: %w", path, ErrIsDirectory)
	default:
		return fmt.Errorf("%s: %w", path, err)
	}
}

func isDirErr(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
