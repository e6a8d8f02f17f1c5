package workspace

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// ErrTransient is returned by MemFS when a simulated I/O failure is injected.
var ErrTransient = errors.New("transient I/O failure")

// MemFS is an in-memory FileSystem. Refs are slash-separated paths relative
// to the root (the root itself is "").
//
// FailReads and FailWrites inject that many transient failures before
// operations start succeeding, which lets callers exercise retry paths.
type MemFS struct {
	mu     sync.Mutex
	files  map[Ref]string
	reads  int
	writes int

	FailReads  int
	FailWrites int
}

// NewMemFS creates a MemFS seeded with files (path → content).
func NewMemFS(files map[string]string) *MemFS {
	m := &MemFS{files: make(map[Ref]string, len(files))}
	for p, content := range files {
		m.files[Ref(path.Clean(p))] = content
	}
	return m
}

// Reads returns how many read attempts reached the file system.
func (m *MemFS) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Writes returns how many write attempts reached the file system.
func (m *MemFS) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// File returns the stored content of p.
func (m *MemFS) File(p string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[Ref(path.Clean(p))]
	return content, ok
}

func (m *MemFS) ReadBytes(ctx context.Context, ref Ref) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.FailReads > 0 {
		m.FailReads--
		return "", ErrTransient
	}
	content, ok := m.files[ref]
	if !ok {
		if m.isDir(ref) {
			return "", fmt.Errorf("%s: %w", ref, ErrIsDirectory)
		}
		return "", fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	return content, nil
}

func (m *MemFS) WriteBytes(ctx context.Context, ref Ref, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.FailWrites > 0 {
		m.FailWrites--
		return ErrTransient
	}
	m.files[ref] = text
	return nil
}

func (m *MemFS) ListTree(ctx context.Context, ref Ref) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := strings.Trim(string(ref), "/")
	if prefix == "." {
		prefix = ""
	}
	name := path.Base(prefix)
	if prefix == "" {
		name = "."
	}
	root := &Node{Name: name, Kind: KindDirectory, Path: "."}

	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		s := string(p)
		if prefix != "" {
			if !strings.HasPrefix(s, prefix+"/") {
				continue
			}
			s = strings.TrimPrefix(s, prefix+"/")
		}
		paths = append(paths, s)
	}
	sort.Strings(paths)

	dirs := map[string]*Node{"": root}
	for _, p := range paths {
		parts := strings.Split(p, "/")
		parent := root
		for i := range parts {
			sub := strings.Join(parts[:i+1], "/")
			if i == len(parts)-1 {
				parent.Children = append(parent.Children, &Node{Name: parts[i], Kind: KindFile, Path: sub})
				break
			}
			dir, ok := dirs[sub]
			if !ok {
				dir = &Node{Name: parts[i], Kind: KindDirectory, Path: sub}
				dirs[sub] = dir
				parent.Children = append(parent.Children, dir)
			}
			parent = dir
		}
	}
	sortTree(root)
	return root, nil
}

func (m *MemFS) ResolvePath(root Ref, relativePath string) (Ref, error) {
	rel := strings.TrimSpace(relativePath)
	if strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("%s: %w", relativePath, ErrOutsideWorkspace)
	}
	joined := path.Clean(path.Join(string(root), rel))
	if joined == ".." || strings.HasPrefix(joined, "../") {
		return "", fmt.Errorf("%s: %w", relativePath, ErrOutsideWorkspace)
	}
	return Ref(joined), nil
}

func (m *MemFS) isDir(ref Ref) bool {
	prefix := string(ref) + "/"
	for p := range m.files {
		if strings.HasPrefix(string(p), prefix) {
			return true
		}
	}
	return false
}

// sortTree orders directories before files, then by name.
func sortTree(n *Node) {
	sort.Slice(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.Kind != b.Kind {
			return a.Kind == KindDirectory
		}
		return a.Name < b.Name
	})
	for _, c := range n.Children {
		if c.Kind == KindDirectory {
			sortTree(c)
		}
	}
}
