// Package workspace is the file collaborator the document model and the tool
// dispatcher read and write through.
//
// A Ref is an opaque handle to a file. Only the FileSystem that produced a
// Ref knows how to resolve it; callers treat it as a token.
package workspace

import (
	"context"
	"errors"
)

var (
	ErrNotFound         = errors.New("file not found")
	ErrOutsideWorkspace = errors.New("path escapes workspace root")
	ErrIsDirectory      = errors.New("path is a directory")
)

// Ref is an opaque file handle.
type Ref string

// NodeKind distinguishes files from directories in a tree listing.
type NodeKind string

const (
	KindFile      NodeKind = "file"
	KindDirectory NodeKind = "directory"
)

// Node is one entry of a workspace tree. Path is relative to the tree root
// using forward slashes.
type Node struct {
	Name     string   `json:"name"`
	Kind     NodeKind `json:"kind"`
	Path     string   `json:"path"`
	Children []*Node  `json:"children,omitempty"`
}

// FileSystem is the contract the core requires from the workspace.
type FileSystem interface {
	// ReadBytes returns the text content of ref.
	ReadBytes(ctx context.Context, ref Ref) (string, error)
	// WriteBytes replaces the content of ref.
	WriteBytes(ctx context.Context, ref Ref, text string) error
	// ListTree returns the full file/directory tree below ref.
	ListTree(ctx context.Context, ref Ref) (*Node, error)
	// ResolvePath turns a root-relative path into a Ref.
	ResolvePath(root Ref, relativePath string) (Ref, error)
}

// IsPermanent reports whether err will not go away by retrying.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrOutsideWorkspace) ||
		errors.Is(err, ErrIsDirectory) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
