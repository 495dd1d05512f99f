package sandbox

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// WorkspacePattern names every per-execution directory
const WorkspacePattern = "execbox-*"

// Workspace is the private directory holding one execution's source file
type Workspace struct {
	Dir        string
	SourceName string
	SourcePath string

	fs      FileSystem
	once    sync.Once
	release error
}

func provisionWorkspace(fs FileSystem, root string, rt Runtime, code string) (*Workspace, error) {
	dir, err := fs.MkdirTemp(root, WorkspacePattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	name := uuid.NewString() + rt.Extension
	path := filepath.Join(dir, name)
	if err := fs.WriteFile(path, []byte(code), rt.FileMode()); err != nil {
		_ = fs.RemoveAll(dir)
		return nil, fmt.Errorf("failed to write source file: %w", err)
	}

	return &Workspace{Dir: dir, SourceName: name, SourcePath: path, fs: fs}, nil
}

// Release removes the workspace. Only the first call does any work.
func (w *Workspace) Release() error {
	w.once.Do(func() {
		w.release = w.fs.RemoveAll(w.Dir)
	})
	return w.release
}
