// Package workspace manages the scratch directory sdburn writes into:
// downloaded images, generated tool scripts and the last failure report.
package workspace

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	imagesDir      = "images"
	scriptsDir     = "scripts"
	diagnosticFile = "last-failure.log"
)

// Workspace is rooted at a single directory on fs. Everything in it belongs to
// one attempt and is safe to delete.
type Workspace struct {
	fs   afero.Fs
	root string
	log  logrus.FieldLogger
}

// New creates root on fs if needed.
func New(fs afero.Fs, root string, log logrus.FieldLogger) (*Workspace, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace root is empty")
	}
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace %s: %w", root, err)
	}
	return &Workspace{fs: fs, root: root, log: log.WithField("workspace", root)}, nil
}

func (w *Workspace) Fs() afero.Fs {
	return w.fs
}

func (w *Workspace) Root() string {
	return w.root
}

// ImagePath is where a downloaded image called filename is stored.
func (w *Workspace) ImagePath(filename string) string {
	return filepath.Join(w.root, imagesDir, filepath.Base(filename))
}

// EnsureImageDir creates the directory ImagePath points into.
func (w *Workspace) EnsureImageDir() error {
	return w.fs.MkdirAll(filepath.Join(w.root, imagesDir), 0o755)
}

// WriteScript stores content under the scripts directory and returns its path,
// ready to hand to an external tool.
func (w *Workspace) WriteScript(name, content string) (string, error) {
	dir := filepath.Join(w.root, scriptsDir)
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating scripts dir: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(name))
	if err := afero.WriteFile(w.fs, path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing script %s: %w", name, err)
	}
	w.log.WithField("script", path).Debug("wrote script")
	return path, nil
}

// WriteDiagnostic replaces the last failure report.
func (w *Workspace) WriteDiagnostic(category, diagnostic string) (string, error) {
	path := filepath.Join(w.root, diagnosticFile)
	body := fmt.Sprintf("time: %s\ncategory: %s\n\n%s\n", time.Now().UTC().Format(time.RFC3339), category, diagnostic)
	if err := afero.WriteFile(w.fs, path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("writing diagnostic: %w", err)
	}
	return path, nil
}

// ReadDiagnostic returns the last failure report, or "" if there is none.
func (w *Workspace) ReadDiagnostic() (string, error) {
	path := filepath.Join(w.root, diagnosticFile)
	ok, err := afero.Exists(w.fs, path)
	if err != nil || !ok {
		return "", err
	}
	b, err := afero.ReadFile(w.fs, path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Clean removes everything in the workspace but keeps the root.
func (w *Workspace) Clean() error {
	entries, err := afero.ReadDir(w.fs, w.root)
	if err != nil {
		return fmt.Errorf("listing workspace: %w", err)
	}
	for _, e := range entries {
		if err := w.fs.RemoveAll(filepath.Join(w.root, e.Name())); err != nil {
			return fmt.Errorf("removing %s: %w", e.Name(), err)
		}
	}
	w.log.Info("workspace cleaned")
	return nil
}
