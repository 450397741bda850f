package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const workspacePrefix = "unit-"

// Workspace is a scratch directory owned by exactly one content unit.
type Workspace struct {
	Dir string
}

// NewWorkspace creates a fresh directory under root named after runID.
func NewWorkspace(root, runID string) (*Workspace, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	dir, err := os.MkdirTemp(root, workspacePrefix+runID+"-")
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	return &Workspace{Dir: dir}, nil
}

func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

func (w *Workspace) Close() error {
	if w == nil || w.Dir == "" {
		return nil
	}
	return os.RemoveAll(w.Dir)
}

// SweepStale removes workspaces under root last modified before now-olderThan.
// It returns the number of directories removed.
func SweepStale(root string, olderThan time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), workspacePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < olderThan {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// WriteConcatList writes an ffmpeg concat demuxer list that repeats file times times.
func WriteConcatList(path, file string, times int) error {
	if times < 1 {
		return fmt.Errorf("concat list needs at least one entry, got %d", times)
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	line := "file '" + strings.ReplaceAll(abs, "'", `'\''`) + "'\n"
	return os.WriteFile(path, []byte(strings.Repeat(line, times)), 0o644)
}

// Publish copies src to dst through dst.partial and an atomic rename, so dst
// either does not exist or is complete.
func Publish(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp := dst + ".partial"
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// CopyFile is a plain copy used inside a workspace where atomicity is not needed.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
