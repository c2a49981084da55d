package service

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

const (
	transformationLogName = "transformation.log"
	reportsLogName        = "reports.log"
)

// Scratch holds the per-job working directory and its two sink files.
// Release removes all of them; it runs its cleanup at most once.
type Scratch struct {
	Dir         string
	LogFile     *os.File
	ReportsPath string

	once    sync.Once
	err     error
	release func() error
}

// Release closes the transformation log and removes the working directory.
func (s *Scratch) Release() error {
	s.once.Do(func() {
		if s.release != nil {
			s.err = s.release()
		}
	})
	return s.err
}

// Workspace hands out scratch resources for jobs.
type Workspace interface {
	Acquire(jobID string) (*Scratch, error)
}

// TempWorkspace creates scratch directories below Root, or the system temp
// directory when Root is empty.
type TempWorkspace struct {
	Root string
}

// Acquire creates the working directory, the transformation log and an empty
// reports log. Partially created resources are removed on failure.
func (w TempWorkspace) Acquire(jobID string) (*Scratch, error) {
	if w.Root != "" {
		if err := os.MkdirAll(w.Root, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create work dir: %w", err)
		}
	}

	dir, err := os.MkdirTemp(w.Root, "transformation-"+jobID+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}

	logFile, err := os.Create(filepath.Join(dir, transformationLogName))
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to create transformation log: %w", err)
	}

	reportsPath := filepath.Join(dir, reportsLogName)
	if err := os.WriteFile(reportsPath, nil, 0o644); err != nil {
		_ = logFile.Close()
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to create reports log: %w", err)
	}

	return &Scratch{
		Dir:         dir,
		LogFile:     logFile,
		ReportsPath: reportsPath,
		release: func() error {
			return errors.Join(logFile.Close(), os.RemoveAll(dir))
		},
	}, nil
}

// moveFile renames src to dst, copying when a rename across devices fails.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

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
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
