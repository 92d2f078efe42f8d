package recorder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// liveEnvironment is the real-filesystem, real-process implementation of
// Environment, backed by afero.NewOsFs() so it shares one Fs-shaped
// interface with any future in-memory callers.
type liveEnvironment struct {
	fs afero.Fs
}

// NewLive returns the production Environment.
func NewLive() Environment {
	return &liveEnvironment{fs: afero.NewOsFs()}
}

func (e *liveEnvironment) ReadFile(path string) ([]byte, bool, error) {
	data, err := afero.ReadFile(e.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// WriteFile writes to a temp file in the same directory as path and renames
// it into place, so a concurrent reader never observes a partial write
// (§5 shared-resource policy).
func (e *liveEnvironment) WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := e.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%s", filepath.Base(path), uuid.NewString()))
	if err := afero.WriteFile(e.fs, tmp, data, 0o644); err != nil {
		return err
	}
	if err := e.fs.Rename(tmp, path); err != nil {
		_ = e.fs.Remove(tmp)
		return err
	}
	return nil
}

func (e *liveEnvironment) Remove(path string) error {
	err := e.fs.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (e *liveEnvironment) MkdirAll(path string) error {
	return e.fs.MkdirAll(path, 0o755)
}

func (e *liveEnvironment) ReadDir(path string) ([]DirEntry, error) {
	entries, err := afero.ReadDir(e.fs, path)
	if err != nil {
		return nil, err
	}
	out := make([]DirEntry, 0, len(entries))
	for _, ent := range entries {
		out = append(out, DirEntry{Name: ent.Name(), IsDir: ent.IsDir()})
	}
	return out, nil
}

func (e *liveEnvironment) Stat(path string) (FileInfo, bool, error) {
	info, err := e.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, false, nil
		}
		return FileInfo{}, false, err
	}
	return FileInfo{ModTime: info.ModTime(), Size: info.Size()}, true, nil
}

func (e *liveEnvironment) RunCommand(ctx context.Context, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			runErr = nil
		}
	}
	return CommandResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}, runErr
}

func (e *liveEnvironment) Now() time.Time {
	return time.Now().UTC()
}

func (e *liveEnvironment) Getenv(key string) (string, bool) {
	return os.LookupEnv(key)
}

func (e *liveEnvironment) Setenv(key, value string) error {
	return os.Setenv(key, value)
}
