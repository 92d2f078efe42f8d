package recorder

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/afero"
)

// CommandFixture pins the result of one RunCommand call. Fixtures are
// consumed in invocation order and checked against the command name only;
// Args records the expected arguments but is not compared.
type CommandFixture struct {
	Name     string
	Args     []string
	Result   CommandResult
	Err      error
}

// Fixture seeds a replay Environment: an initial in-memory filesystem
// snapshot, a fixed clock, and a scripted sequence of command outcomes.
type Fixture struct {
	Files   map[string][]byte
	Now     time.Time
	Env     map[string]string
	Commands []CommandFixture
}

// replayEnvironment is the deterministic, fixture-backed Environment used in
// tests. It never touches the real OS.
type replayEnvironment struct {
	fs       afero.Fs
	now      time.Time
	env      map[string]string
	commands []CommandFixture
	cursor   int
}

// NewReplay builds an Environment from a Fixture.
func NewReplay(f Fixture) Environment {
	fs := afero.NewMemMapFs()
	for path, data := range f.Files {
		_ = afero.WriteFile(fs, path, data, 0o644)
	}
	env := make(map[string]string, len(f.Env))
	for k, v := range f.Env {
		env[k] = v
	}
	return &replayEnvironment{
		fs:       fs,
		now:      f.Now,
		env:      env,
		commands: f.Commands,
	}
}

func (e *replayEnvironment) ReadFile(path string) ([]byte, bool, error) {
	exists, err := afero.Exists(e.fs, path)
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, nil
	}
	data, err := afero.ReadFile(e.fs, path)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (e *replayEnvironment) WriteFile(path string, data []byte) error {
	if err := e.fs.MkdirAll(dirOf(path), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(e.fs, path, data, 0o644)
}

func (e *replayEnvironment) Remove(path string) error {
	err := e.fs.Remove(path)
	if err != nil && !isNotExist(err) {
		return err
	}
	return nil
}

func (e *replayEnvironment) MkdirAll(path string) error {
	return e.fs.MkdirAll(path, 0o755)
}

func (e *replayEnvironment) ReadDir(path string) ([]DirEntry, error) {
	entries, err := afero.ReadDir(e.fs, path)
	if err != nil {
		return nil, err
	}
	out := make([]DirEntry, 0, len(entries))
	for _, ent := range entries {
		out = append(out, DirEntry{Name: ent.Name(), IsDir: ent.IsDir()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (e *replayEnvironment) Stat(path string) (FileInfo, bool, error) {
	info, err := e.fs.Stat(path)
	if err != nil {
		if isNotExist(err) {
			return FileInfo{}, false, nil
		}
		return FileInfo{}, false, err
	}
	return FileInfo{ModTime: info.ModTime(), Size: info.Size()}, true, nil
}

// RunCommand returns the next scripted CommandFixture in sequence. Only the
// command name is checked against the fixture (args are not compared), so a
// test fails loudly when its command order drifts from the recording.
func (e *replayEnvironment) RunCommand(_ context.Context, name string, args ...string) (CommandResult, error) {
	if e.cursor >= len(e.commands) {
		return CommandResult{}, fmt.Errorf("replay: no more scripted commands, got %s %v", name, args)
	}
	fixture := e.commands[e.cursor]
	e.cursor++
	if fixture.Name != name {
		return CommandResult{}, fmt.Errorf("replay: expected command %q, got %q", fixture.Name, name)
	}
	return fixture.Result, fixture.Err
}

func (e *replayEnvironment) Now() time.Time {
	return e.now
}

func (e *replayEnvironment) Getenv(key string) (string, bool) {
	v, ok := e.env[key]
	return v, ok
}

func (e *replayEnvironment) Setenv(key, value string) error {
	e.env[key] = value
	return nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

func isNotExist(err error) bool {
	return os.IsNotExist(err)
}
