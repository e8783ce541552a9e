// Package shell provides the process executor and the shell task kind.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Executor = (*Executor)(nil)

// Executor implements ports.Executor using os/exec.
type Executor struct {
	logger ports.Logger
}

// NewExecutor creates a new Executor.
func NewExecutor(logger ports.Logger) *Executor {
	return &Executor{
		logger: logger,
	}
}

// Execute runs cmd with the process environment plus cmd.Env. Output goes to the
// writers of cmd, else to the vertex carried by ctx, else to the logger line by
// line. Cancelling ctx kills the process.
func (e *Executor) Execute(ctx context.Context, cmd ports.Command) (int, error) {
	if len(cmd.Args) == 0 {
		return 0, nil
	}

	name := cmd.Args[0]
	env := resolveEnvironment(os.Environ(), cmd.Env)

	// Resolve the executable against the PATH of the new environment.
	executable := name
	if !filepath.IsAbs(name) && !strings.ContainsRune(name, filepath.Separator) {
		if lp, err := lookPath(name, env); err == nil {
			executable = lp
		}
	}

	c := exec.CommandContext(ctx, executable, cmd.Args[1:]...) //nolint:gosec // user provided command
	c.Args[0] = name
	c.Dir = cmd.Dir
	c.Env = env

	stdout, stderr := cmd.Stdout, cmd.Stderr
	if vertex, ok := ports.VertexFromContext(ctx); ok {
		if stdout == nil {
			stdout = vertex.Stdout()
		}
		if stderr == nil {
			stderr = vertex.Stderr()
		}
	}
	if stdout == nil {
		lw := &logWriter{log: func(line string) { e.logger.Info(line) }}
		defer lw.Flush()
		stdout = lw
	}
	if stderr == nil {
		lw := &logWriter{log: func(line string) { e.logger.Warn(line) }}
		defer lw.Flush()
		stderr = lw
	}
	c.Stdout = stdout
	c.Stderr = stderr

	e.logger.Debug("exec: " + strings.Join(cmd.Args, " "))
	err := c.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ctx.Err() != nil {
			return exitErr.ExitCode(), zerr.With(zerr.Wrap(context.Cause(ctx), "command cancelled"), "command", name)
		}
		return exitErr.ExitCode(), nil
	}
	return -1, zerr.With(zerr.Wrap(err, "failed to start command"), "command", name)
}

// logWriter forwards complete lines to log. A trailing partial line is held until
// the next newline or Flush.
type logWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
	log func(string)
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err == io.EOF {
			// Put the partial line back.
			w.buf.WriteString(line)
			break
		}
		w.log(strings.TrimSuffix(line, "\n"))
	}
	return len(p), nil
}

// Flush emits any buffered partial line.
func (w *logWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.log(w.buf.String())
		w.buf.Reset()
	}
}

// resolveEnvironment applies overrides on top of the system environment. An
// override value may refer to the previous value of the same variable as ${NAME},
// so PATH can be extended rather than replaced. The result is sorted.
func resolveEnvironment(sysEnv []string, overrides map[string]string) []string {
	envMap := make(map[string]string, len(sysEnv)+len(overrides))
	for _, entry := range sysEnv {
		if k, v, ok := strings.Cut(entry, "="); ok {
			envMap[k] = v
		}
	}

	for k, v := range overrides {
		envMap[k] = strings.ReplaceAll(v, "${"+k+"}", envMap[k])
	}

	result := make([]string, 0, len(envMap))
	for k, v := range envMap {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	slices.Sort(result)
	return result
}

// lookPath searches for an executable in the directories named by the PATH entry of env.
func lookPath(file string, env []string) (string, error) {
	var path string
	for _, e := range env {
		if p, ok := strings.CutPrefix(e, "PATH="); ok {
			path = p
			break
		}
	}

	if path == "" {
		return "", exec.ErrNotFound
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		path := filepath.Join(dir, file)
		if err := findExecutable(path); err == nil {
			return path, nil
		}
	}
	return "", exec.ErrNotFound
}

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0o111 != 0 {
		return nil
	}
	return os.ErrPermission
}
