// Package app implements the application layer for bake.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.trai.ch/bake/internal/adapters/telemetry/progrock"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/bake/internal/engine/graph"
	"go.trai.ch/bake/internal/engine/scheduler"
	"go.trai.ch/bake/internal/tui"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// streamSize is the number of progress updates buffered ahead of the view.
const streamSize = 256

var errProgressClosed = zerr.New("progress view closed")

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	logger       ports.Logger
	scheduler    *scheduler.Scheduler
	kinds        []graph.Kind
	teaOptions   []tea.ProgramOption
	stdout       io.Writer
	stderr       io.Writer
}

// New creates a new App instance. kinds are the built-in task and uptodate kinds
// every build can reference.
func New(loader ports.ConfigLoader, log ports.Logger, sched *scheduler.Scheduler, kinds ...graph.Kind) *App {
	return &App{
		configLoader: loader,
		logger:       log,
		scheduler:    sched,
		kinds:        kinds,
		stdout:       os.Stdout,
		stderr:       os.Stderr,
	}
}

// WithTeaOptions adds bubbletea program options to the App.
// This is primarily used for testing to disable input/output.
func (a *App) WithTeaOptions(opts ...tea.ProgramOption) *App {
	a.teaOptions = append(a.teaOptions, opts...)
	return a
}

// WithOutput redirects task output.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	return a
}

// RunOptions configuration for the Run method.
type RunOptions struct {
	// File is the buildfile path. Empty means searching upwards from Dir.
	File string
	// Dir is the directory the build starts from. Empty means the working directory.
	Dir      string
	Jobs     int
	DryRun   bool
	Progress ProgressMode
}

// Run loads the buildfile and builds the targets named in args. Arguments of the
// form key=value set variables; without target arguments the default target runs.
func (a *App) Run(ctx context.Context, args []string, opts RunOptions) error {
	targets, overrides := SplitArgs(args)

	bf, err := a.load(opts)
	if err != nil {
		return err
	}

	if len(targets) == 0 {
		if bf.Default.IsZero() {
			return domain.ErrNoTargetsSpecified
		}
		targets = []string{bf.Default.String()}
	}

	build, err := a.prepare(bf, overrides, opts)
	if err != nil {
		return err
	}
	build.Targets = targets

	if detectProgress(opts.Progress, a.stdout) == ProgressTUI {
		err = a.runWithProgress(ctx, build)
	} else {
		build.Options.Stdout = a.stdout
		build.Options.Stderr = a.stderr
		err = a.scheduler.Run(ctx, build)
	}
	a.logSummary()
	return err
}

// runWithProgress runs the progress view and the build concurrently. Task output
// reaches the view through the vertices; the view ends when the build closes the
// stream, and quitting the view interrupts the build.
func (a *App) runWithProgress(ctx context.Context, build scheduler.Build) error {
	stream := progrock.NewStream(streamSize)
	recorder := progrock.NewRecorder(stream)
	build.Telemetry = recorder

	buildCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var buildErr error
	var g errgroup.Group

	g.Go(func() error {
		err := tui.Run(ctx, stream, a.stdout, a.teaOptions...)
		_ = stream.Close()
		cancel(errProgressClosed)
		return err
	})

	g.Go(func() error {
		defer func() {
			_ = recorder.Close()
		}()
		buildErr = a.scheduler.Run(buildCtx, build)
		return nil
	})

	viewErr := g.Wait()
	if buildErr != nil {
		return buildErr
	}
	return viewErr
}

// TargetInfo describes a target for listing.
type TargetInfo struct {
	Name        string
	Description string
	Default     bool
}

// List returns the targets of the buildfile sorted by name.
func (a *App) List(opts RunOptions) ([]TargetInfo, error) {
	bf, err := a.load(opts)
	if err != nil {
		return nil, err
	}
	out := make([]TargetInfo, 0, bf.Len())
	for spec := range bf.Targets() {
		out = append(out, TargetInfo{
			Name:        spec.Name.String(),
			Description: spec.Description,
			Default:     spec.Name == bf.Default,
		})
	}
	slices.SortFunc(out, func(x, y TargetInfo) int { return strings.Compare(x.Name, y.Name) })
	return out, nil
}

// Kinds returns the names of the built-in task and uptodate kinds, sorted.
func (a *App) Kinds() []string {
	reg := graph.NewRegistry()
	reg.MustRegister(a.kinds...)
	var names []string
	for _, c := range []graph.Category{graph.CategoryTask, graph.CategoryUptodate} {
		for _, k := range reg.Kinds(c) {
			names = append(names, fmt.Sprintf("%s (%s)", k.KindName(), c))
		}
	}
	return names
}

func (a *App) load(opts RunOptions) (*domain.Buildfile, error) {
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	bf, err := a.configLoader.Load(dir, opts.File)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}
	return bf, nil
}

// prepare registers the built-in kinds and the buildfile targets and seeds the
// variables: the well-known ones first, then the buildfile vars, then overrides.
func (a *App) prepare(bf *domain.Buildfile, overrides map[string]string, opts RunOptions) (scheduler.Build, error) {
	abs, err := filepath.Abs(bf.Path)
	if err != nil {
		return scheduler.Build{}, zerr.With(zerr.Wrap(err, "failed to resolve buildfile path"), "path", bf.Path)
	}
	basedir := domain.NewPath(filepath.Dir(abs))

	vars := domain.NewVariableStore()
	vars.Set(domain.VarBaseDir, basedir.Value())
	vars.Set(domain.VarBuildFile, abs)
	vars.Set(domain.VarNoop, opts.DryRun)
	for name, value := range bf.Vars {
		vars.Set(name, bindValue(value, vars))
	}
	for name, value := range overrides {
		vars.Set(name, value)
	}

	reg := graph.NewRegistry()
	if err := reg.Register(a.kinds...); err != nil {
		return scheduler.Build{}, err
	}
	for _, t := range Compile(bf, vars) {
		if err := reg.Register(t); err != nil {
			return scheduler.Build{}, err
		}
	}

	return scheduler.Build{
		Registry: reg,
		Vars:     vars,
		Options: graph.Options{
			Jobs:    opts.Jobs,
			DryRun:  opts.DryRun,
			BaseDir: basedir,
		},
	}, nil
}

func (a *App) logSummary() {
	counts := a.scheduler.Summary()
	ran := counts[domain.TargetStatusDone] + counts[domain.TargetStatusUpToDate] + counts[domain.TargetStatusAborted]
	if ran == 0 {
		return
	}
	a.logger.Debug(fmt.Sprintf("%d done, %d up to date, %d aborted",
		counts[domain.TargetStatusDone], counts[domain.TargetStatusUpToDate], counts[domain.TargetStatusAborted]))
}

// SplitArgs separates key=value variable assignments from target names.
func SplitArgs(args []string) ([]string, map[string]string) {
	var targets []string
	vars := make(map[string]string)
	for _, arg := range args {
		if key, value, ok := strings.Cut(arg, "="); ok && key != "" {
			vars[key] = value
			continue
		}
		targets = append(targets, arg)
	}
	return targets, vars
}

// IsUsageError reports whether err calls for the usage text rather than a failure report.
func IsUsageError(err error) bool {
	return errors.Is(err, domain.ErrNoTargetsSpecified)
}
