package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/zerr"
)

// Section names the part of a target a group belongs to.
type Section string

const (
	// SectionDependencies holds target references.
	SectionDependencies Section = "dependencies"
	// SectionTasks holds task references.
	SectionTasks Section = "tasks"
	// SectionUptodates holds staleness checks.
	SectionUptodates Section = "uptodates"
)

func (s Section) category() Category {
	switch s {
	case SectionDependencies:
		return CategoryTarget
	case SectionUptodates:
		return CategoryUptodate
	default:
		return CategoryTask
	}
}

// Options configures an Engine.
type Options struct {
	// Jobs is the worker pool size for parallel groups.
	Jobs int
	// DryRun disables task side effects. The noop variable has the same effect.
	DryRun  bool
	BaseDir domain.Path
	Stdout  io.Writer
	Stderr  io.Writer
	// OnStatus is called whenever a target changes state.
	OnStatus func(target string, status domain.TargetStatus)
}

// Engine runs targets and tasks resolved through a Registry.
type Engine struct {
	registry  *Registry
	vars      *domain.VariableStore
	logger    ports.Logger
	telemetry ports.Telemetry
	pool      *Pool
	opts      Options
	latches   latchTable
}

// NewEngine creates an Engine.
func NewEngine(
	registry *Registry,
	vars *domain.VariableStore,
	logger ports.Logger,
	telemetry ports.Telemetry,
	opts Options,
) *Engine {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	return &Engine{
		registry:  registry,
		vars:      vars,
		logger:    logger,
		telemetry: telemetry,
		pool:      NewPool(opts.Jobs),
		opts:      opts,
	}
}

// Registry returns the registry references are resolved through.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Vars returns the variable store.
func (e *Engine) Vars() *domain.VariableStore {
	return e.vars
}

// Pool returns the worker pool.
func (e *Engine) Pool() *Pool {
	return e.pool
}

// DryRun reports whether task side effects are disabled.
func (e *Engine) DryRun() bool {
	return e.opts.DryRun || e.vars.Bool(domain.VarNoop)
}

// Done reports whether the target completed in this engine.
func (e *Engine) Done(target string) bool {
	return e.latches.isDone(domain.NewName(target))
}

// Reset forgets which targets completed.
func (e *Engine) Reset() {
	e.latches.reset()
}

// Invoke runs the target or task ref refers to.
func (e *Engine) Invoke(ctx context.Context, ref Ref) error {
	if StackFrom(ctx) == nil {
		ctx = WithStack(ctx, domain.NewStack())
	}
	r, err := ref.concrete()
	if err != nil {
		return err
	}
	var k Kind
	switch r.form {
	case formName:
		var ok bool
		if k, ok = e.registry.Lookup(r.name); !ok {
			return domain.Detail(domain.ErrUnknownReference, "name", r.name)
		}
	case formKind:
		k = r.kind
	default:
		return domain.Detail(domain.ErrWrongCategory, "ref", r.String(), "want", "target or task")
	}
	switch k := k.(type) {
	case *Target:
		return e.runTarget(ctx, k)
	case *Task:
		return e.runTask(ctx, k, r)
	default:
		return domain.Detail(domain.ErrWrongCategory, "ref", r.String(), "want", "target or task", "got", k.Category().String())
	}
}

// RunAll runs a group of dependencies or tasks for owner. A failing member is
// logged with its qualified position and reported as an abort.
func (e *Engine) RunAll(ctx context.Context, owner string, section Section, g Group) error {
	if g.parallel {
		return e.runParallel(ctx, owner, section, g)
	}
	for _, ref := range g.items {
		if err := e.call(ctx, section.category(), ref); err != nil {
			return e.qualify(owner, section, ref, err)
		}
	}
	return nil
}

// AllUpToDate evaluates a group of staleness checks in order and stops at the first
// one that is not up to date. An empty group is up to date.
func (e *Engine) AllUpToDate(ctx context.Context, owner string, g Group) (bool, error) {
	if g.parallel {
		return false, domain.Detail(domain.ErrParallelUptodates, "target", owner)
	}
	for _, ref := range g.items {
		checker, err := e.checker(ctx, ref)
		if err != nil {
			return false, err
		}
		var ok bool
		err = e.protect(ctx, func() error {
			var cerr error
			ok, cerr = checker.UpToDate(ctx)
			return cerr
		})
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (e *Engine) runParallel(ctx context.Context, owner string, section Section, g Group) error {
	parent := StackFrom(ctx)
	if parent == nil {
		parent = domain.NewStack()
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, err)
	}

	e.pool.Block(ctx, func() {
		for _, ref := range g.items {
			child := parent.Fork()
			err := e.pool.Go(WithStack(ctx, child), &wg, func(ctx context.Context) {
				defer zerr.Defer(func(perr error) {
					record(structural(perr, child))
				})
				if err := e.call(ctx, section.category(), ref); err != nil {
					record(e.qualify(owner, section, ref, err))
				}
			})
			if err != nil {
				record(domain.Abort(err))
				break
			}
		}
		wg.Wait()
	})

	if len(errs) == 0 {
		return nil
	}
	for _, err := range errs {
		var se *domain.StructuralError
		if errors.As(err, &se) {
			return se
		}
	}
	for _, err := range errs {
		if domain.IsConfigurationError(err) && !domain.IsAbort(err) {
			return err
		}
	}
	return domain.Abort(errors.Join(errs...))
}

// qualify logs where an abort happened and returns the abort. Configuration and
// structural errors pass through untouched.
func (e *Engine) qualify(owner string, section Section, ref Ref, err error) error {
	if domain.IsConfigurationError(err) && !domain.IsAbort(err) {
		return err
	}
	var se *domain.StructuralError
	if errors.As(err, &se) {
		return err
	}
	e.logger.Warn(fmt.Sprintf("exception in %s.%s: %s", owner, section, ref))
	return domain.Abort(err)
}

// call resolves ref in category c and runs it.
func (e *Engine) call(ctx context.Context, c Category, ref Ref) error {
	r, k, err := e.resolve(ref, c)
	if err != nil {
		return err
	}
	switch k := k.(type) {
	case *Target:
		return e.runTarget(ctx, k)
	case *Task:
		return e.runTask(ctx, k, r)
	default:
		return domain.Detail(domain.ErrWrongCategory, "ref", ref.String(), "want", c.String())
	}
}

// resolve turns ref into a registered kind of category c.
func (e *Engine) resolve(ref Ref, c Category) (Ref, Kind, error) {
	r, err := ref.concrete()
	if err != nil {
		return Ref{}, nil, err
	}
	switch r.form {
	case formName:
		k, err := e.registry.Resolve(r.name, c)
		return r, k, err
	case formKind:
		if r.kind.Category() != c {
			return Ref{}, nil, domain.Detail(domain.ErrWrongCategory,
				"name", r.kind.KindName(), "want", c.String(), "got", r.kind.Category().String())
		}
		return r, r.kind, nil
	default:
		return Ref{}, nil, domain.Detail(domain.ErrWrongCategory, "ref", r.String(), "want", c.String(), "got", "instance")
	}
}

// checker turns an uptodate reference into a live check.
func (e *Engine) checker(ctx context.Context, ref Ref) (Checker, error) {
	r, err := ref.concrete()
	if err != nil {
		return nil, err
	}
	if r.form == formInstance {
		return r.instance, nil
	}
	r, k, err := e.resolve(r, CategoryUptodate)
	if err != nil {
		return nil, err
	}
	kind, ok := k.(*Uptodate)
	if !ok {
		return nil, domain.Detail(domain.ErrWrongCategory, "ref", ref.String(), "want", CategoryUptodate.String())
	}
	args, err := kind.Schema.Bind(r.args, r.kwargs)
	if err != nil {
		return nil, zerr.With(err, "uptodate", kind.Name)
	}
	var c Checker
	err = e.protect(ctx, func() error {
		var nerr error
		c, nerr = kind.New(ctx, e.invocation(ctx, kind.Name, args, nil))
		return nerr
	})
	return c, err
}

func (e *Engine) invocation(ctx context.Context, name string, args domain.Args, vertex ports.Vertex) *Invocation {
	stdout, stderr := e.opts.Stdout, e.opts.Stderr
	if vertex != nil {
		stdout = io.MultiWriter(stdout, vertex.Stdout())
		stderr = io.MultiWriter(stderr, vertex.Stderr())
	}
	return &Invocation{
		Name:    name,
		Args:    args,
		Vars:    e.vars,
		BaseDir: e.opts.BaseDir,
		Logger:  e.logger,
		Stack:   StackFrom(ctx),
		Stdout:  stdout,
		Stderr:  stderr,
		engine:  e,
	}
}

func (e *Engine) setStatus(target string, status domain.TargetStatus) {
	if e.opts.OnStatus != nil {
		e.opts.OnStatus(target, status)
	}
}

// protect runs fn and converts a panic into a structural error carrying the
// diagnostic trace at the point of the panic.
func (e *Engine) protect(ctx context.Context, fn func() error) (err error) {
	stack := StackFrom(ctx)
	defer zerr.Defer(func(perr error) {
		err = structural(perr, stack)
	})
	return fn()
}

func structural(perr error, stack *domain.Stack) *domain.StructuralError {
	se := &domain.StructuralError{Value: perr}
	if stack != nil {
		se.Trace = stack.Trace()
	}
	var zErr *zerr.Error
	if errors.As(perr, &zErr) {
		se.Stack = zErr.StackTrace()
	}
	return se
}

// translate applies the boundary rules of targets and tasks: aborts, configuration
// and structural errors pass through; everything else is logged with the diagnostic
// trace and converted into an abort.
func (e *Engine) translate(ctx context.Context, frame domain.Frame, err error) error {
	if err == nil || domain.IsPassThrough(err) {
		return err
	}
	trace := "<top>"
	if stack := StackFrom(ctx); stack != nil {
		trace = stack.String()
	}
	if domain.IsBuildError(err) {
		e.logger.Error(zerr.With(zerr.Wrap(err, frame.String()+" failed"), "trace", trace))
	} else {
		e.logger.Error(zerr.With(zerr.Wrap(err, "unexpected error in "+frame.String()), "trace", trace))
	}
	return domain.Abort(err)
}

func elapsed(start time.Time) time.Duration {
	return time.Since(start).Round(time.Millisecond)
}
