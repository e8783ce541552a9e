package graph

import (
	"context"
	"fmt"
	"time"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/zerr"
)

// runTarget is the target state machine: skip when done, check staleness, run the
// dependencies, run the tasks and the target body, then mark the target done. A
// target that is up to date or fails is not marked done.
func (e *Engine) runTarget(ctx context.Context, t *Target) (err error) {
	name := domain.NewName(t.Name)
	if !t.Reexec && e.latches.isDone(name) {
		return nil
	}

	stack := StackFrom(ctx)
	if stack == nil {
		stack = domain.NewStack()
		ctx = WithStack(ctx, stack)
	}
	frame := domain.Frame{Kind: domain.FrameTarget, Name: t.Name}
	if stack.Contains(frame) {
		return domain.Detail(domain.ErrCycleDetected, "target", t.Name, "trace", stack.String())
	}
	if t.Uptodates.IsParallel() {
		return domain.Detail(domain.ErrParallelUptodates, "target", t.Name)
	}

	var l *latch
	if !t.Reexec {
		l = e.latches.get(name)
		e.pool.Block(ctx, l.mu.Lock)
		defer l.mu.Unlock()
		if l.done {
			return nil
		}
	}

	stack.Push(frame)
	defer stack.Pop()

	ctx, vertex := e.telemetry.Record(ctx, frame.String())
	e.setStatus(t.Name, domain.TargetStatusRunning)
	defer func() {
		if err != nil {
			vertex.Complete(err)
			e.setStatus(t.Name, domain.TargetStatusAborted)
		}
	}()

	if t.Uptodates.Len() > 0 {
		ok, uerr := e.AllUpToDate(ctx, t.Name, t.Uptodates)
		if uerr != nil {
			return e.translate(ctx, frame, uerr)
		}
		if ok {
			e.logger.Info(fmt.Sprintf("target %s is up to date", t.Name))
			vertex.Cached()
			e.setStatus(t.Name, domain.TargetStatusUpToDate)
			return nil
		}
	}

	if err := e.RunAll(ctx, t.Name, SectionDependencies, t.Dependencies); err != nil {
		return err
	}

	start := time.Now()
	if err := e.RunAll(ctx, t.Name, SectionTasks, t.Tasks); err != nil {
		return err
	}
	if t.Run != nil {
		inv := e.invocation(ctx, t.Name, domain.Args{}, vertex)
		if err := e.translate(ctx, frame, e.protect(ctx, func() error { return t.Run(ctx, inv) })); err != nil {
			return err
		}
	}

	if l != nil {
		l.done = true
	}
	vertex.Complete(nil)
	e.setStatus(t.Name, domain.TargetStatusDone)
	e.logger.Info(fmt.Sprintf("target %s done in %s", t.Name, elapsed(start)))
	return nil
}

// runTask binds the call arguments, then runs the task body unless dry run is
// active. A non-zero status becomes a task failure.
func (e *Engine) runTask(ctx context.Context, k *Task, ref Ref) error {
	args, err := k.Schema.Bind(ref.args, ref.kwargs)
	if err != nil {
		return zerr.With(err, "task", k.Name)
	}

	stack := StackFrom(ctx)
	if stack == nil {
		stack = domain.NewStack()
		ctx = WithStack(ctx, stack)
	}
	var opts []ports.VertexOption
	if owner, ok := stack.Current(); ok {
		opts = append(opts, ports.WithGroup(owner.String()))
	}
	frame := domain.Frame{Kind: domain.FrameTask, Name: k.Name}
	stack.Push(frame)
	defer stack.Pop()

	ctx, vertex := e.telemetry.Record(ctx, frame.String(), opts...)

	if e.DryRun() {
		e.logger.Info(fmt.Sprintf("dry run: %s(%s)", k.Name, args.Format()))
		vertex.Complete(nil)
		return nil
	}

	inv := e.invocation(ctx, k.Name, args, vertex)
	var status int
	err = e.protect(ctx, func() error {
		var rerr error
		status, rerr = k.Run(ctx, inv)
		return rerr
	})
	if err == nil && status != 0 {
		err = domain.Detail(domain.ErrTaskFailed, "task", k.Name, "status", status)
	}
	err = e.translate(ctx, frame, err)
	vertex.Complete(err)
	return err
}
