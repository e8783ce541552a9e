package graph_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/engine/graph"
)

func TestEngine_TargetRunsAtMostOnce(t *testing.T) {
	var runs atomic.Int32
	reg := graph.NewRegistry()
	reg.MustRegister(
		task("count", func() { runs.Add(1) }),
		&graph.Target{Name: "shared", Tasks: graph.Sequential(graph.Name("count"))},
		&graph.Target{Name: "left", Dependencies: graph.Sequential(graph.Name("shared"))},
		&graph.Target{Name: "right", Dependencies: graph.Sequential(graph.Name("shared"))},
		&graph.Target{
			Name:         "all",
			Dependencies: graph.Sequential(graph.Name("left"), graph.Name("right"), graph.Name("shared")),
		},
	)
	e, _ := newEngine(t, reg, graph.Options{Jobs: 4})

	require.NoError(t, e.Invoke(t.Context(), graph.Name("all")))
	require.NoError(t, e.Invoke(t.Context(), graph.Name("all")))

	assert.Equal(t, int32(1), runs.Load())
	assert.True(t, e.Done("shared"))
	assert.True(t, e.Done("all"))
}

func TestEngine_Reexec(t *testing.T) {
	var runs atomic.Int32
	reg := graph.NewRegistry()
	reg.MustRegister(
		task("count", func() { runs.Add(1) }),
		&graph.Target{Name: "again", Reexec: true, Tasks: graph.Sequential(graph.Name("count"))},
	)
	e, _ := newEngine(t, reg, graph.Options{})

	for range 3 {
		require.NoError(t, e.Invoke(t.Context(), graph.Name("again")))
	}
	assert.Equal(t, int32(3), runs.Load())
}

func TestEngine_Reset(t *testing.T) {
	var runs atomic.Int32
	reg := graph.NewRegistry()
	reg.MustRegister(
		task("count", func() { runs.Add(1) }),
		&graph.Target{Name: "once", Tasks: graph.Sequential(graph.Name("count"))},
	)
	e, _ := newEngine(t, reg, graph.Options{})

	require.NoError(t, e.Invoke(t.Context(), graph.Name("once")))
	e.Reset()
	assert.False(t, e.Done("once"))
	require.NoError(t, e.Invoke(t.Context(), graph.Name("once")))
	assert.Equal(t, int32(2), runs.Load())
}

func TestEngine_DependencyOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	note := func(s string) func() {
		return func() {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, s)
		}
	}
	reg := graph.NewRegistry()
	reg.MustRegister(
		task("a", note("a")),
		task("b", note("b")),
		task("c", note("c")),
		&graph.Target{Name: "first", Tasks: graph.Sequential(graph.Name("a"))},
		&graph.Target{Name: "second", Dependencies: graph.Sequential(graph.Name("first")), Tasks: graph.Sequential(graph.Name("b"))},
		&graph.Target{
			Name:         "last",
			Dependencies: graph.Sequential(graph.Name("second")),
			Tasks:        graph.Sequential(graph.Name("c")),
			Run: func(context.Context, *graph.Invocation) error {
				note("body")()
				return nil
			},
		},
	)
	e, _ := newEngine(t, reg, graph.Options{})

	require.NoError(t, e.Invoke(t.Context(), graph.Name("last")))
	assert.Equal(t, []string{"a", "b", "c", "body"}, order)
}

func TestEngine_UptodateSkipsTarget(t *testing.T) {
	var runs atomic.Int32
	fresh := true
	reg := graph.NewRegistry()
	reg.MustRegister(
		task("count", func() { runs.Add(1) }),
		&graph.Target{
			Name:      "cached",
			Uptodates: graph.Sequential(graph.Instance(graph.Func(func(context.Context) (bool, error) { return fresh, nil }))),
			Tasks:     graph.Sequential(graph.Name("count")),
		},
	)
	var statuses []domain.TargetStatus
	e, _ := newEngine(t, reg, graph.Options{OnStatus: func(_ string, s domain.TargetStatus) {
		statuses = append(statuses, s)
	}})

	require.NoError(t, e.Invoke(t.Context(), graph.Name("cached")))
	assert.Equal(t, int32(0), runs.Load())
	assert.False(t, e.Done("cached"), "an up to date target is not marked done")
	assert.Equal(t, []domain.TargetStatus{domain.TargetStatusRunning, domain.TargetStatusUpToDate}, statuses)

	fresh = false
	require.NoError(t, e.Invoke(t.Context(), graph.Name("cached")))
	assert.Equal(t, int32(1), runs.Load())
	assert.True(t, e.Done("cached"))
}

func TestEngine_UptodateShortCircuits(t *testing.T) {
	var checked []string
	check := func(name string, result bool) graph.Ref {
		return graph.Instance(graph.Func(func(context.Context) (bool, error) {
			checked = append(checked, name)
			return result, nil
		}))
	}
	reg := graph.NewRegistry()
	reg.MustRegister(&graph.Target{
		Name:      "t",
		Uptodates: graph.Sequential(check("one", true), check("two", false), check("three", true)),
	})
	e, _ := newEngine(t, reg, graph.Options{})

	require.NoError(t, e.Invoke(t.Context(), graph.Name("t")))
	assert.Equal(t, []string{"one", "two"}, checked)
	assert.True(t, e.Done("t"))
}

func TestEngine_ParallelUptodatesRejected(t *testing.T) {
	reg := graph.NewRegistry()
	reg.MustRegister(&graph.Target{
		Name:      "t",
		Uptodates: graph.Parallel(graph.Instance(graph.Func(func(context.Context) (bool, error) { return true, nil }))),
	})
	e, _ := newEngine(t, reg, graph.Options{})

	err := e.Invoke(t.Context(), graph.Name("t"))
	require.ErrorIs(t, err, domain.ErrParallelUptodates)
	assert.True(t, domain.IsConfigurationError(err))
}

func TestEngine_TaskFailureAborts(t *testing.T) {
	var after atomic.Bool
	reg := graph.NewRegistry()
	reg.MustRegister(
		&graph.Task{Name: "fail", Run: func(context.Context, *graph.Invocation) (int, error) { return 3, nil }},
		task("after", func() { after.Store(true) }),
		&graph.Target{Name: "broken", Tasks: graph.Sequential(graph.Name("fail"), graph.Name("after"))},
	)
	var final domain.TargetStatus
	e, _ := newEngine(t, reg, graph.Options{OnStatus: func(_ string, s domain.TargetStatus) { final = s }})

	err := e.Invoke(t.Context(), graph.Name("broken"))
	require.Error(t, err)
	assert.True(t, domain.IsAbort(err))
	assert.ErrorIs(t, err, domain.ErrTaskFailed)
	assert.False(t, after.Load())
	assert.False(t, e.Done("broken"))
	assert.Equal(t, domain.TargetStatusAborted, final)
}

func TestEngine_ConfigurationErrorPassesThrough(t *testing.T) {
	reg := graph.NewRegistry()
	reg.MustRegister(&graph.Target{Name: "t", Tasks: graph.Sequential(graph.Name("missing"))})
	e, _ := newEngine(t, reg, graph.Options{})

	err := e.Invoke(t.Context(), graph.Name("t"))
	require.ErrorIs(t, err, domain.ErrUnknownReference)
	assert.False(t, domain.IsAbort(err))
}

func TestEngine_WrongCategory(t *testing.T) {
	reg := graph.NewRegistry()
	reg.MustRegister(
		task("work", nil),
		&graph.Target{Name: "t", Dependencies: graph.Sequential(graph.Name("work"))},
	)
	e, _ := newEngine(t, reg, graph.Options{})

	err := e.Invoke(t.Context(), graph.Name("t"))
	assert.ErrorIs(t, err, domain.ErrWrongCategory)
}

func TestEngine_PanicBecomesStructuralError(t *testing.T) {
	reg := graph.NewRegistry()
	reg.MustRegister(
		&graph.Task{Name: "explode", Run: func(context.Context, *graph.Invocation) (int, error) { panic("boom") }},
		&graph.Target{Name: "inner", Tasks: graph.Sequential(graph.Name("explode"))},
		&graph.Target{Name: "outer", Dependencies: graph.Sequential(graph.Name("inner"))},
	)
	e, _ := newEngine(t, reg, graph.Options{})

	err := e.Invoke(t.Context(), graph.Name("outer"))
	var se *domain.StructuralError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []domain.Frame{
		{Kind: domain.FrameTarget, Name: "outer"},
		{Kind: domain.FrameTarget, Name: "inner"},
		{Kind: domain.FrameTask, Name: "explode"},
	}, se.Trace)
	assert.Contains(t, se.Error(), "boom")
	assert.False(t, domain.IsAbort(err))
}

func TestEngine_RuntimeCycle(t *testing.T) {
	reg := graph.NewRegistry()
	reg.MustRegister(
		&graph.Target{Name: "a", Dependencies: graph.Sequential(graph.Name("b"))},
		&graph.Target{Name: "b", Dependencies: graph.Sequential(graph.Name("a"))},
	)
	e, _ := newEngine(t, reg, graph.Options{})

	err := e.Invoke(t.Context(), graph.Name("a"))
	assert.ErrorIs(t, err, domain.ErrCycleDetected)
}

func TestEngine_DryRun(t *testing.T) {
	var runs atomic.Int32
	reg := graph.NewRegistry()
	reg.MustRegister(
		task("count", func() { runs.Add(1) }),
		&graph.Target{Name: "t", Tasks: graph.Sequential(graph.Name("count"))},
	)

	t.Run("option", func(t *testing.T) {
		e, _ := newEngine(t, reg, graph.Options{DryRun: true})
		require.NoError(t, e.Invoke(t.Context(), graph.Name("t")))
		assert.True(t, e.Done("t"))
	})
	t.Run("variable", func(t *testing.T) {
		e, _ := newEngine(t, reg, graph.Options{})
		e.Vars().Set(domain.VarNoop, "true")
		require.NoError(t, e.Invoke(t.Context(), graph.Name("t")))
	})
	assert.Equal(t, int32(0), runs.Load())
}

func TestEngine_TaskArguments(t *testing.T) {
	var got []string
	reg := graph.NewRegistry()
	reg.MustRegister(
		&graph.Task{
			Name:   "greet",
			Schema: domain.NewSchema(domain.Param{Name: "who", Type: domain.TypeString, Required: true}, domain.Param{Name: "times", Type: domain.TypeInt, Default: 1}),
			Run: func(_ context.Context, inv *graph.Invocation) (int, error) {
				who, err := inv.Args.String("who")
				if err != nil {
					return 0, err
				}
				times, err := inv.Args.Int("times")
				if err != nil {
					return 0, err
				}
				for range times {
					got = append(got, who)
				}
				return 0, nil
			},
		},
		&graph.Target{Name: "t", Tasks: graph.Sequential(
			graph.Call("greet", "alice"),
			graph.Name("greet").Kw("who", "carol").Kw("times", 2),
		)},
		&graph.Target{Name: "bad", Tasks: graph.Sequential(graph.Name("greet"))},
	)
	e, _ := newEngine(t, reg, graph.Options{})

	require.NoError(t, e.Invoke(t.Context(), graph.Name("t")))
	assert.Equal(t, []string{"alice", "carol", "carol"}, got)

	err := e.Invoke(t.Context(), graph.Name("bad"))
	assert.ErrorIs(t, err, domain.ErrInvalidArguments)
}

func TestEngine_VariableReference(t *testing.T) {
	var runs atomic.Int32
	reg := graph.NewRegistry()
	reg.MustRegister(task("count", func() { runs.Add(1) }))
	e, _ := newEngine(t, reg, graph.Options{})
	reg.MustRegister(&graph.Target{Name: "t", Tasks: graph.Sequential(graph.Var(e.Vars().Var("which")))})

	err := e.Invoke(t.Context(), graph.Name("t"))
	require.ErrorIs(t, err, domain.ErrNoSuchVariable)

	e.Vars().Set("which", "count")
	require.NoError(t, e.Invoke(t.Context(), graph.Name("t")))
	assert.Equal(t, int32(1), runs.Load())
}

func TestEngine_NestedInvoke(t *testing.T) {
	var runs atomic.Int32
	reg := graph.NewRegistry()
	reg.MustRegister(
		task("count", func() { runs.Add(1) }),
		&graph.Target{Name: "leaf", Tasks: graph.Sequential(graph.Name("count"))},
		&graph.Target{Name: "caller", Run: func(ctx context.Context, inv *graph.Invocation) error {
			if err := inv.Invoke(ctx, graph.Name("leaf")); err != nil {
				return err
			}
			return inv.Invoke(ctx, graph.Name("leaf"))
		}},
	)
	e, _ := newEngine(t, reg, graph.Options{})

	require.NoError(t, e.Invoke(t.Context(), graph.Name("caller")))
	assert.Equal(t, int32(1), runs.Load())
}

func TestEngine_ParallelAggregatesFailures(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		release := make(chan struct{})
		var started, finished atomic.Int32
		slow := func(name string, fail bool) *graph.Task {
			return &graph.Task{Name: name, Run: func(context.Context, *graph.Invocation) (int, error) {
				started.Add(1)
				<-release
				finished.Add(1)
				if fail {
					return 0, errors.New(name + " broke")
				}
				return 0, nil
			}}
		}
		reg := graph.NewRegistry()
		reg.MustRegister(
			slow("one", true),
			slow("two", false),
			slow("three", true),
			&graph.Target{Name: "fan", Tasks: graph.Parallel(graph.Name("one"), graph.Name("two"), graph.Name("three"))},
		)
		e, _ := newEngine(t, reg, graph.Options{Jobs: 3})

		errCh := make(chan error, 1)
		go func() { errCh <- e.Invoke(context.Background(), graph.Name("fan")) }()

		synctest.Wait()
		assert.Equal(t, int32(3), started.Load())
		close(release)

		err := <-errCh
		require.Error(t, err)
		assert.True(t, domain.IsAbort(err))
		assert.Equal(t, int32(3), finished.Load(), "every member is joined before the group fails")
		assert.False(t, e.Done("fan"))
	})
}

func TestEngine_ParallelHonoursJobs(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		release := make(chan struct{})
		var running, peak atomic.Int32
		var refs []graph.Ref
		reg := graph.NewRegistry()
		for _, name := range []string{"a", "b", "c", "d"} {
			reg.MustRegister(&graph.Task{Name: name, Run: func(context.Context, *graph.Invocation) (int, error) {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				<-release
				running.Add(-1)
				return 0, nil
			}})
			refs = append(refs, graph.Name(name))
		}
		reg.MustRegister(&graph.Target{Name: "fan", Tasks: graph.Parallel(refs...)})
		e, _ := newEngine(t, reg, graph.Options{Jobs: 2})

		errCh := make(chan error, 1)
		go func() { errCh <- e.Invoke(context.Background(), graph.Name("fan")) }()

		synctest.Wait()
		assert.Equal(t, int32(2), running.Load())
		close(release)
		require.NoError(t, <-errCh)
		assert.Equal(t, int32(2), peak.Load())
	})
}

func TestEngine_NestedParallelSingleJob(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var runs atomic.Int32
		reg := graph.NewRegistry()
		reg.MustRegister(
			task("count", func() { runs.Add(1) }),
			&graph.Target{Name: "x", Tasks: graph.Parallel(graph.Name("count"), graph.Name("count"))},
			&graph.Target{Name: "y", Tasks: graph.Parallel(graph.Name("count"), graph.Name("count"))},
			&graph.Target{Name: "shared", Tasks: graph.Sequential(graph.Name("count"))},
			&graph.Target{Name: "left", Dependencies: graph.Parallel(graph.Name("x"), graph.Name("shared"))},
			&graph.Target{Name: "right", Dependencies: graph.Parallel(graph.Name("y"), graph.Name("shared"))},
			&graph.Target{Name: "top", Dependencies: graph.Parallel(graph.Name("left"), graph.Name("right"))},
		)
		e, _ := newEngine(t, reg, graph.Options{Jobs: 1})

		require.NoError(t, e.Invoke(context.Background(), graph.Name("top")))
		assert.Equal(t, int32(5), runs.Load())
	})
}

func TestEngine_ParallelPanicWins(t *testing.T) {
	reg := graph.NewRegistry()
	reg.MustRegister(
		&graph.Task{Name: "fail", Run: func(context.Context, *graph.Invocation) (int, error) { return 1, nil }},
		&graph.Task{Name: "explode", Run: func(context.Context, *graph.Invocation) (int, error) { panic("boom") }},
		&graph.Target{Name: "fan", Tasks: graph.Parallel(graph.Name("fail"), graph.Name("explode"))},
	)
	e, _ := newEngine(t, reg, graph.Options{Jobs: 2})

	err := e.Invoke(t.Context(), graph.Name("fan"))
	var se *domain.StructuralError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, domain.Frame{Kind: domain.FrameTask, Name: "explode"}, se.Trace[len(se.Trace)-1])
	assert.Equal(t, domain.Frame{Kind: domain.FrameTarget, Name: "fan"}, se.Trace[0])
}

func TestEngine_InvokeTask(t *testing.T) {
	var runs atomic.Int32
	reg := graph.NewRegistry()
	reg.MustRegister(task("count", func() { runs.Add(1) }))
	e, _ := newEngine(t, reg, graph.Options{})

	require.NoError(t, e.Invoke(t.Context(), graph.Name("count")))
	require.NoError(t, e.Invoke(t.Context(), graph.Name("count")))
	assert.Equal(t, int32(2), runs.Load(), "tasks run on every call")
}

func markerTask() *graph.Task {
	return &graph.Task{
		Name:   "write_marker_file",
		Schema: domain.NewSchema(domain.Param{Name: "name", Type: domain.TypeString, Required: true}),
		Run: func(_ context.Context, inv *graph.Invocation) (int, error) {
			name, err := inv.Args.String("name")
			if err != nil {
				return 0, err
			}
			return 0, inv.Path(name).Touch()
		},
	}
}

func TestEngine_MarkerFiles(t *testing.T) {
	base := domain.NewPath(t.TempDir())
	reg := graph.NewRegistry()
	reg.MustRegister(
		markerTask(),
		&graph.Target{Name: "T", Tasks: graph.Sequential(graph.Call("write_marker_file", "out1"))},
		&graph.Target{
			Name:         "U",
			Dependencies: graph.Sequential(graph.Name("T")),
			Tasks:        graph.Sequential(graph.Call("write_marker_file", "out2")),
		},
	)
	e, _ := newEngine(t, reg, graph.Options{BaseDir: base})

	require.NoError(t, e.Invoke(t.Context(), graph.Name("U")))
	assert.True(t, base.Join("out1").Exists())
	assert.True(t, base.Join("out2").Exists())

	require.NoError(t, base.Join("out1").RemoveAll())
	require.NoError(t, base.Join("out2").RemoveAll())

	require.NoError(t, e.Invoke(t.Context(), graph.Name("U")))
	assert.False(t, base.Join("out1").Exists())
	assert.False(t, base.Join("out2").Exists())
}

func TestEngine_UptodateKeepsMarkerAbsent(t *testing.T) {
	base := domain.NewPath(t.TempDir())
	reg := graph.NewRegistry()
	reg.MustRegister(
		markerTask(),
		&graph.Target{Name: "dep", Tasks: graph.Sequential(graph.Call("write_marker_file", "dep"))},
		&graph.Target{
			Name:         "t",
			Uptodates:    graph.Sequential(graph.Instance(graph.Func(func(context.Context) (bool, error) { return true, nil }))),
			Dependencies: graph.Sequential(graph.Name("dep")),
			Tasks:        graph.Sequential(graph.Call("write_marker_file", "marker")),
		},
	)
	e, _ := newEngine(t, reg, graph.Options{BaseDir: base})

	require.NoError(t, e.Invoke(t.Context(), graph.Name("t")))
	assert.False(t, base.Join("marker").Exists())
	assert.False(t, base.Join("dep").Exists())
}
