package graph_test

import (
	"context"
	"io"
	"testing"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/bake/internal/core/ports/mocks"
	"go.trai.ch/bake/internal/engine/graph"
	"go.uber.org/mock/gomock"
)

// newEngine returns an engine whose logger and telemetry accept any call.
func newEngine(t *testing.T, reg *graph.Registry, opts graph.Options) (*graph.Engine, *mocks.MockLogger) {
	t.Helper()
	ctrl := gomock.NewController(t)

	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Debug(gomock.Any()).AnyTimes()
	logger.EXPECT().Info(gomock.Any()).AnyTimes()
	logger.EXPECT().Warn(gomock.Any()).AnyTimes()
	logger.EXPECT().Error(gomock.Any()).AnyTimes()

	vertex := mocks.NewMockVertex(ctrl)
	vertex.EXPECT().Stdout().Return(io.Discard).AnyTimes()
	vertex.EXPECT().Stderr().Return(io.Discard).AnyTimes()
	vertex.EXPECT().Log(gomock.Any(), gomock.Any()).AnyTimes()
	vertex.EXPECT().Complete(gomock.Any()).AnyTimes()
	vertex.EXPECT().Cached().AnyTimes()

	telemetry := mocks.NewMockTelemetry(ctrl)
	telemetry.EXPECT().Record(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ string, _ ...ports.VertexOption) (context.Context, ports.Vertex) {
			return ctx, vertex
		}).AnyTimes()

	if opts.BaseDir.Value() == "." {
		opts.BaseDir = domain.NewPath(t.TempDir())
	}
	return graph.NewEngine(reg, domain.NewVariableStore(), logger, telemetry, opts), logger
}

// task registers a task named name that calls fn and returns status 0.
func task(name string, fn func()) *graph.Task {
	return &graph.Task{
		Name: name,
		Run: func(context.Context, *graph.Invocation) (int, error) {
			if fn != nil {
				fn()
			}
			return 0, nil
		},
	}
}
