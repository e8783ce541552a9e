package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/bake/internal/adapters/config" //nolint:depguard // Wired in app layer
	"go.trai.ch/bake/internal/adapters/fs"     //nolint:depguard // Wired in app layer
	"go.trai.ch/bake/internal/adapters/logger" //nolint:depguard // Wired in app layer
	"go.trai.ch/bake/internal/adapters/shell"  //nolint:depguard // Wired in app layer
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/bake/internal/engine/graph"
	"go.trai.ch/bake/internal/engine/scheduler"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

// Components contains the initialized application components the CLI layer needs.
type Components struct {
	App    *App
	Logger ports.Logger
}

func init() {
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			logger.NodeID,
			scheduler.NodeID,
			fs.KindsNodeID,
			shell.KindsNodeID,
		},
		Run: runAppNode,
	})

	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Components, error) {
			app, err := graft.Dep[*App](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			return &Components{App: app, Logger: log}, nil
		},
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	loader, err := graft.Dep[ports.ConfigLoader](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	sched, err := graft.Dep[*scheduler.Scheduler](ctx)
	if err != nil {
		return nil, err
	}

	fileKinds, err := graft.Dep[fs.Builtins](ctx)
	if err != nil {
		return nil, err
	}

	shellKinds, err := graft.Dep[shell.Builtins](ctx)
	if err != nil {
		return nil, err
	}

	kinds := make([]graph.Kind, 0, len(fileKinds)+len(shellKinds))
	kinds = append(kinds, fileKinds...)
	kinds = append(kinds, shellKinds...)
	return New(loader, log, sched, kinds...), nil
}
