package fs

import (
	"context"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/engine/fileset"
	"go.trai.ch/bake/internal/engine/graph"
)

var (
	sourcesParam = domain.Param{Name: "sources", Type: domain.TypeList, Required: true}
	recurseParam = domain.Param{Name: "recurse", Type: domain.TypeBool, Default: false}
	excludeParam = domain.Param{Name: "exclude", Type: domain.TypeList}
)

// FilesUptodate compares a source set with a destination set: the target is up to
// date when the oldest destination is at least as new as the newest source.
func FilesUptodate() *graph.Uptodate {
	return &graph.Uptodate{
		Name: "files",
		Schema: domain.NewSchema(
			sourcesParam,
			domain.Param{Name: "destinations", Type: domain.TypeList},
			recurseParam,
			excludeParam,
		),
		New: func(_ context.Context, inv *graph.Invocation) (graph.Checker, error) {
			opts, err := iteratorOptions(inv)
			if err != nil {
				return nil, err
			}
			sources, err := iterator(inv, "sources", opts)
			if err != nil {
				return nil, err
			}
			opts.FileOnly = false
			destinations, err := iterator(inv, "destinations", opts)
			if err != nil {
				return nil, err
			}
			return fileset.NewUptodate(sources, destinations)
		},
	}
}

// MapperUptodate pairs every source with destdir/basename, the basename rewritten
// by map ("from:to"). The target is up to date when every destination is newer
// than its source.
func MapperUptodate() *graph.Uptodate {
	return &graph.Uptodate{
		Name: "mapper",
		Schema: domain.NewSchema(
			sourcesParam,
			domain.Param{Name: "destdir", Type: domain.TypeString, Required: true},
			domain.Param{Name: "map", Type: domain.TypeString},
			recurseParam,
			excludeParam,
		),
		New: func(_ context.Context, inv *graph.Invocation) (graph.Checker, error) {
			opts, err := iteratorOptions(inv)
			if err != nil {
				return nil, err
			}
			sources, err := iterator(inv, "sources", opts)
			if err != nil {
				return nil, err
			}
			spec, err := inv.Args.String("map")
			if err != nil {
				return nil, err
			}
			transform, err := fileset.ParseMap(spec)
			if err != nil {
				return nil, err
			}
			destdir, err := inv.Args.String("destdir")
			if err != nil {
				return nil, err
			}
			destdir, err = inv.ExpandPath(destdir)
			if err != nil {
				return nil, err
			}
			return fileset.NewMapper(sources, destdir, transform), nil
		},
	}
}

func iteratorOptions(inv *graph.Invocation) (fileset.Options, error) {
	recurse, err := inv.Args.Bool("recurse")
	if err != nil {
		return fileset.Options{}, err
	}
	opts := fileset.Options{Recurse: recurse, FileOnly: true}
	if inv.Args.Has("exclude") {
		exclude, err := expanded(inv, "exclude")
		if err != nil {
			return fileset.Options{}, err
		}
		if exclude == nil {
			exclude = []string{}
		}
		opts.Exclude = exclude
	}
	return opts, nil
}

func iterator(inv *graph.Invocation, name string, opts fileset.Options) (*fileset.Iterator, error) {
	values, err := expanded(inv, name)
	if err != nil {
		return nil, err
	}
	seeds := make([]any, len(values))
	for i, v := range values {
		seeds[i] = v
	}
	return fileset.New(inv.BaseDir, opts, seeds...)
}
