// Package progrock provides the Progrock implementation of the telemetry adapter.
package progrock

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/opencontainers/go-digest"
	"github.com/vito/progrock"
	"go.trai.ch/bake/internal/core/ports"
)

// Recorder implements the ports.Telemetry interface using the vito/progrock library.
// Every Record call creates a distinct vertex, so a task run twice shows up twice.
type Recorder struct {
	w   progrock.Writer
	rec *progrock.Recorder
	seq atomic.Uint64
}

// New creates a new Recorder with a default in-memory tape.
func New() ports.Telemetry {
	return NewRecorder(progrock.NewTape())
}

// NewRecorder creates a new Recorder with the given writer.
func NewRecorder(w progrock.Writer) *Recorder {
	return &Recorder{
		w:   w,
		rec: progrock.NewRecorder(w),
	}
}

// Record starts recording a new vertex. A vertex started with a group is linked to
// the vertex carried by ctx as its input.
func (r *Recorder) Record(ctx context.Context, name string, opts ...ports.VertexOption) (context.Context, ports.Vertex) {
	var cfg ports.VertexConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var vopts []progrock.VertexOpt
	if cfg.Group != "" {
		if parent, ok := ports.VertexFromContext(ctx); ok {
			if pv, ok := parent.(*Vertex); ok {
				vopts = append(vopts, progrock.WithInputs(pv.digest))
			}
		}
	}

	d := digest.FromString(name + "#" + strconv.FormatUint(r.seq.Add(1), 10))
	vertex := &Vertex{vertex: r.rec.Vertex(d, name, vopts...), digest: d}
	return ports.ContextWithVertex(ctx, vertex), vertex
}

// Close flushes and closes the recording session.
func (r *Recorder) Close() error {
	if c, ok := r.w.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
