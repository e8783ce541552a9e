package fileset

import (
	"context"

	"go.trai.ch/bake/internal/core/domain"
)

// Uptodate compares a set of sources with a set of destinations. It is up to date
// when both sets are non-empty and the oldest destination is at least as new as
// the newest source.
type Uptodate struct {
	Sources      *Iterator
	Destinations *Iterator
}

// NewUptodate creates an Uptodate. Declaring no destinations is an error.
func NewUptodate(sources, destinations *Iterator) (*Uptodate, error) {
	if destinations == nil || len(destinations.seeds) == 0 {
		return nil, domain.ErrEmptyDestinations
	}
	return &Uptodate{Sources: sources, Destinations: destinations}, nil
}

// UpToDate evaluates the check. Destinations that expand to nothing force a rebuild;
// sources that expand to nothing while destinations exist are an error.
func (u *Uptodate) UpToDate(ctx context.Context) (bool, error) {
	oldest, found, err := extreme(ctx, u.Destinations, func(a, b int64) bool { return a < b })
	if err != nil || !found {
		return false, err
	}

	var newest int64
	found = false
	if u.Sources != nil {
		newest, found, err = extreme(ctx, u.Sources, func(a, b int64) bool { return a > b })
		if err != nil {
			return false, err
		}
	}
	if !found {
		return false, domain.Detail(domain.ErrEmptySources, "destinations", len(u.Destinations.seeds))
	}
	return oldest >= newest, nil
}

// extreme returns the rounded modification time preferred by better among the
// existing entries of it.
func extreme(ctx context.Context, it *Iterator, better func(a, b int64) bool) (int64, bool, error) {
	var (
		best  int64
		found bool
	)
	for p, err := range it.All(ctx) {
		if err != nil {
			return 0, false, err
		}
		mtime, ok := p.ModTime()
		if !ok {
			continue
		}
		if r := Round(mtime); !found || better(r, best) {
			best, found = r, true
		}
	}
	return best, found, nil
}
