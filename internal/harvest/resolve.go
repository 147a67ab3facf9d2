package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/aqsharvest/internal/aqs"
)

// ParameterLister looks up the parameters of a class.
type ParameterLister interface {
	ParametersByClass(ctx context.Context, class string) (aqs.ParameterSet, error)
}

// DefaultResolveWorkers bounds concurrent class lookups.
const DefaultResolveWorkers = 10

// ResolverConfig tunes a Resolver.
type ResolverConfig struct {
	Workers int
	// Delay is waited by each worker after its lookup completes.
	Delay time.Duration
	Clock clockwork.Clock
}

// Resolver turns parameter classes into Groups.
type Resolver struct {
	lister  ParameterLister
	workers int
	delay   time.Duration
	clock   clockwork.Clock
	logger  *zap.Logger
}

// NewResolver builds a Resolver.
func NewResolver(lister ParameterLister, cfg ResolverConfig, logger *zap.Logger) *Resolver {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultResolveWorkers
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		lister:  lister,
		workers: cfg.Workers,
		delay:   cfg.Delay,
		clock:   cfg.Clock,
		logger:  logger,
	}
}

// ResolveConcurrent looks up each class on a bounded pool and returns one
// Group per class that resolved, in the order of classes. Classes that fail
// are dropped with a warning. Only context cancellation is returned as an error.
func (r *Resolver) ResolveConcurrent(ctx context.Context, classes []string) ([]Group, error) {
	classes = dedupe(classes)
	results := make([]*aqs.ParameterSet, len(classes))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.workers)
	for i, class := range classes {
		eg.Go(func() error {
			set, err := r.lister.ParametersByClass(egCtx, class)
			if err != nil {
				if egCtx.Err() != nil {
					return egCtx.Err()
				}
				r.logFailure(class, err)
			} else {
				results[i] = &set
			}
			return sleep(egCtx, r.clock, r.delay)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("resolve parameter classes: %w", err)
	}

	groups := make([]Group, 0, len(classes))
	for i, class := range classes {
		if results[i] == nil {
			continue
		}
		groups = append(groups, Group{Name: class, Params: *results[i]})
	}
	return groups, nil
}

// ResolveMerged looks up classes one at a time and merges them, in order,
// into a single Group named name. A failed class contributes nothing.
func (r *Resolver) ResolveMerged(ctx context.Context, name string, classes []string) ([]Group, error) {
	var merged aqs.ParameterSet
	for _, class := range dedupe(classes) {
		set, err := r.lister.ParametersByClass(ctx, class)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("resolve parameter class %s: %w", class, ctx.Err())
			}
			r.logFailure(class, err)
			continue
		}
		merged.Merge(set)
	}
	return []Group{{Name: name, Params: merged}}, nil
}

// Resolve dispatches on the profile's resolution mode.
func (r *Resolver) Resolve(ctx context.Context, p Profile) ([]Group, error) {
	switch p.Resolution {
	case ResolveFixed:
		return []Group{{Name: p.GroupName, Params: aqs.NewParameterSet(p.Parameters...)}}, nil
	case ResolveConcurrent:
		return r.ResolveConcurrent(ctx, p.Classes)
	case ResolveMerged:
		return r.ResolveMerged(ctx, p.GroupName, p.Classes)
	default:
		return nil, fmt.Errorf("unknown resolution %q", p.Resolution)
	}
}

func (r *Resolver) logFailure(class string, err error) {
	fields := []zap.Field{zap.String("class", class), zap.Error(err)}
	var statusErr *aqs.StatusError
	if errors.As(err, &statusErr) {
		fields = append(fields, zap.Int("http_status", statusErr.Code))
		r.logger.Warn("parameter class rejected; check the AQS email and key", fields...)
		return
	}
	r.logger.Warn("parameter class lookup failed", fields...)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// sleep waits d on clock or until ctx is done.
func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
