package harvest

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ConfirmFunc is shown the resolved groups and decides whether to download.
type ConfirmFunc func(ctx context.Context, groups []Group) (bool, error)

// Runner resolves, plans and sweeps a Profile.
type Runner struct {
	resolver *Resolver
	driver   *Driver
	counties []County
	logger   *zap.Logger
}

// NewRunner builds a Runner over the given counties.
func NewRunner(resolver *Resolver, driver *Driver, counties []County, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{resolver: resolver, driver: driver, counties: counties, logger: logger}
}

// Resolve returns the profile's groups and applies the abort rule: with
// AbortOnEmpty, no parameters is ErrNoParameters; otherwise it is a warning
// and the caller gets the empty groups.
func (r *Runner) Resolve(ctx context.Context, p Profile) ([]Group, error) {
	groups, err := r.resolver.Resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	if CountParameters(groups) > 0 {
		return groups, nil
	}
	if p.AbortOnEmpty {
		return nil, fmt.Errorf("profile %s: %w; check the AQS credentials and connection", p.Name, ErrNoParameters)
	}
	r.logger.Warn("no parameters resolved; sweep will make no requests",
		zap.String("profile", p.Name), zap.Strings("classes", p.Classes))
	return groups, nil
}

// Plan builds the sweep for already resolved groups.
func (r *Runner) Plan(p Profile, groups []Group) Sweep {
	steps := p.Layout.Plan(groups, r.counties, p.Years)
	if p.Aggregate {
		steps = append(steps, p.Layout.PlanAggregate(groups, r.counties, p.Years)...)
	}
	return Sweep{Profile: p.Name, Steps: steps, Delay: p.Delay}
}

// Run resolves the profile, asks confirm (when non-nil) and sweeps.
func (r *Runner) Run(ctx context.Context, p Profile, confirm ConfirmFunc) (Summary, error) {
	if err := p.Validate(); err != nil {
		return Summary{}, err
	}
	groups, err := r.Resolve(ctx, p)
	if err != nil {
		return Summary{}, err
	}
	if confirm != nil {
		ok, err := confirm(ctx, groups)
		if err != nil {
			return Summary{}, fmt.Errorf("confirm download: %w", err)
		}
		if !ok {
			return Summary{}, ErrCancelled
		}
	}
	return r.driver.Run(ctx, r.Plan(p, groups))
}
