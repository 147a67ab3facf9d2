package harvest

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/aqsharvest/internal/aqs"
)

// DailySource returns the daily rows for one county query.
type DailySource interface {
	DailyByCounty(ctx context.Context, q aqs.DailyQuery) ([]aqs.Row, error)
}

// Fetcher runs one Step's request and collapses every failure to "no rows".
type Fetcher struct {
	source DailySource
	state  string
	logger *zap.Logger
}

// NewFetcher builds a Fetcher for counties in state.
func NewFetcher(source DailySource, state string, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{source: source, state: state, logger: logger}
}

// Fetch returns the step's rows. failed reports whether the empty result came
// from an error rather than from the API having no data.
func (f *Fetcher) Fetch(ctx context.Context, s Step) (rows []aqs.Row, failed bool) {
	rows, err := f.source.DailyByCounty(ctx, aqs.DailyQuery{
		Param:  s.Param.Code,
		BDate:  s.Period.BDate,
		EDate:  s.Period.EDate,
		State:  f.state,
		County: s.County.Code,
	})
	if err == nil {
		return rows, false
	}

	fields := []zap.Field{
		zap.String("parameter", s.Param.Name),
		zap.String("parameter_code", s.Param.Code),
		zap.String("county", s.County.Name),
		zap.String("period", s.Period.Label),
	}
	var statusErr *aqs.StatusError
	switch {
	case ctx.Err() != nil:
		// cancellation is reported by the driver
	case errors.As(err, &statusErr):
		f.logger.Warn("daily data request rejected", append(fields, zap.Int("http_status", statusErr.Code), zap.String("body", statusErr.Body))...)
	case errors.Is(err, aqs.ErrMissingData):
		f.logger.Info("no data found", fields...)
		return nil, false
	default:
		f.logger.Warn("daily data request failed", append(fields, zap.Error(err))...)
	}
	return nil, true
}
