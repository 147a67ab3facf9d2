package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/JakeFAU/aqsharvest/internal/aqs"
	"github.com/JakeFAU/aqsharvest/internal/csvout"
	"github.com/JakeFAU/aqsharvest/internal/metrics"
	"github.com/JakeFAU/aqsharvest/internal/progress"
	"github.com/JakeFAU/aqsharvest/internal/publisher"
	"github.com/JakeFAU/aqsharvest/internal/storage"
)

// Manifest records written files.
type Manifest interface {
	RecordFile(ctx context.Context, rec FileRecord) error
}

// IDGenerator creates run and file IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// DriverOptions wires a Driver. Store, Source and IDs are required.
type DriverOptions struct {
	Store  storage.BlobStore
	Source DailySource
	State  string
	IDs    IDGenerator
	// Optional collaborators.
	Manifest    Manifest
	Notifier    publisher.Publisher
	NotifyTopic string
	Emitter     progress.Emitter
	Clock       clockwork.Clock
	Tracer      trace.Tracer
	Logger      *zap.Logger
}

// Driver executes planned Steps one at a time.
type Driver struct {
	store       storage.BlobStore
	writer      *csvout.Writer
	fetcher     *Fetcher
	state       string
	ids         IDGenerator
	manifest    Manifest
	notifier    publisher.Publisher
	notifyTopic string
	emitter     progress.Emitter
	clock       clockwork.Clock
	tracer      trace.Tracer
	logger      *zap.Logger
}

// NewDriver validates options and builds a Driver.
func NewDriver(opts DriverOptions) (*Driver, error) {
	if opts.Store == nil {
		return nil, errors.New("driver requires a blob store")
	}
	if opts.Source == nil {
		return nil, errors.New("driver requires a daily data source")
	}
	if opts.IDs == nil {
		return nil, errors.New("driver requires an id generator")
	}
	if opts.State == "" {
		opts.State = StateNewMexico
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Driver{
		store:       opts.Store,
		writer:      csvout.NewWriter(opts.Store),
		fetcher:     NewFetcher(opts.Source, opts.State, opts.Logger.Named("fetch")),
		state:       opts.State,
		ids:         opts.IDs,
		manifest:    opts.Manifest,
		notifier:    opts.Notifier,
		notifyTopic: opts.NotifyTopic,
		emitter:     opts.Emitter,
		clock:       opts.Clock,
		tracer:      opts.Tracer,
		logger:      opts.Logger,
	}, nil
}

// Sweep is the work of one run.
type Sweep struct {
	Profile string
	Steps   []Step
	Delay   time.Duration
}

// Run creates every directory of the sweep, then fetches each step, writes
// non-empty results and waits Delay between requests. Infrastructure failures
// are counted and the sweep continues; only cancellation stops it early, in
// which case the partial Summary is returned with the context error.
func (d *Driver) Run(ctx context.Context, sw Sweep) (Summary, error) {
	runID, err := d.ids.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("run id: %w", err)
	}
	sum := Summary{RunID: runID, Profile: sw.Profile, Started: d.clock.Now()}
	logger := d.logger.With(zap.String("run_id", runID), zap.String("profile", sw.Profile))
	runKey := runBytes(runID)
	ctx, span := d.tracer.Start(ctx, "harvest.sweep", trace.WithAttributes(
		attribute.String("harvest.run_id", runID),
		attribute.String("harvest.profile", sw.Profile),
		attribute.Int("harvest.requests", len(sw.Steps)),
	))
	defer span.End()

	d.emit(progress.Event{RunID: runKey, Stage: progress.StageRunStart, Profile: sw.Profile, Total: int64(len(sw.Steps))})
	logger.Info("sweep starting", zap.Int("requests", len(sw.Steps)), zap.Duration("delay", sw.Delay))

	for _, dir := range Dirs(sw.Steps) {
		if err := d.store.EnsureDir(ctx, dir); err != nil {
			sum.Failures++
			metrics.ObserveFailure(sw.Profile, "mkdir")
			logger.Error("create directory failed", zap.String("dir", dir), zap.Error(err))
		}
	}

	for i, step := range sw.Steps {
		if err := ctx.Err(); err != nil {
			return d.finish(span, logger, runKey, sum, err)
		}
		d.runStep(ctx, logger, runID, runKey, step, &sum)
		if err := ctx.Err(); err != nil {
			return d.finish(span, logger, runKey, sum, err)
		}
		if i < len(sw.Steps)-1 {
			if err := sleep(ctx, d.clock, sw.Delay); err != nil {
				return d.finish(span, logger, runKey, sum, err)
			}
		}
	}
	return d.finish(span, logger, runKey, sum, nil)
}

func (d *Driver) runStep(ctx context.Context, logger *zap.Logger, runID string, runKey [16]byte, step Step, sum *Summary) {
	ctx, span := d.tracer.Start(ctx, "harvest.step", trace.WithAttributes(
		attribute.String("harvest.group", step.Group),
		attribute.String("harvest.parameter", step.Param.Name),
		attribute.String("harvest.parameter_code", step.Param.Code),
		attribute.String("harvest.county", step.County.Name),
		attribute.String("harvest.period", step.Period.Label),
	))
	defer span.End()

	start := d.clock.Now()
	rows, failed := d.fetcher.Fetch(ctx, step)
	dur := d.clock.Since(start)
	sum.Requests++
	outcome := progress.ClassifyRows(len(rows), failed)
	span.SetAttributes(attribute.String("harvest.outcome", string(outcome)), attribute.Int("harvest.rows", len(rows)))
	if outcome == progress.OutcomeFailed {
		span.SetStatus(codes.Error, "fetch failed")
	}
	switch outcome {
	case progress.OutcomeData:
		sum.Data++
	case progress.OutcomeEmpty:
		sum.Empty++
	case progress.OutcomeFailed:
		sum.Failed++
	}

	if len(rows) > 0 {
		d.writeStep(ctx, logger, runID, step, rows, sum)
	}

	d.emit(progress.Event{
		RunID:     runKey,
		Stage:     progress.StageFetchDone,
		Profile:   sum.Profile,
		Group:     step.Group,
		Parameter: step.Param.Name,
		County:    step.County.Name,
		Period:    step.Period.Label,
		Rows:      int64(len(rows)),
		Outcome:   outcome,
		Dur:       dur,
	})
}

func (d *Driver) writeStep(ctx context.Context, logger *zap.Logger, runID string, step Step, rows []aqs.Row, sum *Summary) {
	fields := []zap.Field{zap.String("file", step.File), zap.Int("rows", len(rows))}
	uri, res, written, err := d.writer.Write(ctx, step.File, rows)
	if err != nil {
		sum.Failures++
		metrics.ObserveFailure(sum.Profile, "write")
		logger.Error("write csv failed", append(fields, zap.Error(err))...)
		return
	}
	if !written {
		return
	}
	sum.Files++
	sum.Rows += res.Rows
	sum.DroppedFields += res.DroppedFields
	metrics.ObserveFile(sum.Profile, res.Rows)
	if res.DroppedFields > 0 {
		logger.Warn("rows carried fields missing from the header", append(fields, zap.Int("dropped", res.DroppedFields))...)
	}
	logger.Debug("csv written", append(fields, zap.String("uri", uri))...)

	if d.manifest == nil && d.notifier == nil {
		return
	}
	fileID, err := d.ids.NewID()
	if err != nil {
		sum.Failures++
		logger.Error("file id failed", append(fields, zap.Error(err))...)
		return
	}
	rec := FileRecord{
		ID:            fileID,
		RunID:         runID,
		Profile:       sum.Profile,
		Group:         step.Group,
		Parameter:     step.Param.Name,
		ParameterCode: step.Param.Code,
		State:         d.state,
		CountyCode:    step.County.Code,
		County:        step.County.Name,
		Period:        step.Period.Label,
		BDate:         step.Period.BDate,
		EDate:         step.Period.EDate,
		Rows:          res.Rows,
		Columns:       res.Header,
		URI:           uri,
		WrittenAt:     d.clock.Now().UTC(),
	}
	if d.manifest != nil {
		if err := d.manifest.RecordFile(ctx, rec); err != nil {
			sum.Failures++
			metrics.ObserveFailure(sum.Profile, "manifest")
			logger.Error("record manifest failed", append(fields, zap.Error(err))...)
		}
	}
	if d.notifier != nil {
		if _, err := d.notifier.Publish(ctx, d.notifyTopic, rec); err != nil {
			sum.Failures++
			metrics.ObserveFailure(sum.Profile, "notify")
			logger.Error("publish notification failed", append(fields, zap.Error(err))...)
		}
	}
}

func (d *Driver) finish(span trace.Span, logger *zap.Logger, runKey [16]byte, sum Summary, cause error) (Summary, error) {
	sum.Finished = d.clock.Now()
	span.SetAttributes(
		attribute.Int("harvest.files", sum.Files),
		attribute.Int("harvest.rows", sum.Rows),
		attribute.Int("harvest.failures", sum.Failures),
	)
	fields := []zap.Field{
		zap.Int("requests", sum.Requests),
		zap.Int("with_data", sum.Data),
		zap.Int("empty", sum.Empty),
		zap.Int("failed", sum.Failed),
		zap.Int("files", sum.Files),
		zap.Int("rows", sum.Rows),
		zap.Int("failures", sum.Failures),
		zap.Duration("elapsed", sum.Duration()),
	}
	if cause != nil {
		span.RecordError(cause)
		span.SetStatus(codes.Error, cause.Error())
		d.emit(progress.Event{RunID: runKey, Stage: progress.StageRunError, Profile: sum.Profile, Dur: sum.Duration(), Note: cause.Error()})
		logger.Warn("sweep interrupted", append(fields, zap.Error(cause))...)
		return sum, fmt.Errorf("sweep %s: %w", sum.RunID, cause)
	}
	d.emit(progress.Event{RunID: runKey, Stage: progress.StageRunDone, Profile: sum.Profile, Dur: sum.Duration()})
	logger.Info("sweep finished", fields...)
	return sum, nil
}

func (d *Driver) emit(evt progress.Event) {
	if d.emitter == nil {
		return
	}
	evt.TS = d.clock.Now().UTC()
	d.emitter.Emit(evt)
}

// runBytes converts a run ID to the progress form. Non-UUID IDs hash to a
// name-based UUID so events still validate.
func runBytes(id string) [16]byte {
	parsed, err := uuid.Parse(id)
	if err != nil {
		parsed = uuid.NewSHA1(uuid.NameSpaceOID, []byte(id))
	}
	return progress.UUIDToBytes(parsed)
}
