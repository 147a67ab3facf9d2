package harvest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/aqsharvest/internal/aqs"
	"github.com/JakeFAU/aqsharvest/internal/progress"
	pubmemory "github.com/JakeFAU/aqsharvest/internal/publisher/memory"
	"github.com/JakeFAU/aqsharvest/internal/storage/memory"
)

var (
	bernalillo = County{Code: "001", Name: "Bernalillo"}
	catron     = County{Code: "003", Name: "Catron"}
	pm10       = aqs.Parameter{Name: "PM10 Mass Data", Code: "81102"}
)

func gasSweep(years YearRange, counties ...County) Sweep {
	l := Layout{Kind: GasTree, Base: "AQI Data/Criteria Gases"}
	groups := []Group{{Name: "Criteria Gases", Params: aqs.NewParameterSet(pm10)}}
	return Sweep{Profile: ProfileParticulates, Steps: l.Plan(groups, counties, years)}
}

type driverFixture struct {
	store    *memory.BlobStore
	source   *fakeSource
	emitter  *recordingEmitter
	manifest *fakeManifest
	notifier *pubmemory.Publisher
	clock    *clockwork.FakeClock
	driver   *Driver
}

func newDriverFixture(t *testing.T, withSinks bool) *driverFixture {
	t.Helper()
	f := &driverFixture{
		store:   memory.NewBlobStore(),
		source:  &fakeSource{rows: map[string][]aqs.Row{}, errs: map[string]error{}},
		emitter: &recordingEmitter{},
		clock:   clockwork.NewFakeClockAt(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)),
	}
	opts := DriverOptions{
		Store:   f.store,
		Source:  f.source,
		IDs:     &seqIDs{},
		Emitter: f.emitter,
		Clock:   f.clock,
	}
	if withSinks {
		f.manifest = &fakeManifest{}
		f.notifier = pubmemory.New()
		opts.Manifest = f.manifest
		opts.Notifier = f.notifier
		opts.NotifyTopic = "aqs-files"
	}
	d, err := NewDriver(opts)
	require.NoError(t, err)
	f.driver = d
	return f
}

func TestDriverWritesBernalilloExample(t *testing.T) {
	t.Parallel()

	f := newDriverFixture(t, false)
	f.source.rows[sourceKey("81102", "001", "20200101")] = []aqs.Row{aqs.NewRow("date", "2020-01-01", "value", "12")}

	sum, err := f.driver.Run(context.Background(), gasSweep(YearRange{Start: 2020, End: 2020}, bernalillo))
	require.NoError(t, err)

	body, ok := f.store.Object("AQI Data/Criteria Gases/PM10 Mass Data/Bernalillo/Bernalillo_2020.csv")
	require.True(t, ok)
	assert.Equal(t, "date,value\n2020-01-01,12\n", string(body))

	assert.Equal(t, 1, sum.Requests)
	assert.Equal(t, 1, sum.Data)
	assert.Equal(t, 1, sum.Files)
	assert.Equal(t, 1, sum.Rows)
	assert.Zero(t, sum.Failures)

	q := f.source.Queries()
	require.Len(t, q, 1)
	assert.Equal(t, aqs.DailyQuery{Param: "81102", BDate: "20200101", EDate: "20201231", State: "35", County: "001"}, q[0])
}

func TestDriverSkipsEmptyAndFailedResults(t *testing.T) {
	t.Parallel()

	f := newDriverFixture(t, false)
	f.source.errs[sourceKey("81102", "003", "20200101")] = &aqs.StatusError{Code: 500}

	sum, err := f.driver.Run(context.Background(), gasSweep(YearRange{Start: 2020, End: 2020}, bernalillo, catron))
	require.NoError(t, err)

	assert.Empty(t, f.store.Paths(), "no file may be written for empty results")
	assert.Equal(t, 2, sum.Requests)
	assert.Equal(t, 1, sum.Empty)
	assert.Equal(t, 1, sum.Failed)
	assert.Zero(t, sum.Files)
	assert.Zero(t, sum.Failures, "request failures are not infrastructure failures")
}

func TestDriverCreatesEachDirectoryOnce(t *testing.T) {
	t.Parallel()

	f := newDriverFixture(t, false)
	_, err := f.driver.Run(context.Background(), gasSweep(YearRange{Start: 2010, End: 2014}, bernalillo, catron))
	require.NoError(t, err)

	assert.Equal(t, map[string]int{
		"AQI Data/Criteria Gases/PM10 Mass Data/Bernalillo": 1,
		"AQI Data/Criteria Gases/PM10 Mass Data/Catron":     1,
	}, f.store.Dirs())
}

func TestDriverWaitsDelayBetweenRequests(t *testing.T) {
	t.Parallel()

	f := newDriverFixture(t, false)
	sw := gasSweep(YearRange{Start: 2020, End: 2022}, bernalillo)
	sw.Delay = 5 * time.Second

	done := make(chan Summary, 1)
	go func() {
		sum, err := f.driver.Run(context.Background(), sw)
		assert.NoError(t, err)
		done <- sum
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 1; i <= 2; i++ {
		require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
		assert.Len(t, f.source.Queries(), i, "next request must wait for the delay")
		f.clock.Advance(5 * time.Second)
	}

	sum := <-done
	assert.Equal(t, 3, sum.Requests)
	assert.Equal(t, 10*time.Second, sum.Duration())
}

func TestDriverStopsOnCancellation(t *testing.T) {
	t.Parallel()

	f := newDriverFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	f.source.onFetch = cancel

	sum, err := f.driver.Run(ctx, gasSweep(YearRange{Start: 2020, End: 2022}, bernalillo))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, sum.Requests)

	events := f.emitter.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, progress.StageRunError, events[len(events)-1].Stage)
}

func TestDriverRecordsManifestAndNotifies(t *testing.T) {
	t.Parallel()

	f := newDriverFixture(t, true)
	f.source.rows[sourceKey("81102", "001", "20200101")] = []aqs.Row{
		aqs.NewRow("date_local", "2020-01-01", "arithmetic_mean", "7.5"),
		aqs.NewRow("date_local", "2020-01-02", "arithmetic_mean", "8"),
	}

	sum, err := f.driver.Run(context.Background(), gasSweep(YearRange{Start: 2020, End: 2020}, bernalillo))
	require.NoError(t, err)
	assert.Zero(t, sum.Failures)

	require.Len(t, f.manifest.records, 1)
	rec := f.manifest.records[0]
	assert.Equal(t, sum.RunID, rec.RunID)
	assert.NotEqual(t, rec.RunID, rec.ID)
	assert.Equal(t, ProfileParticulates, rec.Profile)
	assert.Equal(t, "81102", rec.ParameterCode)
	assert.Equal(t, "001", rec.CountyCode)
	assert.Equal(t, "2020", rec.Period)
	assert.Equal(t, 2, rec.Rows)
	assert.Equal(t, []string{"date_local", "arithmetic_mean"}, rec.Columns)
	assert.Equal(t, "memory://AQI Data/Criteria Gases/PM10 Mass Data/Bernalillo/Bernalillo_2020.csv", rec.URI)
	assert.Equal(t, f.clock.Now().UTC(), rec.WrittenAt)

	msgs := f.notifier.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "aqs-files", msgs[0].Topic)
	assert.Equal(t, rec, msgs[0].Payload)
}

func TestDriverCountsInfrastructureFailures(t *testing.T) {
	t.Parallel()

	f := newDriverFixture(t, true)
	f.manifest.err = errors.New("db down")
	f.notifier.FailWith(errors.New("broker down"))
	f.source.rows[sourceKey("81102", "001", "20200101")] = []aqs.Row{aqs.NewRow("a", "1")}

	sum, err := f.driver.Run(context.Background(), gasSweep(YearRange{Start: 2020, End: 2020}, bernalillo))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Files)
	assert.Equal(t, 2, sum.Failures)
}

func TestDriverEmitsProgress(t *testing.T) {
	t.Parallel()

	f := newDriverFixture(t, false)
	f.source.rows[sourceKey("81102", "003", "20210101")] = []aqs.Row{aqs.NewRow("a", "1"), aqs.NewRow("a", "2")}

	_, err := f.driver.Run(context.Background(), gasSweep(YearRange{Start: 2021, End: 2021}, bernalillo, catron))
	require.NoError(t, err)

	events := f.emitter.Events()
	require.Len(t, events, 4)
	assert.Equal(t, progress.StageRunStart, events[0].Stage)
	assert.Equal(t, int64(2), events[0].Total)
	assert.Equal(t, progress.OutcomeEmpty, events[1].Outcome)
	assert.Equal(t, progress.OutcomeData, events[2].Outcome)
	assert.Equal(t, int64(2), events[2].Rows)
	assert.Equal(t, "Catron", events[2].County)
	assert.Equal(t, progress.StageRunDone, events[3].Stage)
	for _, evt := range events {
		assert.NoError(t, evt.Validate())
	}
}

func TestNewDriverValidation(t *testing.T) {
	t.Parallel()

	_, err := NewDriver(DriverOptions{})
	assert.Error(t, err)
	_, err = NewDriver(DriverOptions{Store: memory.NewBlobStore()})
	assert.Error(t, err)
	_, err = NewDriver(DriverOptions{Store: memory.NewBlobStore(), Source: &fakeSource{}})
	assert.Error(t, err)
}

func TestRunBytesAcceptsNonUUID(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, [16]byte{}, runBytes("not-a-uuid"))
	assert.Equal(t, runBytes("x"), runBytes("x"))
}
