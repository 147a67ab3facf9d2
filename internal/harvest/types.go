package harvest

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/JakeFAU/aqsharvest/internal/aqs"
)

var (
	// ErrNoParameters aborts a run whose resolution produced no parameters.
	ErrNoParameters = errors.New("no parameters resolved")
	// ErrCancelled reports that the operator declined the download.
	ErrCancelled = errors.New("download cancelled")
)

// County is a county within the configured state.
type County struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// YearRange is an inclusive span of calendar years.
type YearRange struct {
	Start int
	End   int
}

// Validate checks that the range is ordered and plausible.
func (r YearRange) Validate() error {
	if r.Start <= 0 || r.End <= 0 {
		return fmt.Errorf("year range %d-%d: years must be positive", r.Start, r.End)
	}
	if r.End < r.Start {
		return fmt.Errorf("year range %d-%d: end year precedes start year", r.Start, r.End)
	}
	return nil
}

// Len is the number of years in the range.
func (r YearRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Periods expands the range into one Period per year.
func (r YearRange) Periods() []Period {
	out := make([]Period, 0, r.Len())
	for y := r.Start; y <= r.End; y++ {
		out = append(out, YearPeriod(y))
	}
	return out
}

// Aggregate returns the single Period covering the whole range.
func (r YearRange) Aggregate() Period {
	return Period{
		Label:     fmt.Sprintf("%d-%d", r.Start, r.End),
		BDate:     fmt.Sprintf("%04d0101", r.Start),
		EDate:     fmt.Sprintf("%04d1231", r.End),
		Aggregate: true,
	}
}

// Period is the bdate/edate window of one request.
type Period struct {
	Label     string
	BDate     string
	EDate     string
	Aggregate bool
}

// YearPeriod covers January 1 through December 31 of year.
func YearPeriod(year int) Period {
	return Period{
		Label: strconv.Itoa(year),
		BDate: fmt.Sprintf("%04d0101", year),
		EDate: fmt.Sprintf("%04d1231", year),
	}
}

// Group is a named set of parameters swept together: a parameter class, or
// the merged set of a gas-tree profile.
type Group struct {
	Name   string
	Params aqs.ParameterSet
}

// CountParameters sums the parameters across groups.
func CountParameters(groups []Group) int {
	n := 0
	for _, g := range groups {
		n += g.Params.Len()
	}
	return n
}

// Summary reports what a sweep did.
type Summary struct {
	RunID    string
	Profile  string
	Requests int
	// Data, Empty and Failed partition Requests by outcome.
	Data   int
	Empty  int
	Failed int
	Files  int
	Rows   int
	// Failures counts directory, write, manifest and notify errors.
	Failures      int
	DroppedFields int
	Started       time.Time
	Finished      time.Time
}

// Duration is the wall time of the sweep.
func (s Summary) Duration() time.Duration {
	if s.Finished.Before(s.Started) {
		return 0
	}
	return s.Finished.Sub(s.Started)
}

// FileRecord describes one written CSV. It is the manifest row and the
// notification payload.
type FileRecord struct {
	ID            string    `json:"id"`
	RunID         string    `json:"run_id"`
	Profile       string    `json:"profile"`
	Group         string    `json:"group"`
	Parameter     string    `json:"parameter"`
	ParameterCode string    `json:"parameter_code"`
	State         string    `json:"state"`
	CountyCode    string    `json:"county_code"`
	County        string    `json:"county"`
	Period        string    `json:"period"`
	BDate         string    `json:"bdate"`
	EDate         string    `json:"edate"`
	Rows          int       `json:"rows"`
	Columns       []string  `json:"columns"`
	URI           string    `json:"uri"`
	WrittenAt     time.Time `json:"written_at"`
}

// MessageKey keeps a run's notifications on one partition.
func (r FileRecord) MessageKey() string {
	return r.RunID
}

// MessageAttributes exposes routing fields without decoding the body.
func (r FileRecord) MessageAttributes() map[string]string {
	return map[string]string{
		"profile":        r.Profile,
		"parameter_code": r.ParameterCode,
		"county_code":    r.CountyCode,
		"period":         r.Period,
	}
}
