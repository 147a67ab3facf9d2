package harvest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/JakeFAU/aqsharvest/internal/aqs"
)

// Resolution selects how a profile obtains its parameters.
type Resolution string

// Resolution modes.
const (
	// ResolveFixed uses Profile.Parameters as a single group.
	ResolveFixed Resolution = "fixed"
	// ResolveConcurrent resolves each class on a bounded pool; one group per class.
	ResolveConcurrent Resolution = "concurrent"
	// ResolveMerged resolves classes in order and merges them into one group.
	ResolveMerged Resolution = "merged"
)

// Built-in profile names.
const (
	ProfileHarvest      = "harvest"
	ProfileParticulates = "particulates"
	ProfileToxics       = "toxics"
)

// Profile is a named sweep configuration.
type Profile struct {
	Name       string
	Layout     Layout
	Resolution Resolution
	// Classes are resolved for concurrent and merged modes.
	Classes []string
	// Parameters are used as-is for fixed mode.
	Parameters []aqs.Parameter
	// GroupName labels the single group of fixed and merged modes.
	GroupName string
	Years     YearRange
	// AbortOnEmpty stops the run before any fetch when nothing resolves.
	AbortOnEmpty bool
	// Aggregate adds the whole-range sweep after the per-year sweep.
	Aggregate bool
	// Interactive prompts for missing credentials, years, classes and confirmation.
	Interactive bool
	// Delay is the pause after each request.
	Delay time.Duration
}

// DefaultDelay is the pause the AQS usage policy asks for between requests.
const DefaultDelay = 5 * time.Second

// HarvestProfile is the interactive multi-class sweep.
func HarvestProfile() Profile {
	return Profile{
		Name:         ProfileHarvest,
		Layout:       Layout{Kind: ClassTree, Base: "AQI Data"},
		Resolution:   ResolveConcurrent,
		AbortOnEmpty: true,
		Aggregate:    true,
		Interactive:  true,
		Delay:        DefaultDelay,
	}
}

// ParticulatesProfile sweeps the fixed particulate matter parameters.
func ParticulatesProfile() Profile {
	return Profile{
		Name:       ProfileParticulates,
		Layout:     Layout{Kind: GasTree, Base: "AQI Data/Criteria Gases"},
		Resolution: ResolveFixed,
		Parameters: []aqs.Parameter{
			{Name: "PM2.5 FRM_FEM Mass Data", Code: "88101"},
			{Name: "PM2.5 non_FRM_FEM Mass Data", Code: "88502"},
			{Name: "PM10 Mass Data", Code: "81102"},
			{Name: "PMc Mass Data", Code: "86101"},
		},
		GroupName: "Criteria Gases",
		Years:     YearRange{Start: 2010, End: 2022},
		Delay:     DefaultDelay,
	}
}

// ToxicsProfile sweeps the merged HAPS and VOC classes.
func ToxicsProfile() Profile {
	return Profile{
		Name:       ProfileToxics,
		Layout:     Layout{Kind: GasTree, Base: "AQI Data/toxics"},
		Resolution: ResolveMerged,
		Classes:    []string{"HAPS", "VOC"},
		GroupName:  "toxics",
		Years:      YearRange{Start: 2010, End: 2022},
		Delay:      DefaultDelay,
	}
}

// BuiltinProfiles returns the built-in profiles keyed by name.
func BuiltinProfiles() map[string]Profile {
	return map[string]Profile{
		ProfileHarvest:      HarvestProfile(),
		ProfileParticulates: ParticulatesProfile(),
		ProfileToxics:       ToxicsProfile(),
	}
}

// LookupProfile returns a built-in profile.
func LookupProfile(name string) (Profile, error) {
	p, ok := BuiltinProfiles()[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		names := make([]string, 0, 3)
		for n := range BuiltinProfiles() {
			names = append(names, n)
		}
		sort.Strings(names)
		return Profile{}, fmt.Errorf("unknown profile %q (want one of %s)", name, strings.Join(names, ", "))
	}
	return p, nil
}

// Validate checks that the profile can be planned.
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if _, err := ParseLayoutKind(string(p.Layout.Kind)); err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}
	if err := p.Years.Validate(); err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}
	if p.Delay < 0 {
		return fmt.Errorf("profile %s: delay must be >= 0", p.Name)
	}
	switch p.Resolution {
	case ResolveFixed:
		if len(p.Parameters) == 0 {
			return fmt.Errorf("profile %s: fixed resolution needs parameters", p.Name)
		}
	case ResolveConcurrent, ResolveMerged:
		if len(p.Classes) == 0 {
			return fmt.Errorf("profile %s: no parameter classes selected", p.Name)
		}
	default:
		return fmt.Errorf("profile %s: unknown resolution %q", p.Name, p.Resolution)
	}
	return nil
}
