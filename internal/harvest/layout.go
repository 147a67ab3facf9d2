package harvest

import (
	"fmt"
	"path"
	"strings"

	"github.com/JakeFAU/aqsharvest/internal/aqs"
)

const invalidFolderChars = `<>:"/\|?*`

// SanitizeFolderName removes characters that are invalid in folder names on
// common filesystems and trims surrounding whitespace. It is idempotent.
func SanitizeFolderName(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalidFolderChars, r) {
			return -1
		}
		return r
	}, name)
	return strings.TrimSpace(name)
}

// LayoutKind selects how output paths are built.
type LayoutKind string

// Supported layouts.
const (
	// ClassTree: <base>/<class>/<county>/<param>/<param>_<county>_<year>.csv
	ClassTree LayoutKind = "class"
	// GasTree: <base>/<param>/<county>/<county>_<year>.csv
	GasTree LayoutKind = "gas"
)

// ParseLayoutKind validates a configured layout name.
func ParseLayoutKind(s string) (LayoutKind, error) {
	switch LayoutKind(strings.ToLower(strings.TrimSpace(s))) {
	case ClassTree:
		return ClassTree, nil
	case GasTree:
		return GasTree, nil
	default:
		return "", fmt.Errorf("unknown layout %q", s)
	}
}

// Step is one planned dailyData request and where its result goes.
type Step struct {
	Group  string
	Param  aqs.Parameter
	County County
	Period Period
	// Dir is the directory that holds File.
	Dir  string
	File string
}

// Layout maps groups, counties and periods onto ordered Steps.
type Layout struct {
	Kind LayoutKind
	Base string
}

func (l Layout) join(parts ...string) string {
	segs := make([]string, 0, len(parts)+1)
	if b := strings.Trim(l.Base, "/"); b != "" {
		segs = append(segs, b)
	}
	for _, p := range parts {
		seg := SanitizeFolderName(p)
		if seg == "" {
			seg = "_"
		}
		segs = append(segs, seg)
	}
	return path.Join(segs...)
}

// ParamDir is the directory for a (group, county, parameter) triple.
func (l Layout) ParamDir(group, county, param string) string {
	if l.Kind == GasTree {
		return l.join(param, county)
	}
	return l.join(group, county, param)
}

// YearFile is the per-period file path.
func (l Layout) YearFile(group, county, param string, p Period) string {
	c := SanitizeFolderName(county)
	if l.Kind == GasTree {
		return path.Join(l.ParamDir(group, county, param), fmt.Sprintf("%s_%s.csv", c, p.Label))
	}
	prm := SanitizeFolderName(param)
	return path.Join(l.ParamDir(group, county, param), fmt.Sprintf("%s_%s_%s.csv", prm, c, p.Label))
}

// AggregateFile is the whole-range file, stored beside the parameter folders.
func (l Layout) AggregateFile(group, county, param string, p Period) string {
	c := SanitizeFolderName(county)
	prm := SanitizeFolderName(param)
	if l.Kind == GasTree {
		return path.Join(l.join(param, county), fmt.Sprintf("%s_%s.csv", c, p.Label))
	}
	return path.Join(l.join(group, county), fmt.Sprintf("%s_%s_%s.csv", prm, c, p.Label))
}

// Plan expands the per-year sweep. The class tree iterates
// group, county, parameter, year; the gas tree iterates parameter, county, year.
func (l Layout) Plan(groups []Group, counties []County, years YearRange) []Step {
	periods := years.Periods()
	var steps []Step
	for _, g := range groups {
		params := g.Params.Parameters()
		if l.Kind == GasTree {
			for _, prm := range params {
				for _, c := range counties {
					for _, p := range periods {
						steps = append(steps, l.yearStep(g.Name, prm, c, p))
					}
				}
			}
			continue
		}
		for _, c := range counties {
			for _, prm := range params {
				for _, p := range periods {
					steps = append(steps, l.yearStep(g.Name, prm, c, p))
				}
			}
		}
	}
	return steps
}

// PlanAggregate expands the whole-range sweep: group, parameter, county.
func (l Layout) PlanAggregate(groups []Group, counties []County, years YearRange) []Step {
	p := years.Aggregate()
	var steps []Step
	for _, g := range groups {
		for _, prm := range g.Params.Parameters() {
			for _, c := range counties {
				file := l.AggregateFile(g.Name, c.Name, prm.Name, p)
				steps = append(steps, Step{
					Group:  g.Name,
					Param:  prm,
					County: c,
					Period: p,
					Dir:    path.Dir(file),
					File:   file,
				})
			}
		}
	}
	return steps
}

func (l Layout) yearStep(group string, prm aqs.Parameter, c County, p Period) Step {
	return Step{
		Group:  group,
		Param:  prm,
		County: c,
		Period: p,
		Dir:    l.ParamDir(group, c.Name, prm.Name),
		File:   l.YearFile(group, c.Name, prm.Name, p),
	}
}

// Dirs lists the distinct directories of steps in first-seen order.
func Dirs(steps []Step) []string {
	seen := make(map[string]struct{}, len(steps))
	var out []string
	for _, s := range steps {
		if _, ok := seen[s.Dir]; ok {
			continue
		}
		seen[s.Dir] = struct{}{}
		out = append(out, s.Dir)
	}
	return out
}
