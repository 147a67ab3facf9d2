package aqs

// Parameter pairs a human-readable pollutant name with its AQS parameter code.
type Parameter struct {
	Name string
	Code string
}

// ParameterSet is an insertion-ordered name→code mapping.
//
// Adding a name that already exists replaces its code but keeps its position,
// so merging the HAPS and VOC classes behaves like successive dict updates.
type ParameterSet struct {
	order []string
	codes map[string]string
}

// NewParameterSet builds a set from the given parameters, in order.
func NewParameterSet(params ...Parameter) ParameterSet {
	var s ParameterSet
	for _, p := range params {
		s.Add(p.Name, p.Code)
	}
	return s
}

// Add inserts or updates a parameter.
func (s *ParameterSet) Add(name, code string) {
	if s.codes == nil {
		s.codes = make(map[string]string)
	}
	if _, ok := s.codes[name]; !ok {
		s.order = append(s.order, name)
	}
	s.codes[name] = code
}

// Merge adds every parameter from other, in other's order.
func (s *ParameterSet) Merge(other ParameterSet) {
	for _, name := range other.order {
		s.Add(name, other.codes[name])
	}
}

// Code returns the code for name.
func (s ParameterSet) Code(name string) (string, bool) {
	code, ok := s.codes[name]
	return code, ok
}

// Len is the number of distinct names.
func (s ParameterSet) Len() int {
	return len(s.order)
}

// Empty reports whether the set has no parameters.
func (s ParameterSet) Empty() bool {
	return len(s.order) == 0
}

// Parameters returns the set as an ordered slice.
func (s ParameterSet) Parameters() []Parameter {
	out := make([]Parameter, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, Parameter{Name: name, Code: s.codes[name]})
	}
	return out
}
