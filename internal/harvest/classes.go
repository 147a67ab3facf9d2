package harvest

import "strings"

// Class is an AQS parameter class offered for selection.
type Class struct {
	Code        string
	Description string
}

var catalog = []Class{
	{"CORE_HAPS", "Urban Air Toxic Pollutants"},
	{"CRITERIA", "Criteria Pollutants"},
	{"PAH", "Polycyclic Aromatic Hydrocarbons"},
	{"APP_A_PARAMETERS", "Parameters subject to the 40 CFR Appendix A Regulations"},
	{"AQI POLLUTANTS", "Pollutants that have an AQI Defined"},
	{"CSN CARBON", "Chemical Speciation Network Organic and Elemental Carbon"},
	{"CSN IONS", "Ions measured by the Chemical Speciation Network program"},
	{"IMPROVE_SPECIATION", "PM2.5 Speciated Parameters Measured at IMPROVE sites"},
	{"NATTS CORE HAPS", "The core list of toxics of interest to the NATTS program."},
	{"PAMS_VOC", "Volatile Organic Compound subset of the PAMS Parameters"},
	{"SPECIATION", "PM2.5 Speciated Parameters"},
	{"SPECIATION CATION/ANION", "PM2.5 Speciation Cation/Anion Parameters"},
	{"UATMP CARBONYL", "Urban Air Toxics Monitoring Program Carbonyls"},
	{"UATMP VOC", "Urban Air Toxics Monitoring Program VOCs"},
	{"VOC", "Volatile organic compounds"},
	{"HAPS", "Hazardous Air Pollutants"},
}

// Catalog returns the selectable classes in display order.
func Catalog() []Class {
	return append([]Class(nil), catalog...)
}

// LookupClass reports whether code is in the catalog. Matching is exact.
func LookupClass(code string) (Class, bool) {
	for _, c := range catalog {
		if c.Code == code {
			return c, true
		}
	}
	return Class{}, false
}

// ParseClassSelection splits a comma-separated list, trims each entry and
// keeps only catalog codes, in input order. Unknown entries are returned
// separately so callers can report them.
func ParseClassSelection(input string) (known, unknown []string) {
	for _, part := range strings.Split(input, ",") {
		code := strings.TrimSpace(part)
		if code == "" {
			continue
		}
		if _, ok := LookupClass(code); ok {
			known = append(known, code)
		} else {
			unknown = append(unknown, code)
		}
	}
	return known, unknown
}

// FilterClasses keeps catalog codes from an already split list.
func FilterClasses(codes []string) (known, unknown []string) {
	return ParseClassSelection(strings.Join(codes, ","))
}
