// Package harvest sweeps the AQS dailyData endpoint over parameter, county
// and year combinations and writes every non-empty result to CSV.
//
// A run has three phases: parameter resolution (Resolver), planning (Layout
// turns groups, counties and years into ordered Steps), and the sweep
// (Driver), which fetches, writes, records and paces each step. Runner ties
// the phases together for a Profile.
package harvest
