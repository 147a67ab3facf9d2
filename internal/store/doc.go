// Package store defines the run progress repository read by the status API
// and written by the progress store sink, plus an in-memory implementation.
package store
