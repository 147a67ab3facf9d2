package harvest

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/aqsharvest/internal/aqs"
	"github.com/JakeFAU/aqsharvest/internal/progress"
)

type fakeLister struct {
	mu    sync.Mutex
	sets  map[string]aqs.ParameterSet
	errs  map[string]error
	calls []string
}

func (f *fakeLister) ParametersByClass(_ context.Context, class string) (aqs.ParameterSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, class)
	if err := f.errs[class]; err != nil {
		return aqs.ParameterSet{}, err
	}
	return f.sets[class], nil
}

func (f *fakeLister) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeSource struct {
	mu      sync.Mutex
	rows    map[string][]aqs.Row
	errs    map[string]error
	queries []aqs.DailyQuery
	onFetch func()
}

func sourceKey(param, county, bdate string) string {
	return fmt.Sprintf("%s/%s/%s", param, county, bdate)
}

func (f *fakeSource) DailyByCounty(_ context.Context, q aqs.DailyQuery) ([]aqs.Row, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	hook := f.onFetch
	key := sourceKey(q.Param, q.County, q.BDate)
	rows, err := f.rows[key], f.errs[key]
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return rows, err
}

func (f *fakeSource) Queries() []aqs.DailyQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]aqs.DailyQuery(nil), f.queries...)
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("00000000-0000-7000-8000-%012d", s.n), nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) Events() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}

type fakeManifest struct {
	mu      sync.Mutex
	records []FileRecord
	err     error
}

func (m *fakeManifest) RecordFile(_ context.Context, rec FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}
