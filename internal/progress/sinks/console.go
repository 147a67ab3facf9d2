package sinks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/JakeFAU/aqsharvest/internal/progress"
)

// ConsoleSink renders a single carriage-return progress line, e.g.
//
//	Downloading and Saving Data: 42/300 (14%) files=7
type ConsoleSink struct {
	mu    sync.Mutex
	out   io.Writer
	label string
	total int64
	done  int64
	files int64
	dirty bool
}

// NewConsoleSink writes progress to out with the given label.
func NewConsoleSink(out io.Writer, label string) *ConsoleSink {
	if label == "" {
		label = "Downloading and Saving Data"
	}
	return &ConsoleSink{out: out, label: label}
}

// Consume advances the counters and redraws the line once per batch.
func (s *ConsoleSink) Consume(_ context.Context, batch []progress.Event) error {
	if s == nil || s.out == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.total, s.done, s.files = evt.Total, 0, 0
		case progress.StageFetchDone:
			s.done++
			if evt.Outcome == progress.OutcomeData {
				s.files++
			}
		case progress.StageRunDone, progress.StageRunError:
			if err := s.render(); err != nil {
				return err
			}
			s.dirty = false
			if _, err := io.WriteString(s.out, "\n"); err != nil {
				return fmt.Errorf("write progress line: %w", err)
			}
			continue
		}
		s.dirty = true
	}
	if !s.dirty {
		return nil
	}
	return s.render()
}

// Name implements progress.NamedSink.
func (s *ConsoleSink) Name() string { return "console" }

// Close terminates a dangling progress line.
func (s *ConsoleSink) Close(context.Context) error {
	if s == nil || s.out == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	s.dirty = false
	if _, err := io.WriteString(s.out, "\n"); err != nil {
		return fmt.Errorf("write progress line: %w", err)
	}
	return nil
}

func (s *ConsoleSink) render() error {
	pct := int64(100)
	if s.total > 0 {
		pct = s.done * 100 / s.total
	}
	if _, err := fmt.Fprintf(s.out, "\r%s: %d/%d (%d%%) files=%d", s.label, s.done, s.total, pct, s.files); err != nil {
		return fmt.Errorf("write progress line: %w", err)
	}
	return nil
}
