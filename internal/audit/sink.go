// Package audit writes the per-session trace: one JSON line per agent
// event, append-only, redacted. Writes are buffered on a channel so the
// agent loop never blocks on disk.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/haasonsaas/sidekick/internal/observability"
	"github.com/haasonsaas/sidekick/pkg/models"
)

// Line is the on-disk record format.
type Line struct {
	Timestamp time.Time      `json:"timestamp"`
	TraceID   string         `json:"trace_id"`
	StepIndex int            `json:"step_index"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
}

// Config tunes the sink.
type Config struct {
	Enabled    bool
	BufferSize int
	// FlushInterval bounds how stale the file can be. Best effort.
	FlushInterval time.Duration
}

// Sink appends events to a JSONL file. A nil or disabled sink swallows
// events silently, so callers never need to guard.
type Sink struct {
	file    *os.File
	buffer  chan *Line
	done    chan struct{}
	wg      sync.WaitGroup
	flushEv time.Duration
	redacts []*regexp.Regexp

	mu      sync.Mutex
	dropped int
}

// Open creates or appends to the audit file at path.
func Open(path string, cfg Config) (*Sink, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	redacts := make([]*regexp.Regexp, 0, len(observability.DefaultRedactPatterns))
	for _, p := range observability.DefaultRedactPatterns {
		if re, err := regexp.Compile(p); err == nil {
			redacts = append(redacts, re)
		}
	}

	s := &Sink{
		file:    f,
		buffer:  make(chan *Line, cfg.BufferSize),
		done:    make(chan struct{}),
		flushEv: cfg.FlushInterval,
		redacts: redacts,
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s, nil
}

// Record enqueues an agent event. Never blocks; if the buffer is full the
// event is dropped and counted.
func (s *Sink) Record(ev *models.Event) {
	if s == nil {
		return
	}
	line := &Line{
		Timestamp: ev.Timestamp,
		TraceID:   ev.TraceID,
		StepIndex: ev.StepIndex,
		Event:     string(ev.Kind),
		Data:      s.redactMap(ev.Data),
	}
	if line.Timestamp.IsZero() {
		line.Timestamp = time.Now()
	}
	select {
	case s.buffer <- line:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

// Dropped reports how many events were lost to back-pressure.
func (s *Sink) Dropped() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close drains the buffer, syncs and closes the file.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	close(s.done)
	s.wg.Wait()
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

func (s *Sink) writeLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.flushEv)
	defer ticker.Stop()

	for {
		select {
		case line := <-s.buffer:
			s.writeLine(line)
		case <-ticker.C:
			// Best-effort durability between turns.
			_ = s.file.Sync()
		case <-s.done:
			for {
				select {
				case line := <-s.buffer:
					s.writeLine(line)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) writeLine(line *Line) {
	data, err := json.Marshal(line)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = s.file.Write(data)
}

// redactMap deep-copies the event data, scrubbing string values that match
// a secret pattern.
func (s *Sink) redactMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = s.redactValue(v)
	}
	return out
}

func (s *Sink) redactValue(v any) any {
	switch t := v.(type) {
	case string:
		for _, re := range s.redacts {
			t = re.ReplaceAllString(t, "[REDACTED]")
		}
		return t
	case map[string]any:
		return s.redactMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = s.redactValue(e)
		}
		return out
	default:
		return v
	}
}
