package agent

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/haasonsaas/sidekick/internal/audit"
	"github.com/haasonsaas/sidekick/pkg/models"
)

// Emitter fans agent events out to the subscriber channel and the audit
// sink. Events within a session are strictly ordered by Sequence.
type Emitter struct {
	traceID string
	sink    *audit.Sink
	seq     atomic.Uint64

	mu        sync.Mutex
	ch        chan *models.Event
	stepIndex int
	dropped   int
}

// NewEmitter creates an emitter. bufferSize bounds the subscriber channel;
// a slow subscriber loses events rather than stalling the agent.
func NewEmitter(traceID string, sink *audit.Sink, bufferSize int) *Emitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Emitter{
		traceID: traceID,
		sink:    sink,
		ch:      make(chan *models.Event, bufferSize),
	}
}

// Events returns the subscriber channel. Closed when the session ends.
func (e *Emitter) Events() <-chan *models.Event {
	return e.ch
}

// SetStepIndex records the loop iteration stamped on subsequent events.
func (e *Emitter) SetStepIndex(i int) {
	e.mu.Lock()
	e.stepIndex = i
	e.mu.Unlock()
}

// Emit publishes one event to the subscriber and the audit sink.
func (e *Emitter) Emit(kind models.EventKind, data map[string]any) {
	e.mu.Lock()
	step := e.stepIndex
	e.mu.Unlock()

	ev := &models.Event{
		Kind:      kind,
		StepIndex: step,
		Sequence:  e.seq.Add(1),
		TraceID:   e.traceID,
		Data:      data,
		Timestamp: time.Now(),
	}
	e.sink.Record(ev)
	select {
	case e.ch <- ev:
	default:
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
	}
}

// EmitDisplay satisfies the display tool's emitter contract.
func (e *Emitter) EmitDisplay(content, level, title string) {
	data := map[string]any{"content": content, "level": level}
	if title != "" {
		data["title"] = title
	}
	e.Emit(models.EventDisplay, data)
}

// Close closes the subscriber channel. The audit sink has its own lifecycle.
func (e *Emitter) Close() {
	close(e.ch)
}
