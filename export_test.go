package josh

import (
	"sync"
	"testing"
)

type fakeSink struct {
	name   string
	mu     sync.Mutex
	writes []int64
	closed bool
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) WriteSnapshot(step int64, entities map[string]*ImmutableEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, step)
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestExportFacadeDeliversEveryStepOnce(t *testing.T) {
	sink := &fakeSink{name: "csv"}
	facade := NewExportFacade([]ExportSink{sink}, 8, 2)
	facade.Start()

	for step := int64(0); step < 5; step++ {
		facade.Write(step, nil)
	}
	if err := facade.Join(); err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(sink.writes) != 5 {
		t.Errorf("expected 5 writes, got %d", len(sink.writes))
	}
	if !sink.closed {
		t.Errorf("expected Join to close the sink")
	}
}

func TestExportFacadeDedupesRepeatedStep(t *testing.T) {
	sink := &fakeSink{name: "csv"}
	facade := NewExportFacade([]ExportSink{sink}, 8, 1)
	facade.Start()

	facade.Write(0, nil)
	facade.Write(0, nil) // same step written twice, should be deduped
	facade.Write(1, nil)

	if err := facade.Join(); err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(sink.writes) != 2 {
		t.Errorf("expected at-most-once-per-step delivery to yield 2 writes, got %d", len(sink.writes))
	}
}

func TestExportFacadeFansOutToMultipleSinks(t *testing.T) {
	a := &fakeSink{name: "a"}
	b := &fakeSink{name: "b"}
	facade := NewExportFacade([]ExportSink{a, b}, 8, 3)
	facade.Start()

	facade.Write(0, nil)
	facade.Write(1, nil)

	if err := facade.Join(); err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(a.writes) != 2 || len(b.writes) != 2 {
		t.Errorf("expected both sinks to receive both steps, got a=%d b=%d", len(a.writes), len(b.writes))
	}
}
