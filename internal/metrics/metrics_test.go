package metrics

import (
	"strings"
	"testing"

	"github.com/rickgao/txrelay/internal/config"
)

func TestRegistryRecord(t *testing.T) {
	r := NewRegistry()
	r.Record(config.LabelOrder, 10, false)
	r.Record(config.LabelOrder, 30, false)
	r.Record(config.LabelOrder, 20, true)

	s, hist := r.Snapshot(config.LabelOrder)
	if s.Count != 3 {
		t.Errorf("Count = %d, want 3", s.Count)
	}
	if s.MinMs != 10 {
		t.Errorf("MinMs = %d, want 10", s.MinMs)
	}
	if s.MaxMs != 30 {
		t.Errorf("MaxMs = %d, want 30", s.MaxMs)
	}
	if s.Expired != 1 {
		t.Errorf("Expired = %d, want 1", s.Expired)
	}
	if len(hist) != 3 {
		t.Errorf("history length = %d, want 3", len(hist))
	}
}

func TestRegistrySnapshotUnknownLabel(t *testing.T) {
	r := NewRegistry()
	s, hist := r.Snapshot(config.LabelTimer)
	if s.Count != 0 || hist != nil {
		t.Errorf("expected zero-value snapshot for unrecorded label, got %+v, %v", s, hist)
	}
}

func TestRegistryHistoryOverwritesOldest(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < HistoryLimit+10; i++ {
		r.Record(config.LabelDefault, int64(i), false)
	}
	_, hist := r.Snapshot(config.LabelDefault)
	if len(hist) != HistoryLimit {
		t.Fatalf("history length = %d, want %d", len(hist), HistoryLimit)
	}
	if hist[0] != 10 {
		t.Errorf("oldest retained sample = %d, want 10", hist[0])
	}
	if hist[len(hist)-1] != int64(HistoryLimit+9) {
		t.Errorf("newest sample = %d, want %d", hist[len(hist)-1], HistoryLimit+9)
	}
}

func TestDumpLine(t *testing.T) {
	r := NewRegistry()
	r.Record(config.LabelAccount, 1234567, false)
	line := r.DumpLine(config.LabelAccount)
	if !strings.Contains(line, "ACCOUNT") {
		t.Errorf("DumpLine = %q, want it to mention the label", line)
	}
	if !strings.Contains(line, "1,234,567ms") {
		t.Errorf("DumpLine = %q, want grouped thousands separators", line)
	}
}

func TestDump(t *testing.T) {
	r := NewRegistry()
	r.Record(config.LabelOrder, 5, false)
	r.Record(config.LabelTimer, 6, false)
	lines := r.Dump()
	if len(lines) != 2 {
		t.Fatalf("Dump() returned %d lines, want 2", len(lines))
	}
}
