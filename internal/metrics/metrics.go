package metrics

import (
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rickgao/txrelay/internal/config"
)

// HistoryLimit bounds the ring of elapsed samples kept per label.
const HistoryLimit = 1024

// Stats holds the accumulated timing for one callback label.
type Stats struct {
	Count   int64
	MinMs   int64
	MaxMs   int64
	AvgMs   float64
	Expired int64
}

// Registry accumulates per-label callback metrics (§4.4).
type Registry struct {
	mu    sync.Mutex
	stats map[config.Label]*Stats
	hist  map[config.Label]*ring
}

// NewRegistry creates an empty metrics registry.
func NewRegistry() *Registry {
	return &Registry{
		stats: make(map[config.Label]*Stats),
		hist:  make(map[config.Label]*ring),
	}
}

// Record folds one completed (or expired) callback's elapsed time into
// the label's running statistics.
func (r *Registry) Record(label config.Label, elapsedMs int64, expired bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stats[label]
	if !ok {
		s = &Stats{MinMs: elapsedMs}
		r.stats[label] = s
		r.hist[label] = newRing(HistoryLimit)
	}

	total := s.Count
	s.Count++
	if elapsedMs < s.MinMs || total == 0 {
		s.MinMs = elapsedMs
	}
	if elapsedMs > s.MaxMs {
		s.MaxMs = elapsedMs
	}
	s.AvgMs = (s.AvgMs*float64(total) + float64(elapsedMs)) / float64(total+1)
	if expired {
		s.Expired++
	}
	r.hist[label].push(elapsedMs)
}

// Snapshot returns a copy of the current stats for a label.
func (r *Registry) Snapshot(label config.Label) (Stats, []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stats[label]
	if !ok {
		return Stats{}, nil
	}
	return *s, r.hist[label].samples()
}

// Labels returns every label that has recorded at least one sample.
func (r *Registry) Labels() []config.Label {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]config.Label, 0, len(r.stats))
	for l := range r.stats {
		out = append(out, l)
	}
	return out
}

// DumpLine formats a single human-readable summary line for one label,
// using grouped thousands separators — the gateway's 1Hz timer emits one
// of these per label on each minute boundary (§5 "per-minute metric
// dump").
func (r *Registry) DumpLine(label config.Label) string {
	s, _ := r.Snapshot(label)
	p := message.NewPrinter(language.English)
	return p.Sprintf("callback[%s] count=%d min=%dms max=%dms avg=%.1fms expired=%d",
		label, s.Count, s.MinMs, s.MaxMs, s.AvgMs, s.Expired)
}

// Dump formats every label's summary line, one per entry, in the order
// returned by Labels (unordered across calls — callers that need a
// stable order should sort the result).
func (r *Registry) Dump() []string {
	labels := r.Labels()
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		out = append(out, r.DumpLine(l))
	}
	return out
}
