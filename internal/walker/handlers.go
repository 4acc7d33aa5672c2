package walker

import (
	"sync"
)

// Stats contains traversal statistics gathered by a StatsHandler
type Stats struct {
	FilesVisited int64            // Regular files handed to the handler
	DirsVisited  int64            // Directories handed to the handler
	BytesVisited int64            // Total size of visited files
	Failures     int64            // Handler calls that returned an error
	Signals      map[Signal]int64 // Signals returned, by value
}

// StatsHandler counts what passes through it before delegating to the
// wrapped handler. Counters accumulate across Process calls until Reset.
type StatsHandler struct {
	next  Handler
	mu    sync.RWMutex
	stats Stats
}

func NewStatsHandler(next Handler) *StatsHandler {
	return &StatsHandler{
		next:  next,
		stats: Stats{Signals: make(map[Signal]int64)},
	}
}

func (h *StatsHandler) Handle(entry Entry) (Signal, error) {
	signal, err := h.next.Handle(entry)

	h.mu.Lock()
	defer h.mu.Unlock()

	if entry.IsDir() {
		h.stats.DirsVisited++
	} else {
		h.stats.FilesVisited++
		if entry.Info != nil {
			h.stats.BytesVisited += entry.Info.Size()
		}
	}
	if err != nil {
		h.stats.Failures++
		return signal, err
	}
	h.stats.Signals[signal]++

	return signal, nil
}

// Stats returns a snapshot of the counters.
func (h *StatsHandler) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	snapshot := h.stats
	snapshot.Signals = make(map[Signal]int64, len(h.stats.Signals))
	for k, v := range h.stats.Signals {
		snapshot.Signals[k] = v
	}
	return snapshot
}

func (h *StatsHandler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats = Stats{Signals: make(map[Signal]int64)}
}

// Rules maps exact entry base names to the signal returned for them.
type Rules map[string]Signal

// RuleHandler visits every entry with next and then overrides the returned
// signal with the rule for the entry's base name, if there is one. A Stop
// from next is never overridden.
func RuleHandler(rules Rules, next Handler) Handler {
	return HandlerFunc(func(entry Entry) (Signal, error) {
		signal, err := next.Handle(entry)
		if err != nil || signal == Stop {
			return signal, err
		}
		if ruled, ok := rules[entry.Name()]; ok && ruled.IsSet() {
			return ruled, nil
		}
		return signal, nil
	})
}

// Collect walks root and returns every visited entry in visitation order.
func Collect(root string, opts ...Option) ([]Entry, error) {
	var entries []Entry
	engine, err := New(HandlerFunc(func(entry Entry) (Signal, error) {
		entries = append(entries, entry)
		return Continue, nil
	}), opts...)
	if err != nil {
		return nil, err
	}

	if err := engine.Process(root); err != nil {
		return nil, err
	}
	return entries, nil
}
