package ingest

import "sync"

// channelStats tracks per-channel counters, mirroring what an operator
// needs to see channel health at a glance.
type channelStats struct {
	Received   int64
	Classified int64
	Parsed     int64
	Linked     int64
	Stored     int64
	Errors     int64
}

// statsTracker is a mutex-guarded map of per-channel counters, the Go
// counterpart of a lazily-populated per-channel dict.
type statsTracker struct {
	mu    sync.Mutex
	stats map[int64]*channelStats
}

func newStatsTracker() *statsTracker {
	return &statsTracker{stats: make(map[int64]*channelStats)}
}

func (t *statsTracker) record(channelID int64, fn func(*channelStats)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stats[channelID]
	if !ok {
		s = &channelStats{}
		t.stats[channelID] = s
	}
	fn(s)
}

// Snapshot returns a copy of one channel's counters.
func (t *statsTracker) Snapshot(channelID int64) channelStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.stats[channelID]; ok {
		return *s
	}
	return channelStats{}
}
