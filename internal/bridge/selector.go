package bridge

import (
	"sort"
	"sync"
	"time"

	"github.com/otalk/mod-muc-focus/internal/metrics"
)

// Selector tracks the freshest known load sample for every bridge and
// picks the least-loaded live one for a new room. It is written to by the
// Stats Ingester from its subscription goroutine and read by the Focus
// Controller on room allocation from other goroutines; the mutex
// serializes every access.
type Selector struct {
	mu            sync.Mutex
	stats         map[ID]Stats
	liveness      time.Duration
	defaultBridge ID
}

// NewSelector builds a Selector with the given liveness window and
// fallback bridge. The default bridge is always admissible even with no
// stats recorded for it.
func NewSelector(liveness time.Duration, defaultBridge ID) *Selector {
	return &Selector{
		stats:         make(map[ID]Stats),
		liveness:      liveness,
		defaultBridge: defaultBridge,
	}
}

// UpdateStats records a fresh load sample for a bridge, as delivered by
// the Stats Ingester.
func (s *Selector) UpdateStats(id ID, st Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[id] = st
}

// Select returns the least-loaded live bridge: among bridges whose stats
// are younger than the liveness window, the one minimizing
// upload+download bitrate, ties broken by lowest participant count then
// lexicographic bridge id. Falls back to the configured default bridge if
// no bridge is live.
func (s *Selector) Select(now time.Time) ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var live []ID
	for id, st := range s.stats {
		if now.Sub(st.ObservedAt) < s.liveness {
			live = append(live, id)
		}
	}

	if len(live) == 0 {
		metrics.BridgeSelections.WithLabelValues(string(s.defaultBridge), "default-fallback").Inc()
		return s.defaultBridge
	}

	sort.Slice(live, func(i, j int) bool {
		a, b := s.stats[live[i]], s.stats[live[j]]
		la := a.UploadBitrate + a.DownloadBitrate
		lb := b.UploadBitrate + b.DownloadBitrate
		if la != lb {
			return la < lb
		}
		if a.ParticipantCount != b.ParticipantCount {
			return a.ParticipantCount < b.ParticipantCount
		}
		return live[i] < live[j]
	})

	chosen := live[0]
	metrics.BridgeSelections.WithLabelValues(string(chosen), "least-loaded").Inc()
	return chosen
}

// Snapshot returns a copy of the current stats table, for introspection.
func (s *Selector) Snapshot() map[ID]Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[ID]Stats, len(s.stats))
	for id, st := range s.stats {
		out[id] = st
	}
	return out
}
