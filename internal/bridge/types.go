// Package bridge selects a COLIBRI media bridge for a room, sends COLIBRI
// requests to it, correlates replies back to the request that caused them,
// and ingests bridge-published load statistics.
package bridge

import "time"

// ID identifies one media bridge by its JID (or other configured
// identifier known to the focus).
type ID string

// Stats is the most recently ingested load sample for one bridge.
type Stats struct {
	UploadBitrate   float64
	DownloadBitrate float64
	ParticipantCount int
	ObservedAt      time.Time
}

// RequestID identifies one outstanding COLIBRI request.
type RequestID string

// RequestEntry is what the Correlation Table remembers about one
// outstanding COLIBRI request: which room it belongs to, and the ordered
// list of nicknames whose channels it requested.
type RequestEntry struct {
	Room      string
	Nicknames []string
	Bridge    ID
	IssuedAt  time.Time
}
