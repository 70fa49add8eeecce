package focus

import (
	"sort"
	"sync"
	"time"

	"github.com/otalk/mod-muc-focus/internal/bridge"
)

// ConferenceState is a room's COLIBRI allocation state.
type ConferenceState int

const (
	StateAbsent ConferenceState = iota
	StatePending
	StateAssigned
)

func (s ConferenceState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAssigned:
		return "assigned"
	default:
		return "absent"
	}
}

// Room is the per-room focus state record. All mutation happens with mu
// held for the whole controller turn; methods with a Locked suffix assume
// the caller already holds it.
type Room struct {
	ID string
	mu sync.Mutex

	State        ConferenceState
	ConferenceID string
	Bridge       bridge.ID

	Participants map[string]*Participant // keyed by nickname
	Sessions     map[string]bool         // nicknames with an active Jingle session

	PendingJoinQueue     []string
	PendingCorrelationID bridge.RequestID

	lingerTimer *time.Timer
}

// NewRoom returns an empty room record.
func NewRoom(id string) *Room {
	return &Room{
		ID:           id,
		Participants: make(map[string]*Participant),
		Sessions:     make(map[string]bool),
	}
}

// CapableCountLocked counts participants with the capability flag set.
func (r *Room) CapableCountLocked() int {
	n := 0
	for _, p := range r.Participants {
		if p.Capable {
			n++
		}
	}
	return n
}

// SessionMembersLocked returns the nicknames with an active session, in a
// stable (sorted) order — fan-out order is not observable for correctness
// but must be stable within a turn.
func (r *Room) SessionMembersLocked() []string {
	out := make([]string, 0, len(r.Sessions))
	for nick := range r.Sessions {
		out = append(out, nick)
	}
	sort.Strings(out)
	return out
}

// OtherSessionMembersLocked returns session members excluding exclude, so
// a participant's own sources are never delivered back to it.
func (r *Room) OtherSessionMembersLocked(exclude string) []string {
	all := r.SessionMembersLocked()
	out := make([]string, 0, len(all))
	for _, nick := range all {
		if nick != exclude {
			out = append(out, nick)
		}
	}
	return out
}

// ChannelIDsLocked returns every bridge-assigned channel id currently
// known for the room, across all participants and media, used to build
// the expire-all update on teardown.
func (r *Room) ChannelIDsLocked() []string {
	var ids []string
	for _, p := range r.Participants {
		if p.AudioChannel != "" {
			ids = append(ids, p.AudioChannel)
		}
		if p.VideoChannel != "" {
			ids = append(ids, p.VideoChannel)
		}
		if p.DataChannel != "" {
			ids = append(ids, p.DataChannel)
		}
	}
	return ids
}

// ResetLocked clears all per-room state, the last step of teardown
// (teardown's final step).
func (r *Room) ResetLocked() {
	r.State = StateAbsent
	r.ConferenceID = ""
	r.Participants = make(map[string]*Participant)
	r.Sessions = make(map[string]bool)
	r.PendingJoinQueue = nil
	r.PendingCorrelationID = ""
	if r.lingerTimer != nil {
		r.lingerTimer.Stop()
		r.lingerTimer = nil
	}
}
