package focus

import "github.com/otalk/mod-muc-focus/internal/stanza"

// MSIDState records a participant's mute state for one advertised media
// stream id, per medium.
type MSIDState struct {
	Audio string // "true", "muted", or "" (absent)
	Video string
}

// Participant is one occupant's focus-side record: real address, in-room
// nickname, capability, bridge-assigned channels, advertised sources, and
// per-msid mute state.
type Participant struct {
	Nickname string
	RealJID  string
	Capable  bool

	HasSession bool
	SID        string // this endpoint's Jingle session id, assigned on session-initiate

	AudioChannel string
	VideoChannel string
	DataChannel  string

	AudioSources []stanza.Source
	VideoSources []stanza.Source
	AudioGroups  []stanza.SourceGroup
	VideoGroups  []stanza.SourceGroup

	MSIDs map[string]MSIDState
}

// newParticipant returns a Participant record for a freshly joined nick.
func newParticipant(nick, realJID string, capable bool) *Participant {
	return &Participant{
		Nickname: nick,
		RealJID:  realJID,
		Capable:  capable,
		MSIDs:    make(map[string]MSIDState),
	}
}

// clearSources drops every advertised source and msid entry.
func (p *Participant) clearSources() {
	p.AudioSources = nil
	p.VideoSources = nil
	p.AudioGroups = nil
	p.VideoGroups = nil
	p.MSIDs = make(map[string]MSIDState)
}

// setMute mutates the given msid's mute flag for one medium. If msids is
// empty, every known msid is affected, matching the
// session-info handling ("if a mediastream child selects specific msids,
// restrict the mutation, else apply to all").
func (p *Participant) setMute(medium string, muted bool, msids []string) {
	state := "true"
	if muted {
		state = "muted"
	}

	apply := func(id string) {
		entry := p.MSIDs[id]
		switch medium {
		case "audio":
			entry.Audio = state
		case "video":
			entry.Video = state
		}
		p.MSIDs[id] = entry
	}

	if len(msids) == 0 {
		for id := range p.MSIDs {
			apply(id)
		}
		return
	}
	for _, id := range msids {
		apply(id)
	}
}
