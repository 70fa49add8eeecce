package focus

import (
	"context"
	"log/slog"

	"github.com/otalk/mod-muc-focus/internal/metrics"
	"github.com/otalk/mod-muc-focus/internal/stanza"
)

// Jingle handles one inbound Jingle IQ from a session member. The sender
// must already have a materialized Participant record; a stanza from an
// unknown nick is ignorable.
func (c *Controller) Jingle(ctx context.Context, roomID, from string, action stanza.JingleAction, iqID string, body []byte) error {
	room := c.Registry.Get(roomID)
	if room == nil {
		return nil
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	p, ok := room.Participants[from]
	if !ok {
		return nil
	}

	switch action {
	case stanza.ActionSessionAccept, stanza.ActionSourceAdd, stanza.ActionSourceRemove:
		return c.handleSourceMutationLocked(ctx, room, p, action, iqID, body)
	case stanza.ActionSessionInfo:
		return c.handleSessionInfoLocked(ctx, room, p, iqID, body)
	case stanza.ActionSessionTerminate:
		if err := c.Transport.Ack(ctx, roomID, from, iqID); err != nil {
			slog.Error("focus: acking session-terminate", "room", roomID, "from", from, "err", err)
		}
		return c.leftLocked(ctx, room, from)
	default:
		return nil
	}
}

// handleSourceMutationLocked implements session-accept/source-add/
// source-remove: it replaces (or, for source-remove, deletes from) the
// sender's advertised sources, re-stamps its msid/mute metadata, pushes a
// COLIBRI update for the sender's channels, and fans the same delta out to
// every other session member — never back to the sender itself.
func (c *Controller) handleSourceMutationLocked(ctx context.Context, room *Room, p *Participant, action stanza.JingleAction, iqID string, body []byte) error {
	parsed, err := stanza.ParseContents(body)
	if err != nil {
		slog.Error("focus: parsing jingle contents", "room", room.ID, "from", p.Nickname, "action", action, "err", err)
		return nil
	}

	for _, content := range parsed {
		applyContentLocked(p, action, content)
	}

	if err := c.Transport.RepublishPresence(ctx, room.ID, p.Nickname, p.MSIDs); err != nil {
		slog.Error("focus: republishing presence", "room", room.ID, "nick", p.Nickname, "err", err)
	}

	c.sendColibriUpdateLocked(ctx, room, p)

	fanoutAction := stanza.ActionSourceAdd
	if action == stanza.ActionSourceRemove {
		fanoutAction = stanza.ActionSourceRemove
	}

	for _, nick := range room.OtherSessionMembersLocked(p.Nickname) {
		other := room.Participants[nick]
		if other == nil || other.SID == "" {
			continue
		}
		for _, content := range parsed {
			var payload any
			if fanoutAction == stanza.ActionSourceAdd {
				payload = stanza.BuildSourceAdd(other.SID, content.Name, content.Sources, content.Groups)
			} else {
				payload = stanza.BuildSourceRemove(other.SID, content.Name, content.Sources, content.Groups)
			}
			if err := c.Transport.SendJingle(ctx, room.ID, nick, payload); err != nil {
				slog.Error("focus: fanning out source mutation", "room", room.ID, "to", nick, "err", err)
				continue
			}
			metrics.JingleEvents.WithLabelValues(string(fanoutAction), "fanned-out").Inc()
		}
	}

	room.Sessions[p.Nickname] = true
	p.HasSession = true

	if err := c.Transport.Ack(ctx, room.ID, p.Nickname, iqID); err != nil {
		slog.Error("focus: acking jingle stanza", "room", room.ID, "from", p.Nickname, "action", action, "err", err)
	}
	return nil
}

// applyContentLocked folds one parsed content into the sender's state:
// session-accept/source-add replace the medium's sources wholesale,
// source-remove deletes the matching entries, per spec. A freshly-seen
// msid defaults to unmuted unless session-info already muted it.
func applyContentLocked(p *Participant, action stanza.JingleAction, content stanza.ParsedContent) {
	switch content.Name {
	case "audio":
		if action == stanza.ActionSourceRemove {
			p.AudioSources = removeSources(p.AudioSources, content.Sources)
		} else {
			p.AudioSources = content.Sources
			p.AudioGroups = content.Groups
		}
	case "video":
		if action == stanza.ActionSourceRemove {
			p.VideoSources = removeSources(p.VideoSources, content.Sources)
		} else {
			p.VideoSources = content.Sources
			p.VideoGroups = content.Groups
		}
	}

	if content.MSID == "" || action == stanza.ActionSourceRemove {
		return
	}
	entry := p.MSIDs[content.MSID]
	switch content.Name {
	case "audio":
		if entry.Audio == "" {
			entry.Audio = "true"
		}
	case "video":
		if entry.Video == "" {
			entry.Video = "true"
		}
	}
	p.MSIDs[content.MSID] = entry
}

// removeSources drops every entry in existing whose SSRC appears in
// removed.
func removeSources(existing, removed []stanza.Source) []stanza.Source {
	if len(removed) == 0 || len(existing) == 0 {
		return existing
	}
	drop := make(map[uint32]bool, len(removed))
	for _, s := range removed {
		drop[s.SSRC] = true
	}
	out := make([]stanza.Source, 0, len(existing))
	for _, s := range existing {
		if !drop[s.SSRC] {
			out = append(out, s)
		}
	}
	return out
}

// sendColibriUpdateLocked pushes the sender's current sources to the
// bridge as a conference-update. Fire-and-forget: no client-facing effect
// is keyed to this particular reply, so the Controller does not correlate
// it.
func (c *Controller) sendColibriUpdateLocked(ctx context.Context, room *Room, p *Participant) {
	upd := stanza.EndpointUpdate{
		Endpoint:     p.Nickname,
		AudioSources: p.AudioSources,
		VideoSources: p.VideoSources,
		AudioGroups:  p.AudioGroups,
		VideoGroups:  p.VideoGroups,
		RTCPMux:      true,
	}
	payload := stanza.BuildColibriUpdate(room.ConferenceID, upd)
	bridgeID := room.Bridge
	go func() {
		if _, err := c.BridgeSender.Send(ctx, room.ID, string(bridgeID), payload); err != nil {
			slog.Error("focus: sending colibri source update", "room", room.ID, "endpoint", p.Nickname, "err", err)
		}
	}()
	metrics.ColibriRequests.WithLabelValues("update", "sent").Inc()
}

// handleSessionInfoLocked implements session-info mute/unmute: it mutates
// the sender's msids entry (restricted to named msids if given, else
// every known msid), republishes presence, and triggers no Jingle fanout.
func (c *Controller) handleSessionInfoLocked(ctx context.Context, room *Room, p *Participant, iqID string, body []byte) error {
	info, err := stanza.ParseSessionInfo(body)
	if err != nil {
		slog.Error("focus: parsing session-info", "room", room.ID, "from", p.Nickname, "err", err)
		return nil
	}
	if info != nil {
		p.setMute(info.Medium, info.Muted, info.MSIDs)
		if err := c.Transport.RepublishPresence(ctx, room.ID, p.Nickname, p.MSIDs); err != nil {
			slog.Error("focus: republishing presence after mute", "room", room.ID, "nick", p.Nickname, "err", err)
		}
	}

	if err := c.Transport.Ack(ctx, room.ID, p.Nickname, iqID); err != nil {
		slog.Error("focus: acking session-info", "room", room.ID, "from", p.Nickname, "err", err)
	}
	return nil
}
