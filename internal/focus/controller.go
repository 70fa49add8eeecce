// Package focus implements the conference focus state machine: the
// per-room coordinator that tracks participants, pending bridge calls,
// channel identifiers, advertised media sources, and drives both protocol
// legs (client-facing Jingle, bridge-facing COLIBRI).
package focus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/otalk/mod-muc-focus/internal/bridge"
	"github.com/otalk/mod-muc-focus/internal/metrics"
	"github.com/otalk/mod-muc-focus/internal/stanza"
)

// StatusMode is the groupchat status broadcast as a room crosses the
// relay threshold.
type StatusMode string

const (
	ModeRelay StatusMode = "relay"
	ModeP2P   StatusMode = "p2p"
)

// ErrDuplicateSession is returned by PreJoin when the joining real address
// already holds an active session in this room.
var ErrDuplicateSession = errors.New("focus: duplicate session for real address")

// Transport is the client-facing I/O surface the Controller drives: Jingle
// delivery, IQ acks/errors, groupchat status, and presence republication.
// A concrete implementation lives in cmd/focus, wired to a live XMPP
// session; keeping it an interface here lets the state machine run without
// one.
type Transport interface {
	SendJingle(ctx context.Context, room, to string, payload any) error
	Ack(ctx context.Context, room, to, iqID string) error
	SendError(ctx context.Context, room, to, iqID, condition string) error
	BroadcastStatus(ctx context.Context, room string, mode StatusMode) error
	UnicastStatus(ctx context.Context, room, to string, mode StatusMode) error
	RepublishPresence(ctx context.Context, room, nick string, msids map[string]MSIDState) error
}

// BridgeSender sends one COLIBRI request body to a bridge's address and
// returns the raw reply once it arrives. The Controller always calls this
// from a background goroutine so a turn never blocks on the round trip;
// the reply re-enters through ColibriResult. bridge.Client satisfies this
// interface.
type BridgeSender interface {
	Send(ctx context.Context, room, to string, payload any) ([]byte, error)
}

// Config is the focus-wide tunable set.
type Config struct {
	UseBundle       bool
	UseDataChannels bool
	UseRTX          bool
	MinParticipants int
	LingerTime      time.Duration
}

// Controller is the focus state machine: it consumes room events and
// inbound Jingle stanzas, mutates Room state, and drives the Stanza
// Builders, the Bridge Selector, and the Correlation Table to produce
// outbound stanzas.
type Controller struct {
	Registry     *Registry
	Selector     *bridge.Selector
	Correlation  *bridge.CorrelationTable
	BridgeSender BridgeSender
	Transport    Transport
	Codecs       stanza.CodecConfig
	Config       Config

	nextRequestID func() string
	nextSessionID func() string
	now           func() time.Time
}

// NewController wires a Controller from its collaborators. COLIBRI request
// and Jingle session ids default to random UUIDs and the clock to time.Now; tests
// override them for determinism.
func NewController(reg *Registry, sel *bridge.Selector, corr *bridge.CorrelationTable, bs BridgeSender, tr Transport, codecs stanza.CodecConfig, cfg Config) *Controller {
	return &Controller{
		Registry:      reg,
		Selector:      sel,
		Correlation:   corr,
		BridgeSender:  bs,
		Transport:     tr,
		Codecs:        codecs,
		Config:        cfg,
		nextRequestID: uuid.NewString,
		nextSessionID: uuid.NewString,
		now:           time.Now,
	}
}

// PreJoin handles a joining occupant's pre-join event: it broadcasts the
// room's groupchat status (relay if this join would cross the minimum,
// else p2p), unicasts the same status to the joiner, and rejects a second
// session from the same real address.
func (c *Controller) PreJoin(ctx context.Context, roomID, nick, realJID string, capable bool) error {
	room := c.Registry.GetOrCreate(roomID)
	room.mu.Lock()
	defer room.mu.Unlock()

	for otherNick, p := range room.Participants {
		if p.RealJID == realJID && room.Sessions[otherNick] {
			if err := c.Transport.SendError(ctx, roomID, nick, "", "modify-resource-constraint"); err != nil {
				slog.Error("focus: sending duplicate-session rejection", "room", roomID, "nick", nick, "err", err)
			}
			return ErrDuplicateSession
		}
	}

	mode := ModeP2P
	projected := room.CapableCountLocked()
	if capable {
		projected++
	}
	if projected >= c.Config.MinParticipants {
		mode = ModeRelay
	}

	if err := c.Transport.BroadcastStatus(ctx, roomID, mode); err != nil {
		return fmt.Errorf("focus: broadcasting pre-join status: %w", err)
	}
	if err := c.Transport.UnicastStatus(ctx, roomID, nick, mode); err != nil {
		return fmt.Errorf("focus: unicasting pre-join status: %w", err)
	}
	return nil
}

// MaterializeParticipant records a newly joined occupant. The hosting XMPP
// server owns occupant records in the full system (spec scope excludes
// it); this is the seam a caller uses to hand the focus a fresh
// Participant between PreJoin and Joined.
func (c *Controller) MaterializeParticipant(roomID, nick, realJID string, capable bool) {
	room := c.Registry.GetOrCreate(roomID)
	room.mu.Lock()
	defer room.mu.Unlock()
	room.Participants[nick] = newParticipant(nick, realJID, capable)
	metrics.RoomParticipants.WithLabelValues(roomID).Set(float64(len(room.Participants)))
}

// Joined handles the joined event once a participant record exists. A
// non-capable joiner, or one that does not cross the minimum, is a no-op.
// A pending allocation queues the nick; otherwise a COLIBRI request is
// issued for every capable participant without a session.
func (c *Controller) Joined(ctx context.Context, roomID, nick string) error {
	room := c.Registry.Get(roomID)
	if room == nil {
		return fmt.Errorf("focus: joined: unknown room %q", roomID)
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	p, ok := room.Participants[nick]
	if !ok {
		return fmt.Errorf("focus: joined: no participant record for %q in %q", nick, roomID)
	}
	if !p.Capable {
		return nil
	}
	if room.CapableCountLocked() < c.Config.MinParticipants {
		return nil
	}

	if room.State == StatePending {
		room.PendingJoinQueue = append(room.PendingJoinQueue, nick)
		return nil
	}

	pending := pendingCapableEndpointsLocked(room)
	if len(pending) == 0 {
		return nil
	}

	if room.Bridge == "" {
		room.Bridge = c.Selector.Select(c.now())
	}

	c.requestChannelsLocked(ctx, room, pending)
	return nil
}

// pendingCapableEndpointsLocked returns every capable participant without
// an active session, in a stable order.
func pendingCapableEndpointsLocked(room *Room) []string {
	var out []string
	for nick, p := range room.Participants {
		if p.Capable && !room.Sessions[nick] {
			out = append(out, nick)
		}
	}
	sort.Strings(out)
	return out
}

// requestChannelsLocked issues a COLIBRI create (no existing conference
// id) or update (existing conference id) allocating channels for
// endpoints, installs a correlation entry, and marks the room pending for
// the duration of the round trip.
func (c *Controller) requestChannelsLocked(ctx context.Context, room *Room, endpoints []string) {
	opts := stanza.CreateConferenceOptions{
		ConferenceID:    room.ConferenceID,
		UseBundle:       c.Config.UseBundle,
		UseDataChannels: c.Config.UseDataChannels,
		UseRTX:          c.Config.UseRTX,
		Endpoints:       endpoints,
		Codecs:          c.Codecs,
	}
	payload := stanza.BuildColibriCreate(opts)

	kind := "create"
	if room.ConferenceID != "" {
		kind = "update"
	}

	reqID := bridge.RequestID(c.nextRequestID())
	c.Correlation.Install(ctx, reqID, bridge.RequestEntry{
		Room:      room.ID,
		Nicknames: endpoints,
		Bridge:    room.Bridge,
	})
	room.State = StatePending

	c.dispatchColibri(ctx, room.ID, room.Bridge, reqID, payload, kind)
}

// dispatchColibri sends a COLIBRI request on a background goroutine so the
// calling turn never blocks on the bridge round trip; the reply re-enters
// through ColibriResult. A send failure is logged and tolerated per the
// bridge-error handling policy — no retry, the room stays pending.
func (c *Controller) dispatchColibri(ctx context.Context, room string, to bridge.ID, reqID bridge.RequestID, payload any, kind string) {
	metrics.ColibriRequests.WithLabelValues(kind, "sent").Inc()
	go func() {
		body, err := c.BridgeSender.Send(ctx, room, string(to), payload)
		if err != nil {
			metrics.ColibriRequests.WithLabelValues(kind, "error").Inc()
			slog.Error("focus: colibri request failed", "bridge", to, "request_id", reqID, "kind", kind, "err", err)
			return
		}
		if err := c.ColibriResult(ctx, reqID, body); err != nil {
			slog.Error("focus: handling colibri result", "request_id", reqID, "err", err)
		}
	}()
}

// ColibriResult handles a bridge reply matched via the Correlation Table.
// An unmatched request id is a stale reply and is dropped idempotently; a
// room that no longer exists is treated as already destroyed.
func (c *Controller) ColibriResult(ctx context.Context, reqID bridge.RequestID, body []byte) error {
	entry, ok := c.Correlation.Resolve(reqID)
	if !ok {
		return nil
	}

	room := c.Registry.Get(entry.Room)
	if room == nil {
		return nil
	}

	confID, channels, err := stanza.ParseColibriResult(body)
	if err != nil {
		slog.Error("focus: parsing colibri result", "room", entry.Room, "err", err)
		return nil
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	room.ConferenceID = confID
	room.State = StateAssigned

	for _, nick := range entry.Nicknames {
		p, ok := room.Participants[nick]
		if !ok {
			continue // left mid-flight; nothing to deliver to
		}
		ec, ok := channels[nick]
		if !ok {
			continue
		}

		p.AudioChannel = ec.Audio.ID
		p.VideoChannel = ec.Video.ID
		if ec.Data != nil {
			p.DataChannel = ec.Data.ID
		}

		sid := c.nextSessionID()
		payload := stanza.BuildSessionInitiate(stanza.SessionInitiateOptions{
			SID:       sid,
			UseBundle: c.Config.UseBundle,
			Codecs:    c.Codecs,
			Audio:     ec.Audio,
			Video:     ec.Video,
			Data:      ec.Data,
		})
		if err := c.Transport.SendJingle(ctx, entry.Room, nick, payload); err != nil {
			slog.Error("focus: sending session-initiate", "room", entry.Room, "to", nick, "err", err)
			continue
		}

		p.SID = sid
		p.HasSession = true
		room.Sessions[nick] = true
		metrics.JingleEvents.WithLabelValues("session-initiate", "sent").Inc()
	}

	if len(room.PendingJoinQueue) > 0 {
		queued := room.PendingJoinQueue
		room.PendingJoinQueue = nil
		var pending []string
		for _, nick := range queued {
			if p, ok := room.Participants[nick]; ok && p.Capable && !room.Sessions[nick] {
				pending = append(pending, nick)
			}
		}
		if len(pending) > 0 {
			c.requestChannelsLocked(ctx, room, pending)
		}
	}

	return nil
}

// Left handles a participant leaving: drops the session, fans out
// source-remove for whatever it advertised, expires its channels on the
// bridge, and re-checks the teardown threshold.
func (c *Controller) Left(ctx context.Context, roomID, nick string) error {
	room := c.Registry.Get(roomID)
	if room == nil {
		return nil
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return c.leftLocked(ctx, room, nick)
}

func (c *Controller) leftLocked(ctx context.Context, room *Room, nick string) error {
	p, ok := room.Participants[nick]
	if !ok {
		return nil
	}

	hadSources := len(p.AudioSources) > 0 || len(p.VideoSources) > 0
	channelIDs := []string{}
	for _, id := range []string{p.AudioChannel, p.VideoChannel, p.DataChannel} {
		if id != "" {
			channelIDs = append(channelIDs, id)
		}
	}

	delete(room.Sessions, nick)

	queue := room.PendingJoinQueue[:0]
	for _, queued := range room.PendingJoinQueue {
		if queued != nick {
			queue = append(queue, queued)
		}
	}
	room.PendingJoinQueue = queue

	if hadSources {
		for _, other := range room.OtherSessionMembersLocked(nick) {
			target := room.Participants[other]
			if target == nil || target.SID == "" {
				continue
			}
			if len(p.AudioSources) > 0 {
				payload := stanza.BuildSourceRemove(target.SID, "audio", p.AudioSources, p.AudioGroups)
				if err := c.Transport.SendJingle(ctx, room.ID, other, payload); err != nil {
					slog.Error("focus: fanning out leave source-remove", "room", room.ID, "to", other, "err", err)
				} else {
					metrics.JingleEvents.WithLabelValues("source-remove", "fanned-out").Inc()
				}
			}
			if len(p.VideoSources) > 0 {
				payload := stanza.BuildSourceRemove(target.SID, "video", p.VideoSources, p.VideoGroups)
				if err := c.Transport.SendJingle(ctx, room.ID, other, payload); err != nil {
					slog.Error("focus: fanning out leave source-remove", "room", room.ID, "to", other, "err", err)
				} else {
					metrics.JingleEvents.WithLabelValues("source-remove", "fanned-out").Inc()
				}
			}
		}
	}

	delete(room.Participants, nick)
	metrics.RoomParticipants.WithLabelValues(room.ID).Set(float64(len(room.Participants)))

	if len(channelIDs) > 0 && room.ConferenceID != "" {
		payload := stanza.BuildColibriExpire(room.ConferenceID, channelIDs)
		go func() {
			if _, err := c.BridgeSender.Send(ctx, room.ID, string(room.Bridge), payload); err != nil {
				slog.Error("focus: expiring departed endpoint's channels", "room", room.ID, "nick", nick, "err", err)
			}
		}()
		metrics.ColibriRequests.WithLabelValues("expire", "sent").Inc()
	}

	if room.CapableCountLocked() < c.Config.MinParticipants {
		c.scheduleTeardownLocked(ctx, room)
	}
	return nil
}
