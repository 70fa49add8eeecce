package focus

import (
	"context"
	"log/slog"
	"time"

	"github.com/otalk/mod-muc-focus/internal/metrics"
	"github.com/otalk/mod-muc-focus/internal/stanza"
)

// scheduleTeardownLocked runs destroy once the capable count has dropped
// below the minimum. With no linger configured it runs inline as part of
// the current turn; otherwise it is deferred, and the precondition is
// re-checked once the timer fires since participants may have rejoined.
func (c *Controller) scheduleTeardownLocked(ctx context.Context, room *Room) {
	if c.Config.LingerTime <= 0 {
		c.destroyLocked(ctx, room)
		return
	}
	if room.lingerTimer != nil {
		return
	}
	room.lingerTimer = time.AfterFunc(c.Config.LingerTime, func() {
		room.mu.Lock()
		defer room.mu.Unlock()
		room.lingerTimer = nil
		if room.CapableCountLocked() >= c.Config.MinParticipants {
			return
		}
		c.destroyLocked(ctx, room)
	})
}

// destroyLocked runs the teardown sequence — broadcast p2p, terminate
// every session, expire every known channel, clear state — and is
// idempotent: an already-absent room with no sessions is a no-op.
func (c *Controller) destroyLocked(ctx context.Context, room *Room) {
	if room.State == StateAbsent && len(room.Sessions) == 0 {
		return
	}

	if err := c.Transport.BroadcastStatus(ctx, room.ID, ModeP2P); err != nil {
		slog.Error("focus: broadcasting teardown status", "room", room.ID, "err", err)
	}

	for _, nick := range room.SessionMembersLocked() {
		p := room.Participants[nick]
		if p == nil || p.SID == "" {
			continue
		}
		payload := stanza.BuildSessionTerminate(p.SID, stanza.ReasonSuccess)
		if err := c.Transport.SendJingle(ctx, room.ID, nick, payload); err != nil {
			slog.Error("focus: sending teardown session-terminate", "room", room.ID, "to", nick, "err", err)
		}
	}

	if channelIDs := room.ChannelIDsLocked(); len(channelIDs) > 0 {
		payload := stanza.BuildColibriExpire(room.ConferenceID, channelIDs)
		bridgeID, confID := room.Bridge, room.ConferenceID
		go func() {
			if _, err := c.BridgeSender.Send(ctx, room.ID, string(bridgeID), payload); err != nil {
				slog.Error("focus: expiring channels on teardown", "room", room.ID, "conference", confID, "err", err)
			}
		}()
		metrics.ColibriRequests.WithLabelValues("expire", "sent").Inc()
	}

	c.Correlation.DropRoom(room.ID)
	room.ResetLocked()
	c.Registry.Delete(room.ID)
}
