package focus

import (
	"context"
	"testing"
	"time"

	"github.com/otalk/mod-muc-focus/internal/bridge"
	"github.com/otalk/mod-muc-focus/internal/stanza"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, minParticipants int) (*Controller, *fakeTransport, *fakeBridgeSender) {
	t.Helper()
	reg := NewRegistry()
	sel := bridge.NewSelector(time.Minute, "default.bridge")
	corr := bridge.NewCorrelationTable()
	tr := &fakeTransport{}
	bs := &fakeBridgeSender{}

	ctrl := NewController(reg, sel, corr, bs, tr, stanza.DefaultCodecConfig(false), Config{
		UseBundle:       true,
		UseDataChannels: false,
		MinParticipants: minParticipants,
	})

	n := 0
	ctrl.nextRequestID = func() string { n++; return "req" + itoa(n) }
	s := 0
	ctrl.nextSessionID = func() string { s++; return "sid" + itoa(s) }

	return ctrl, tr, bs
}

func itoa(n int) string {
	digits := "0123456789"
	if n == 0 {
		return "0"
	}
	var out []byte
	for n > 0 {
		out = append([]byte{digits[n%10]}, out...)
		n /= 10
	}
	return string(out)
}

// Scenario 1: solo join below threshold — no COLIBRI request, no Jingle,
// presence carries mode p2p.
func TestSoloJoinBelowThresholdStaysP2P(t *testing.T) {
	ctrl, tr, bs := newTestController(t, 2)
	ctx := context.Background()

	err := ctrl.PreJoin(ctx, "room1", "alice", "alice@example.com", true)
	require.NoError(t, err)
	require.Equal(t, []StatusMode{ModeP2P}, tr.Broadcasts)

	ctrl.MaterializeParticipant("room1", "alice", "alice@example.com", true)
	require.NoError(t, ctrl.Joined(ctx, "room1", "alice"))

	require.Equal(t, 0, bs.requestCount())
	require.Equal(t, 0, tr.jingleCount())
}

// Scenario 2: second capable join crosses the threshold — exactly one
// COLIBRI create, both joiners receive a session-initiate with distinct
// channel ids.
func TestSecondJoinCrossesThresholdAllocatesChannels(t *testing.T) {
	ctrl, tr, bs := newTestController(t, 2)
	ctx := context.Background()

	bs.fn = func(to string, payload any) ([]byte, error) {
		return []byte(`<conference xmlns="http://jitsi.org/protocol/colibri" id="conf1">
			<content name="audio">
				<channel id="a-alice" endpoint="alice"/>
				<channel id="a-bob" endpoint="bob"/>
			</content>
			<content name="video">
				<channel id="v-alice" endpoint="alice"/>
				<channel id="v-bob" endpoint="bob"/>
			</content>
		</conference>`), nil
	}

	ctrl.MaterializeParticipant("room1", "alice", "alice@example.com", true)
	require.NoError(t, ctrl.Joined(ctx, "room1", "alice")) // below threshold, no-op

	ctrl.MaterializeParticipant("room1", "bob", "bob@example.com", true)
	require.NoError(t, ctrl.Joined(ctx, "room1", "bob"))

	require.Eventually(t, func() bool { return tr.jingleCount() == 2 }, time.Second, time.Millisecond)
	require.Equal(t, 1, bs.requestCount())

	room := ctrl.Registry.Get("room1")
	room.mu.Lock()
	defer room.mu.Unlock()
	require.Equal(t, StateAssigned, room.State)
	require.Equal(t, "conf1", room.ConferenceID)
	require.True(t, room.Sessions["alice"])
	require.True(t, room.Sessions["bob"])
	require.NotEqual(t, room.Participants["alice"].AudioChannel, room.Participants["bob"].AudioChannel)
}

// Scenario 3: join during pending create — C is queued, then a follow-up
// update is issued once the first reply resolves.
func TestJoinDuringPendingCreateQueuesAndFollowsUp(t *testing.T) {
	ctrl, tr, bs := newTestController(t, 2)
	ctx := context.Background()

	release := make(chan struct{})
	bs.fn = func(to string, payload any) ([]byte, error) {
		<-release
		return []byte(`<conference xmlns="http://jitsi.org/protocol/colibri" id="conf1">
			<content name="audio">
				<channel id="a-alice" endpoint="alice"/>
				<channel id="a-bob" endpoint="bob"/>
				<channel id="a-carol" endpoint="carol"/>
			</content>
			<content name="video">
				<channel id="v-alice" endpoint="alice"/>
				<channel id="v-bob" endpoint="bob"/>
				<channel id="v-carol" endpoint="carol"/>
			</content>
		</conference>`), nil
	}

	ctrl.MaterializeParticipant("room1", "alice", "alice@example.com", true)
	require.NoError(t, ctrl.Joined(ctx, "room1", "alice"))

	ctrl.MaterializeParticipant("room1", "bob", "bob@example.com", true)
	require.NoError(t, ctrl.Joined(ctx, "room1", "bob")) // first create dispatched, blocked on release

	ctrl.MaterializeParticipant("room1", "carol", "carol@example.com", true)
	require.NoError(t, ctrl.Joined(ctx, "room1", "carol")) // must queue: room is pending

	room := ctrl.Registry.Get("room1")
	room.mu.Lock()
	require.Equal(t, StatePending, room.State)
	require.Equal(t, []string{"carol"}, room.PendingJoinQueue)
	room.mu.Unlock()

	close(release)

	require.Eventually(t, func() bool { return tr.jingleCount() == 3 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return bs.requestCount() == 2 }, time.Second, time.Millisecond)

	room.mu.Lock()
	defer room.mu.Unlock()
	require.True(t, room.Sessions["carol"])
	require.Empty(t, room.PendingJoinQueue)
}

func TestPreJoinRejectsDuplicateSessionFromSameRealJID(t *testing.T) {
	ctrl, tr, _ := newTestController(t, 1)
	ctx := context.Background()

	ctrl.MaterializeParticipant("room1", "alice", "alice@example.com", true)
	room := ctrl.Registry.Get("room1")
	room.mu.Lock()
	room.Sessions["alice"] = true
	room.mu.Unlock()

	err := ctrl.PreJoin(ctx, "room1", "alice2", "alice@example.com", true)
	require.ErrorIs(t, err, ErrDuplicateSession)
	require.Len(t, tr.Errors, 1)
	require.Equal(t, "modify-resource-constraint", tr.Errors[0].Condition)
}

func TestColibriResultIgnoresStaleReply(t *testing.T) {
	ctrl, tr, _ := newTestController(t, 1)
	ctx := context.Background()

	err := ctrl.ColibriResult(ctx, bridge.RequestID("never-issued"), []byte(`<conference xmlns="http://jitsi.org/protocol/colibri" id="x"/>`))
	require.NoError(t, err)
	require.Empty(t, tr.Jingle)
}
