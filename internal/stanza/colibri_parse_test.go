package stanza

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleColibriResult = `
<conference xmlns="http://jitsi.org/protocol/colibri" id="conf1">
  <content name="audio">
    <channel id="achan1" endpoint="alice" rtp-level-relay-type="mixer">
      <transport xmlns="urn:xmpp:jingle:transports:ice-udp:1" pwd="p1" ufrag="u1">
        <candidate foundation="1" component="1" protocol="udp" priority="100" ip="10.0.0.1" port="10000" type="host" generation="0"/>
        <fingerprint xmlns="urn:xmpp:jingle:apps:dtls:0" hash="sha-256">AA:BB:CC</fingerprint>
      </transport>
    </channel>
  </content>
  <content name="video">
    <channel id="vchan1" endpoint="alice" rtp-level-relay-type="mixer"/>
  </content>
  <content name="data">
    <sctpconnection id="d1" endpoint="alice" port="5000"/>
  </content>
</conference>`

func TestParseColibriResult(t *testing.T) {
	confID, channels, err := ParseColibriResult([]byte(sampleColibriResult))
	require.NoError(t, err)
	require.Equal(t, "conf1", confID)

	alice, ok := channels["alice"]
	require.True(t, ok)
	require.Equal(t, "achan1", alice.Audio.ID)
	require.Equal(t, "mixer", alice.Audio.RTPLevel)
	require.Equal(t, "p1", alice.Audio.Transport.Pwd)
	require.Len(t, alice.Audio.Transport.Candidates, 1)
	require.Equal(t, "10.0.0.1", alice.Audio.Transport.Candidates[0].IP)
	require.Equal(t, "AA:BB:CC", alice.Audio.Transport.Fingerprint)
	require.Equal(t, "sha-256", alice.Audio.Transport.HashAlgo)
	require.Equal(t, "vchan1", alice.Video.ID)
	require.NotNil(t, alice.Data)
	require.Equal(t, "d1", alice.Data.ID)
	require.Equal(t, 5000, alice.Data.Port)
}
