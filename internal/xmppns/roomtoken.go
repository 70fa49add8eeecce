package xmppns

import (
	"encoding/hex"
	"fmt"
	"strings"

	"mellium.im/xmpp/jid"
)

// RoomToken reversibly encodes a room's bare JID into a token suitable for
// use as this service's own resourcepart: the room's node hex-encoded,
// joined to its host with "/". A COLIBRI request's "from" is built by
// appending this token as the resource of the component's own bare JID,
// giving the bridge a reply-to address that is both a valid local address
// of this service and decodable back to the originating room.
func RoomToken(room jid.JID) string {
	return hex.EncodeToString([]byte(room.Localpart())) + "/" + room.Domainpart()
}

// ParseRoomToken reverses RoomToken, recovering the bare room JID encoded
// in a token previously produced by RoomToken.
func ParseRoomToken(token string) (jid.JID, error) {
	node, host, ok := strings.Cut(token, "/")
	if !ok {
		return jid.JID{}, fmt.Errorf("xmppns: malformed room token %q", token)
	}
	local, err := hex.DecodeString(node)
	if err != nil {
		return jid.JID{}, fmt.Errorf("xmppns: decoding room token node: %w", err)
	}
	return jid.Parse(string(local) + "@" + host)
}
