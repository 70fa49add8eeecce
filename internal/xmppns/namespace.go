// Package xmppns collects the XML namespaces this focus agent speaks, and
// the room-identifier encoding used to address the bridge.
package xmppns

// Wire namespace constants, bit-exact per the external interface contract.
const (
	Colibri          = "http://jitsi.org/protocol/colibri"
	Jingle           = "urn:xmpp:jingle:1"
	JingleICEUDP     = "urn:xmpp:jingle:transports:ice-udp:1"
	JingleDTLS       = "urn:xmpp:jingle:apps:dtls:0"
	JingleRTP        = "urn:xmpp:jingle:apps:rtp:1"
	JingleRTPInfo    = "urn:xmpp:jingle:apps:rtp:info:1"
	JingleRTPHdrExt  = "urn:xmpp:jingle:apps:rtp:rtp-hdrext:0"
	JingleRTCPFB     = "urn:xmpp:jingle:apps:rtp:rtcp-fb:0"
	JingleSSMA       = "urn:xmpp:jingle:apps:rtp:ssma:0"
	JingleGrouping   = "urn:xmpp:jingle:apps:grouping:0"
	JingleDTLSSCTP   = "urn:xmpp:jingle:transports:dtls-sctp:1"
	MMUC             = "http://andyet.net/xmlns/mmuc"
	PubSub           = "http://jabber.org/protocol/pubsub"
	PubSubEvent      = "http://jabber.org/protocol/pubsub#event"
	DiscoInfo        = "http://jabber.org/protocol/disco#info"
)
